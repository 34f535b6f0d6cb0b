package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/lakumart/groupbuy-server-go/internal/errors"
	"github.com/lakumart/groupbuy-server-go/internal/model"
	"github.com/lakumart/groupbuy-server-go/internal/service"
)

// SessionHandler exposes the public group-buying API. Mutating routes sit
// behind the redis rate limiter; reads are unthrottled.
type SessionHandler struct {
	sessions  *service.SessionService
	rateLimit func(http.Handler) http.Handler
}

func NewSessionHandler(sessions *service.SessionService, rateLimit func(http.Handler) http.Handler) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		rateLimit: rateLimit,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/sessions", h.ListSessions)
	r.Get("/sessions/code/{code}", h.GetSessionByCode)
	r.Get("/sessions/{id}", h.GetSession)
	r.Get("/sessions/{id}/participants", h.ListParticipants)
	r.Get("/sessions/{id}/stats", h.SessionStats)
	r.Get("/sessions/{id}/variants/{variantID}/availability", h.VariantAvailability)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/sessions", h.CreateSession)
		r.Patch("/sessions/{id}", h.UpdateSession)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Post("/sessions/{id}/cancel", h.CancelSession)
		r.Post("/sessions/{id}/join", h.JoinSession)
		r.Post("/sessions/{id}/leave", h.LeaveSession)
		r.Post("/sessions/{id}/start-production", h.StartProduction)
		r.Post("/sessions/{id}/complete-production", h.CompleteProduction)
	})

	return r
}

func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input service.CreateSessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	session, err := h.sessions.Create(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"data": session})
}

func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	q := r.URL.Query()

	filters := model.SessionFilters{
		FactoryID:  q.Get("factoryId"),
		ProductID:  q.Get("productId"),
		Search:     q.Get("search"),
		ActiveOnly: q.Get("active") == "true",
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
	if status := q.Get("status"); status != "" {
		filters.Status = model.SessionStatus(status)
	}

	sessions, total, err := h.sessions.List(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   sessions,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": session})
}

func (h *SessionHandler) GetSessionByCode(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": session})
}

func (h *SessionHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var patch model.SessionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	session, err := h.sessions.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": session})
}

func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.sessions.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var input service.JoinInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if input.UserID == "" {
		writeError(w, apperrors.MissingRequired("userId"))
		return
	}
	input.SessionID = chi.URLParam(r, "id")

	result, err := h.sessions.Join(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": result})
}

func (h *SessionHandler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, apperrors.MissingRequired("userId"))
		return
	}

	if err := h.sessions.Leave(r.Context(), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *SessionHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.sessions.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  participants,
		"total": len(participants),
	})
}

func (h *SessionHandler) SessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}

func (h *SessionHandler) VariantAvailability(w http.ResponseWriter, r *http.Request) {
	// "base" addresses the no-variant bucket of a product
	var variantID *string
	if v := chi.URLParam(r, "variantID"); v != "" && v != "base" {
		variantID = &v
	}

	avail, err := h.sessions.VariantAvailability(r.Context(), chi.URLParam(r, "id"), variantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": avail})
}

func (h *SessionHandler) StartProduction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FactoryOwnerID string `json:"factoryOwnerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FactoryOwnerID == "" {
		writeError(w, apperrors.MissingRequired("factoryOwnerId"))
		return
	}

	if err := h.sessions.StartProduction(r.Context(), chi.URLParam(r, "id"), req.FactoryOwnerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *SessionHandler) CompleteProduction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FactoryOwnerID string `json:"factoryOwnerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FactoryOwnerID == "" {
		writeError(w, apperrors.MissingRequired("factoryOwnerId"))
		return
	}

	if err := h.sessions.CompleteProduction(r.Context(), chi.URLParam(r, "id"), req.FactoryOwnerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

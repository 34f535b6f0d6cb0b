package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/lakumart/groupbuy-server-go/internal/errors"
	"github.com/lakumart/groupbuy-server-go/internal/service"
)

// InternalHandler exposes the service-to-service surface: expiration
// triggers for schedulers and the order-link callback. All routes sit
// behind the service token middleware.
type InternalHandler struct {
	lifecycle *service.LifecycleService
	sessions  *service.SessionService
}

func NewInternalHandler(lifecycle *service.LifecycleService, sessions *service.SessionService) *InternalHandler {
	return &InternalHandler{
		lifecycle: lifecycle,
		sessions:  sessions,
	}
}

func (h *InternalHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/process-expired", h.ProcessExpired)
	r.Post("/process-near-expiration", h.ProcessNearExpiration)
	r.Post("/sessions/{id}/expire", h.ExpireSession)
	r.Post("/link-order", h.LinkOrder)

	return r
}

func (h *InternalHandler) ProcessExpired(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.lifecycle.ProcessExpired(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("manual expiration sweep failed")
		writeError(w, apperrors.Internal("Failed to process expired sessions"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"processed": len(outcomes),
		"results":   outcomes,
	})
}

func (h *InternalHandler) ProcessNearExpiration(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.ProcessNearExpiring(r.Context()); err != nil {
		log.Error().Err(err).Msg("manual near-expiration sweep failed")
		writeError(w, apperrors.Internal("Failed to process sessions nearing expiration"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *InternalHandler) ExpireSession(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.lifecycle.ManualExpire(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": outcome})
}

func (h *InternalHandler) LinkOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participantId"`
		OrderID       string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.sessions.LinkParticipantToOrder(r.Context(), req.ParticipantID, req.OrderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

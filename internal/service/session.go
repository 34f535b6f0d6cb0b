package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lakumart/groupbuy-server-go/internal/client"
	"github.com/lakumart/groupbuy-server-go/internal/config"
	apperrors "github.com/lakumart/groupbuy-server-go/internal/errors"
	"github.com/lakumart/groupbuy-server-go/internal/model"
	"github.com/lakumart/groupbuy-server-go/internal/repository"
)

const sessionCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// inventoryStatusUnavailable is the sentinel the availability check reports
// when the warehouse service itself cannot be reached. Joins skip the stock
// check in that case instead of rejecting the buyer.
const inventoryStatusUnavailable = "service_unavailable"

type CreateSessionInput struct {
	ProductID      string     `json:"productId"`
	FactoryID      string     `json:"factoryId"`
	FactoryOwnerID string     `json:"factoryOwnerId"`
	SessionCode    string     `json:"sessionCode,omitempty"`
	TargetMoq      int        `json:"targetMoq"`
	GroupPrice     int64      `json:"groupPrice"`
	PriceTier25    int64      `json:"priceTier25"`
	PriceTier50    int64      `json:"priceTier50"`
	PriceTier75    int64      `json:"priceTier75"`
	PriceTier100   int64      `json:"priceTier100"`
	GrosirUnitSize int        `json:"grosirUnitSize,omitempty"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        time.Time  `json:"endTime"`
}

type JoinInput struct {
	SessionID  string  `json:"-"`
	UserID     string  `json:"userId"`
	Quantity   int     `json:"quantity"`
	VariantID  *string `json:"variantId,omitempty"`
	UnitPrice  int64   `json:"unitPrice"`
	TotalPrice int64   `json:"totalPrice"`
}

type JoinResult struct {
	Participant *model.Participant `json:"participant"`
	Payment     json.RawMessage    `json:"payment,omitempty"`
	PaymentURL  string             `json:"paymentUrl,omitempty"`
	InvoiceID   string             `json:"invoiceId,omitempty"`
}

type TimeRemaining struct {
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Expired bool `json:"expired"`
}

type SessionStatsResult struct {
	ParticipantCount int                 `json:"participantCount"`
	TotalQuantity    int                 `json:"totalQuantity"`
	TotalRevenue     int64               `json:"totalRevenue"`
	TargetMoq        int                 `json:"targetMoq"`
	Progress         float64             `json:"progress"`
	MoqReached       bool                `json:"moqReached"`
	ProvisionalTier  model.Tier          `json:"provisionalTier"`
	TimeRemaining    TimeRemaining       `json:"timeRemaining"`
	Status           model.SessionStatus `json:"status"`
}

type VariantAvailability struct {
	VariantID *string `json:"variantId"`
	Quantity  int     `json:"quantity"`
	Reserved  int     `json:"reservedQuantity"`
	Available int     `json:"available"`
	IsLocked  bool    `json:"isLocked"`
	Status    string  `json:"status"`
}

// SessionService owns the request/response operations on sessions and
// participants. The batch settlement saga lives in LifecycleService.
type SessionService struct {
	sessions     repository.SessionRepository
	participants repository.ParticipantRepository
	payment      client.Payment
	warehouse    client.Warehouse
}

func NewSessionService(
	sessions repository.SessionRepository,
	participants repository.ParticipantRepository,
	payment client.Payment,
	warehouse client.Warehouse,
) *SessionService {
	return &SessionService{
		sessions:     sessions,
		participants: participants,
		payment:      payment,
		warehouse:    warehouse,
	}
}

func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (*model.Session, error) {
	if input.ProductID == "" {
		return nil, apperrors.MissingRequired("productId")
	}
	if input.FactoryID == "" {
		return nil, apperrors.MissingRequired("factoryId")
	}
	if input.TargetMoq < config.MinTargetMoq {
		return nil, apperrors.ValidationError("Minimum order quantity (moq) must be at least 2")
	}
	if input.GroupPrice <= 0 {
		return nil, apperrors.ValidationError("Group price must be greater than 0")
	}
	if !input.EndTime.After(time.Now()) {
		return nil, apperrors.ValidationError("End time must be in the future")
	}

	if input.PriceTier25 <= 0 || input.PriceTier50 <= 0 || input.PriceTier75 <= 0 || input.PriceTier100 <= 0 {
		return nil, apperrors.ValidationError(
			"All tier prices must be provided and greater than 0: priceTier25, priceTier50, priceTier75, priceTier100")
	}
	if input.PriceTier25 < input.PriceTier50 ||
		input.PriceTier50 < input.PriceTier75 ||
		input.PriceTier75 < input.PriceTier100 {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"Tier prices must be in descending order: priceTier25 >= priceTier50 >= priceTier75 >= priceTier100. Got: %d >= %d >= %d >= %d",
			input.PriceTier25, input.PriceTier50, input.PriceTier75, input.PriceTier100))
	}

	code := input.SessionCode
	if code != "" {
		exists, err := s.sessions.CodeExists(ctx, code)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if exists {
			return nil, apperrors.AlreadyExists(fmt.Sprintf("Session code %s", code))
		}
	} else {
		code = generateSessionCode()
	}

	startTime := time.Now()
	if input.StartTime != nil {
		startTime = *input.StartTime
	}
	unitSize := input.GrosirUnitSize
	if unitSize <= 0 {
		unitSize = config.DefaultGrosirUnitSize
	}

	session, err := s.sessions.Create(ctx, model.CreateSessionParams{
		SessionCode:    code,
		ProductID:      input.ProductID,
		FactoryID:      input.FactoryID,
		FactoryOwnerID: input.FactoryOwnerID,
		TargetMoq:      input.TargetMoq,
		GroupPrice:     input.GroupPrice,
		PriceTier25:    input.PriceTier25,
		PriceTier50:    input.PriceTier50,
		PriceTier75:    input.PriceTier75,
		PriceTier100:   input.PriceTier100,
		GrosirUnitSize: unitSize,
		StartTime:      startTime,
		EndTime:        input.EndTime,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("sessionCode", session.SessionCode).
		Int64("basePrice", session.GroupPrice).
		Int64("tier25", session.PriceTier25).
		Int64("tier100", session.PriceTier100).
		Msg("group buying session created")

	return session, nil
}

func (s *SessionService) GetByID(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

func (s *SessionService) GetByCode(ctx context.Context, code string) (*model.Session, error) {
	session, err := s.sessions.FindByCode(ctx, code)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

func (s *SessionService) List(ctx context.Context, filters model.SessionFilters) ([]model.Session, int, error) {
	sessions, total, err := s.sessions.List(ctx, filters)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return sessions, total, nil
}

func (s *SessionService) Update(ctx context.Context, id string, patch model.SessionPatch) (*model.Session, error) {
	session, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusForming {
		return nil, apperrors.Conflict("Only sessions in forming status can be updated")
	}
	if patch.EndTime != nil && !patch.EndTime.After(time.Now()) {
		return nil, apperrors.ValidationError("End time must be in the future")
	}
	if patch.GroupPrice != nil && *patch.GroupPrice <= 0 {
		return nil, apperrors.ValidationError("Group price must be greater than 0")
	}
	if patch.TargetMoq != nil && *patch.TargetMoq < config.MinTargetMoq {
		return nil, apperrors.ValidationError("Minimum order quantity (moq) must be at least 2")
	}

	updated, err := s.sessions.Update(ctx, id, patch)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return updated, nil
}

func (s *SessionService) Delete(ctx context.Context, id string) error {
	session, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusMoqReached || session.Status == model.SessionStatusSuccess {
		return apperrors.Conflict("Cannot delete confirmed or completed sessions")
	}

	count, err := s.participants.Count(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if count > 0 {
		return apperrors.Conflict("Cannot delete session with participants. Cancel it instead")
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *SessionService) Cancel(ctx context.Context, id, reason string) error {
	session, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusSuccess || session.Status == model.SessionStatusMoqReached {
		return apperrors.Conflict("Cannot cancel confirmed or completed sessions")
	}

	if _, err := s.sessions.TryUpdateStatus(ctx, id, model.SessionStatusCancelled); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("sessionId", id).Str("reason", reason).Msg("session cancelled")
	return nil
}

// Join admits a buyer into a live session, holds their payment in escrow
// and re-checks the MOQ. Everyone pays base price up front; tier refunds
// are issued at settlement.
func (s *SessionService) Join(ctx context.Context, input JoinInput) (*JoinResult, error) {
	session, err := s.GetByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.Joinable() {
		return nil, apperrors.SessionClosed()
	}
	if session.Expired(time.Now()) {
		return nil, apperrors.SessionExpired()
	}
	if input.Quantity < 1 {
		return nil, apperrors.ValidationError("Quantity must be at least 1")
	}

	if input.VariantID != nil {
		if err := s.checkVariantStock(ctx, session, input); err != nil {
			return nil, err
		}
	}

	// Hard price equality checks: the client cannot pick its own price.
	if input.UnitPrice != session.GroupPrice {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"Invalid unit price. Expected %d, got %d", session.GroupPrice, input.UnitPrice))
	}
	expectedTotal := int64(input.Quantity) * session.GroupPrice
	if input.TotalPrice != expectedTotal {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"Total price must be %d for quantity %d", expectedTotal, input.Quantity))
	}

	// Users may join multiple times with different variants.
	participant, err := s.participants.Create(ctx, model.CreateParticipantParams{
		SessionID:  session.ID,
		UserID:     input.UserID,
		Quantity:   input.Quantity,
		VariantID:  input.VariantID,
		UnitPrice:  input.UnitPrice,
		TotalPrice: input.TotalPrice,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	escrow, err := s.payment.CreateEscrow(ctx, client.EscrowParams{
		UserID:        input.UserID,
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		Amount:        input.TotalPrice,
		ExpiresAt:     session.EndTime.Format(time.RFC3339),
		FactoryID:     session.FactoryID,
	})
	if err != nil {
		return nil, s.rollbackJoin(ctx, session.ID, input.UserID, participant.ID, err)
	}

	if err := s.checkMoqReached(ctx, session.ID); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("moq re-check failed after join")
	}

	return &JoinResult{
		Participant: participant,
		Payment:     escrow.Payment,
		PaymentURL:  escrow.PaymentURL,
		InvoiceID:   escrow.InvoiceID,
	}, nil
}

// rollbackJoin removes the participant created for a join whose payment
// hold failed. A failed rollback leaves an unpaid phantom participant that
// no automated path can repair, so it is escalated with both errors.
func (s *SessionService) rollbackJoin(ctx context.Context, sessionID, userID, participantID string, paymentErr error) error {
	if _, rbErr := s.participants.DeleteUnlinked(ctx, sessionID, userID); rbErr != nil {
		log.Error().
			Str("sessionId", sessionID).
			Str("userId", userID).
			Str("participantId", participantID).
			AnErr("paymentError", paymentErr).
			AnErr("rollbackError", rbErr).
			Msg("CRITICAL: failed to rollback participant after payment failure")
		return apperrors.RollbackFailed(participantID, paymentErr, rbErr)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("userId", userID).
		Str("participantId", participantID).
		Msg("participant rolled back after payment failure")
	return apperrors.External("payment", paymentErr)
}

func (s *SessionService) checkVariantStock(ctx context.Context, session *model.Session, input JoinInput) error {
	avail := s.variantAvailability(ctx, session, input.VariantID)

	// Availability-service outage fails open for joins: log and admit.
	if avail.Status == inventoryStatusUnavailable {
		log.Warn().
			Str("sessionId", session.ID).
			Str("productId", session.ProductID).
			Msg("warehouse service unavailable, skipping stock check")
		return nil
	}

	if avail.IsLocked {
		return apperrors.OutOfStock(fmt.Sprintf(
			"Variant is currently out of stock. Warehouse stock: %d, Reserved: %d. Please try a different variant or wait for restock.",
			avail.Quantity, avail.Reserved))
	}
	if input.Quantity > avail.Available {
		return apperrors.OutOfStock(fmt.Sprintf(
			"Only %d units available for this variant. Warehouse has %d total, %d already reserved.",
			avail.Available, avail.Quantity, avail.Reserved))
	}
	return nil
}

// VariantAvailability reports warehouse stock for one variant of the
// session's product.
func (s *SessionService) VariantAvailability(ctx context.Context, sessionID string, variantID *string) (*VariantAvailability, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	avail := s.variantAvailability(ctx, session, variantID)
	return &avail, nil
}

func (s *SessionService) variantAvailability(ctx context.Context, session *model.Session, variantID *string) VariantAvailability {
	status, err := s.warehouse.GetInventoryStatus(ctx, session.ProductID, variantID)
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", session.ID).
			Msg("failed to get inventory status from warehouse")

		// Safe default: report the variant as locked so callers can tell a
		// dead warehouse apart from an empty one by the status field.
		return VariantAvailability{
			VariantID: variantID,
			IsLocked:  true,
			Status:    inventoryStatusUnavailable,
		}
	}

	return VariantAvailability{
		VariantID: variantID,
		Quantity:  status.Quantity,
		Reserved:  status.ReservedQuantity,
		Available: status.AvailableQuantity,
		IsLocked:  status.AvailableQuantity <= 0,
		Status:    status.Status,
	}
}

func (s *SessionService) Leave(ctx context.Context, sessionID, userID string) error {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusMoqReached || session.Status == model.SessionStatusSuccess {
		return apperrors.Conflict("Cannot leave confirmed sessions")
	}

	removed, err := s.participants.DeleteUnlinked(ctx, sessionID, userID)
	if err != nil {
		return apperrors.Database(err)
	}
	if removed == 0 {
		return apperrors.Conflict("User is not a participant or has already been converted to an order")
	}
	return nil
}

func (s *SessionService) Participants(ctx context.Context, sessionID string) ([]model.Participant, error) {
	if _, err := s.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	participants, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return participants, nil
}

func (s *SessionService) Stats(ctx context.Context, sessionID string) (*SessionStatsResult, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats, err := s.participants.Stats(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	return &SessionStatsResult{
		ParticipantCount: stats.ParticipantCount,
		TotalQuantity:    stats.TotalQuantity,
		TotalRevenue:     stats.TotalRevenue,
		TargetMoq:        session.TargetMoq,
		Progress:         FillPercent(stats.TotalQuantity, session.TargetMoq),
		MoqReached:       stats.TotalQuantity >= session.TargetMoq,
		ProvisionalTier:  TierForFill(stats.TotalQuantity, session.TargetMoq),
		TimeRemaining:    timeRemaining(session.EndTime),
		Status:           session.Status,
	}, nil
}

func (s *SessionService) StartProduction(ctx context.Context, sessionID, factoryOwnerID string) error {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.FactoryOwnerID != factoryOwnerID {
		return apperrors.Forbidden("Only factory owner can start production")
	}
	if session.Status != model.SessionStatusMoqReached && session.Status != model.SessionStatusOrdersCreated {
		return apperrors.Conflict("Can only start production for confirmed sessions")
	}
	if session.ProductionStartedAt != nil {
		return apperrors.Conflict("Production already started")
	}

	if err := s.sessions.MarkProductionStarted(ctx, sessionID); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("sessionId", sessionID).Msg("production started")
	return nil
}

func (s *SessionService) CompleteProduction(ctx context.Context, sessionID, factoryOwnerID string) error {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.FactoryOwnerID != factoryOwnerID {
		return apperrors.Forbidden("Only factory owner can complete production")
	}
	if session.ProductionStartedAt == nil {
		return apperrors.Conflict("Production has not been started")
	}
	if session.ProductionCompletedAt != nil {
		return apperrors.Conflict("Production already completed")
	}

	if _, err := s.sessions.TryUpdateStatus(ctx, sessionID, model.SessionStatusSuccess); err != nil {
		return apperrors.Database(err)
	}

	// Escrow release is retried inside the client; a final failure is
	// logged for ops but does not undo the completed production.
	if err := s.payment.ReleaseEscrow(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to release escrow")
	} else {
		log.Info().Str("sessionId", sessionID).Msg("escrow released")
	}

	return nil
}

// LinkParticipantToOrder is the service-to-service callback the order
// service invokes after bulk creation.
func (s *SessionService) LinkParticipantToOrder(ctx context.Context, participantID, orderID string) error {
	if participantID == "" {
		return apperrors.MissingRequired("participantId")
	}
	if orderID == "" {
		return apperrors.MissingRequired("orderId")
	}
	if err := s.participants.LinkOrder(ctx, participantID, orderID); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// checkMoqReached promotes a joinable session once total committed quantity
// covers the target. The conditional update keeps concurrent joins from
// racing each other.
func (s *SessionService) checkMoqReached(ctx context.Context, sessionID string) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil || session == nil {
		return err
	}
	if !session.Status.Joinable() {
		return nil
	}

	stats, err := s.participants.Stats(ctx, sessionID)
	if err != nil {
		return err
	}
	if stats.TotalQuantity < session.TargetMoq || session.MoqReachedAt != nil {
		return nil
	}

	claimed, err := s.sessions.TryUpdateStatus(ctx, sessionID, model.SessionStatusMoqReached)
	if err != nil {
		return err
	}
	if claimed {
		log.Info().
			Str("sessionId", sessionID).
			Int("totalQuantity", stats.TotalQuantity).
			Int("targetMoq", session.TargetMoq).
			Msg("session reached MOQ")
	}
	return nil
}

func timeRemaining(endTime time.Time) TimeRemaining {
	diff := time.Until(endTime)
	if diff <= 0 {
		return TimeRemaining{Expired: true}
	}
	return TimeRemaining{
		Hours:   int(diff.Hours()),
		Minutes: int(diff.Minutes()) % 60,
	}
}

// generateSessionCode builds a GB-YYYYMMDD-XXXXX code.
func generateSessionCode() string {
	date := time.Now().Format("20060102")

	var sb strings.Builder
	for i := 0; i < 5; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(sessionCodeChars))))
		sb.WriteByte(sessionCodeChars[n.Int64()])
	}

	return fmt.Sprintf("GB-%s-%s", date, sb.String())
}

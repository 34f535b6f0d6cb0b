package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lakumart/groupbuy-server-go/internal/client"
	"github.com/lakumart/groupbuy-server-go/internal/config"
	apperrors "github.com/lakumart/groupbuy-server-go/internal/errors"
	"github.com/lakumart/groupbuy-server-go/internal/model"
	"github.com/lakumart/groupbuy-server-go/internal/repository"
)

// ExpirationOutcome summarizes what happened to one session during an
// expiration sweep.
type ExpirationOutcome struct {
	SessionID     string `json:"sessionId"`
	SessionCode   string `json:"sessionCode"`
	Result        string `json:"result"`
	OrdersCreated int    `json:"ordersCreated,omitempty"`
	Error         string `json:"error,omitempty"`
}

const (
	outcomeConfirmed    = "confirmed"
	outcomeFailed       = "failed"
	outcomePendingStock = "pending_stock"
	outcomeSkipped      = "skipped"
	outcomeError        = "error"
)

// LifecycleService runs the settlement saga over expired sessions and the
// pre-emptive bot fill over sessions about to expire. Both passes are
// idempotent per session: the conditional status transition acts as the
// claim, so overlapping sweeps process each session at most once.
type LifecycleService struct {
	sessions     repository.SessionRepository
	participants repository.ParticipantRepository
	payments     repository.PaymentRecordRepository
	botFiller    *BotFiller
	orchestrator *WarehouseOrchestrator
	payment      client.Payment
	wallet       client.Wallet
	orders       client.Order
	creator      SessionCreator
}

// SessionCreator is the slice of SessionService the lifecycle needs to
// spawn the next day's session.
type SessionCreator interface {
	Create(ctx context.Context, input CreateSessionInput) (*model.Session, error)
}

func NewLifecycleService(
	sessions repository.SessionRepository,
	participants repository.ParticipantRepository,
	payments repository.PaymentRecordRepository,
	botFiller *BotFiller,
	orchestrator *WarehouseOrchestrator,
	payment client.Payment,
	wallet client.Wallet,
	orders client.Order,
	creator SessionCreator,
) *LifecycleService {
	return &LifecycleService{
		sessions:     sessions,
		participants: participants,
		payments:     payments,
		botFiller:    botFiller,
		orchestrator: orchestrator,
		payment:      payment,
		wallet:       wallet,
		orders:       orders,
		creator:      creator,
	}
}

// ProcessNearExpiring tops up forming sessions that enter the pre-expiry
// window below the minimum fill, so the expiration pass finds them already
// viable. Sessions that already carry a bot are excluded by the query.
func (l *LifecycleService) ProcessNearExpiring(ctx context.Context) error {
	now := time.Now()
	sessions, err := l.sessions.FindNearingExpiration(ctx,
		now.Add(config.NearExpirationWindowFrom),
		now.Add(config.NearExpirationWindowTo))
	if err != nil {
		return fmt.Errorf("find nearing expiration: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	log.Info().Int("count", len(sessions)).Msg("checking sessions nearing expiration")

	for i := range sessions {
		session := &sessions[i]

		real, err := l.participants.ListReal(ctx, session.ID)
		if err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to list participants for pre-fill")
			continue
		}
		realQty := 0
		for _, p := range real {
			realQty += p.Quantity
		}

		if FillPercent(realQty, session.TargetMoq) >= minFillPercent {
			continue
		}

		if _, err := l.botFiller.Fill(ctx, session, realQty, BotRefPreemptive); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("pre-emptive bot fill failed")
		}
	}
	return nil
}

// ProcessExpired settles every session whose end time has passed.
func (l *LifecycleService) ProcessExpired(ctx context.Context) ([]ExpirationOutcome, error) {
	expired, err := l.sessions.FindExpired(ctx)
	if err != nil {
		return nil, fmt.Errorf("find expired sessions: %w", err)
	}
	if len(expired) == 0 {
		return nil, nil
	}

	log.Info().Int("count", len(expired)).Msg("processing expired sessions")

	outcomes := make([]ExpirationOutcome, 0, len(expired))
	for i := range expired {
		outcome := l.settleSession(ctx, &expired[i])
		if outcome.Error != "" {
			log.Error().
				Str("sessionId", outcome.SessionID).
				Str("error", outcome.Error).
				Msg("session settlement failed")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (l *LifecycleService) settleSession(ctx context.Context, session *model.Session) ExpirationOutcome {
	outcome := ExpirationOutcome{SessionID: session.ID, SessionCode: session.SessionCode}

	stats, err := l.participants.Stats(ctx, session.ID)
	if err != nil {
		outcome.Result = outcomeError
		outcome.Error = err.Error()
		return outcome
	}

	moqReached := session.Status == model.SessionStatusMoqReached ||
		stats.TotalQuantity >= session.TargetMoq

	if !moqReached {
		return l.failSession(ctx, session, outcome, true)
	}

	// Claim the session. A previous sweep (or a concurrent one) that
	// already moved it to moq_reached owns the settlement.
	claimed, err := l.sessions.TryUpdateStatus(ctx, session.ID, model.SessionStatusMoqReached)
	if err != nil {
		outcome.Result = outcomeError
		outcome.Error = err.Error()
		return outcome
	}
	if !claimed {
		outcome.Result = outcomeSkipped
		return outcome
	}

	return l.confirmSession(ctx, session, outcome)
}

// confirmSession runs the post-claim settlement: warehouse check, bot
// settlement fill, tier pricing and refunds, then bulk order creation.
func (l *LifecycleService) confirmSession(ctx context.Context, session *model.Session, outcome ExpirationOutcome) ExpirationOutcome {
	// Warehouse check fails open: an unreachable warehouse must not block
	// settlement of a session whose buyers have already paid.
	demand, err := l.orchestrator.CheckDemand(ctx, session)
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("warehouse demand check failed, proceeding")
	} else if !demand.HasStock {
		if _, err := l.sessions.TryUpdateStatus(ctx, session.ID, model.SessionStatusPendingStock); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to mark session pending stock")
		}
		l.spawnNextDay(ctx, session)
		outcome.Result = outcomePendingStock
		return outcome
	}

	real, err := l.participants.ListReal(ctx, session.ID)
	if err != nil {
		outcome.Result = outcomeError
		outcome.Error = err.Error()
		return outcome
	}
	realQty := 0
	for _, p := range real {
		realQty += p.Quantity
	}

	botParticipantID := session.BotParticipantID
	if FillPercent(realQty, session.TargetMoq) < minFillPercent && botParticipantID == nil {
		bot, err := l.botFiller.Fill(ctx, session, realQty, BotRefSettlement)
		if err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("settlement bot fill failed")
		} else if bot != nil {
			botParticipantID = &bot.ID
		}
	}

	all, err := l.participants.ListBySession(ctx, session.ID)
	if err != nil {
		outcome.Result = outcomeError
		outcome.Error = err.Error()
		return outcome
	}
	totalQty := 0
	for _, p := range all {
		totalQty += p.Quantity
	}

	finalTier := TierForFill(totalQty, session.TargetMoq)
	if err := l.sessions.SetTier(ctx, session.ID, finalTier); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to persist final tier")
	}

	l.issueTierRefunds(ctx, session, real, finalTier)

	// The platform bot never becomes a buyer: it is removed before orders
	// are cut regardless of which pass created it.
	if botParticipantID != nil {
		if err := l.botFiller.Remove(ctx, session.ID, *botParticipantID); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to remove platform bot")
		}
	}

	paid := l.filterPaid(ctx, session.ID, real)
	if len(paid) == 0 {
		log.Warn().Str("sessionId", session.ID).Msg("no paid participants at settlement, failing session")
		if _, err := l.sessions.TryUpdateStatus(ctx, session.ID, model.SessionStatusFailed); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to mark session failed")
		}
		outcome.Result = outcomeFailed
		return outcome
	}

	lines := make([]client.OrderLine, 0, len(paid))
	for _, p := range paid {
		lines = append(lines, client.OrderLine{
			UserID:        p.UserID,
			ParticipantID: p.ID,
			ProductID:     session.ProductID,
			VariantID:     p.VariantID,
			Quantity:      p.Quantity,
			UnitPrice:     session.TierPrice(finalTier),
		})
	}

	created, err := l.orders.BulkCreate(ctx, session.ID, lines)
	if err != nil {
		// Give the next sweep another chance at order creation.
		log.Error().Err(err).Str("sessionId", session.ID).Msg("bulk order creation failed, reverting session")
		if _, revertErr := l.sessions.TryUpdateStatus(ctx, session.ID, model.SessionStatusForming); revertErr != nil {
			log.Error().Err(revertErr).Str("sessionId", session.ID).Msg("failed to revert session after order failure")
		}
		outcome.Result = outcomeError
		outcome.Error = err.Error()
		return outcome
	}

	if _, err := l.sessions.TryUpdateStatus(ctx, session.ID, model.SessionStatusOrdersCreated); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to mark orders created")
	}

	l.spawnNextDay(ctx, session)

	log.Info().
		Str("sessionId", session.ID).
		Int("tier", int(finalTier)).
		Int("ordersCreated", created).
		Msg("session confirmed")

	outcome.Result = outcomeConfirmed
	outcome.OrdersCreated = created
	return outcome
}

func (l *LifecycleService) failSession(ctx context.Context, session *model.Session, outcome ExpirationOutcome, spawn bool) ExpirationOutcome {
	claimed, err := l.sessions.TryUpdateStatus(ctx, session.ID, model.SessionStatusFailed)
	if err != nil {
		outcome.Result = outcomeError
		outcome.Error = err.Error()
		return outcome
	}
	if !claimed {
		outcome.Result = outcomeSkipped
		return outcome
	}

	if err := l.payment.RefundSession(ctx, session.ID, "Group buying session expired without reaching minimum order quantity"); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to refund expired session")
	}

	if spawn {
		l.spawnNextDay(ctx, session)
	}

	log.Info().Str("sessionId", session.ID).Msg("session failed, refunds requested")
	outcome.Result = outcomeFailed
	return outcome
}

// issueTierRefunds credits each real participant the difference between
// the base price they paid and the final tier price. Wallet failures are
// logged and skipped; a missed credit is recoverable from the logs while
// a blocked settlement is not.
func (l *LifecycleService) issueTierRefunds(ctx context.Context, session *model.Session, real []model.Participant, tier model.Tier) {
	refundPerUnit := session.GroupPrice - session.TierPrice(tier)
	if refundPerUnit <= 0 {
		return
	}

	for _, p := range real {
		amount := refundPerUnit * int64(p.Quantity)
		err := l.wallet.Credit(ctx, client.CreditParams{
			UserID:      p.UserID,
			Amount:      amount,
			Description: fmt.Sprintf("Group buying refund - Session %s (Tier %d%%)", session.SessionCode, int(tier)),
			Reference:   fmt.Sprintf("GROUP_REFUND_%s_%s", session.ID, p.ID),
			Metadata: map[string]any{
				"sessionId":         session.ID,
				"participantId":     p.ID,
				"basePricePerUnit":  session.GroupPrice,
				"finalPricePerUnit": session.TierPrice(tier),
				"refundPerUnit":     refundPerUnit,
				"quantity":          p.Quantity,
			},
		})
		if err != nil {
			log.Error().Err(err).
				Str("sessionId", session.ID).
				Str("participantId", p.ID).
				Int64("amount", amount).
				Msg("tier refund credit failed")
			continue
		}

		log.Info().
			Str("sessionId", session.ID).
			Str("participantId", p.ID).
			Int64("amount", amount).
			Msg("tier refund credited")
	}
}

// filterPaid keeps only participants with a settled payment record.
// A record lookup failure counts the participant as unpaid.
func (l *LifecycleService) filterPaid(ctx context.Context, sessionID string, participants []model.Participant) []model.Participant {
	paid := make([]model.Participant, 0, len(participants))
	for _, p := range participants {
		ok, err := l.payments.HasPaid(ctx, p.ID)
		if err != nil {
			log.Error().Err(err).
				Str("sessionId", sessionID).
				Str("participantId", p.ID).
				Msg("payment status lookup failed, treating participant as unpaid")
			continue
		}
		if ok {
			paid = append(paid, p)
		}
	}
	return paid
}

// ManualExpire force-expires a single session and runs it through the
// normal settlement path.
func (l *LifecycleService) ManualExpire(ctx context.Context, sessionID string) (*ExpirationOutcome, error) {
	session, err := l.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.Status.Terminal() {
		return nil, apperrors.Conflict("Session is already settled")
	}

	if err := l.sessions.SetEndTime(ctx, sessionID, time.Now().Add(-time.Second)); err != nil {
		return nil, apperrors.Database(err)
	}

	outcomes, err := l.ProcessExpired(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to process expired sessions").WithCause(err)
	}
	for i := range outcomes {
		if outcomes[i].SessionID == sessionID {
			return &outcomes[i], nil
		}
	}
	return nil, apperrors.Internal(fmt.Sprintf("Session %s was not picked up by the expiration pass", sessionID))
}

// spawnNextDay opens tomorrow's session for the same product so the daily
// cadence continues. Best effort: a failure here only costs one day.
func (l *LifecycleService) spawnNextDay(ctx context.Context, prev *model.Session) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	end := time.Date(now.Year(), now.Month(), now.Day()+1, 23, 59, 59, 0, now.Location())

	productRef := prev.ProductID
	if len(productRef) > 8 {
		productRef = productRef[:8]
	}
	ts := fmt.Sprintf("%d", now.UnixMilli())
	code := fmt.Sprintf("GB-%s-%s", productRef, ts[len(ts)-6:])

	next, err := l.creator.Create(ctx, CreateSessionInput{
		ProductID:      prev.ProductID,
		FactoryID:      prev.FactoryID,
		FactoryOwnerID: prev.FactoryOwnerID,
		SessionCode:    code,
		TargetMoq:      prev.TargetMoq,
		GroupPrice:     prev.GroupPrice,
		PriceTier25:    prev.PriceTier25,
		PriceTier50:    prev.PriceTier50,
		PriceTier75:    prev.PriceTier75,
		PriceTier100:   prev.PriceTier100,
		GrosirUnitSize: prev.GrosirUnitSize,
		StartTime:      &start,
		EndTime:        end,
	})
	if err != nil {
		log.Error().Err(err).
			Str("previousSessionId", prev.ID).
			Str("productId", prev.ProductID).
			Msg("failed to spawn next-day session")
		return
	}

	log.Info().
		Str("previousSessionId", prev.ID).
		Str("sessionId", next.ID).
		Str("sessionCode", next.SessionCode).
		Msg("next-day session created")
}

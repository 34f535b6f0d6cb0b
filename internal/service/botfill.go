package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lakumart/groupbuy-server-go/internal/model"
	"github.com/lakumart/groupbuy-server-go/internal/repository"
)

// Bot payment reference prefixes. Pre-emptive fills happen in the
// near-expiration window; plain fills happen at settlement.
const (
	BotRefPreemptive = "BOT-PREEMPTIVE"
	BotRefSettlement = "BOT"
)

// BotFiller injects synthetic demand so every session settles with at least
// 25% apparent fill. Synthetic participants never pay and never generate
// orders; they exist only to drag the tier price down for real buyers.
type BotFiller struct {
	sessions     repository.SessionRepository
	participants repository.ParticipantRepository
	payments     repository.PaymentRecordRepository
	botUserID    string
}

func NewBotFiller(
	sessions repository.SessionRepository,
	participants repository.ParticipantRepository,
	payments repository.PaymentRecordRepository,
	botUserID string,
) *BotFiller {
	return &BotFiller{
		sessions:     sessions,
		participants: participants,
		payments:     payments,
		botUserID:    botUserID,
	}
}

// Enabled reports whether a bot identity is configured. When it is not,
// fills are skipped entirely and sessions settle on real demand alone.
func (b *BotFiller) Enabled() bool {
	return b.botUserID != ""
}

// Fill creates one bot participant sized to lift the session from
// realQuantity to 25% of the target MOQ, attaches it to the session and
// writes a zero-value paid record for audit. Returns (nil, nil) when no
// bot is needed or bots are disabled.
func (b *BotFiller) Fill(ctx context.Context, session *model.Session, realQuantity int, refPrefix string) (*model.Participant, error) {
	botQuantity := BotQuantityFor(session.TargetMoq, realQuantity)
	if botQuantity <= 0 {
		return nil, nil
	}

	if !b.Enabled() {
		log.Warn().
			Str("sessionId", session.ID).
			Msg("BOT_USER_ID not configured - skipping bot creation")
		return nil, nil
	}

	// Bot joins at base price; actual tier math happens at settlement.
	bot, err := b.participants.Create(ctx, model.CreateParticipantParams{
		SessionID:  session.ID,
		UserID:     b.botUserID,
		Quantity:   botQuantity,
		VariantID:  nil,
		UnitPrice:  session.GroupPrice,
		TotalPrice: session.GroupPrice * int64(botQuantity),
		IsBot:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create bot participant: %w", err)
	}

	if err := b.sessions.SetBotInfo(ctx, session.ID, bot.ID, botQuantity); err != nil {
		return nil, fmt.Errorf("attach bot to session: %w", err)
	}

	// Audit record is best-effort: the bot still raises the fill percentage
	// without it.
	_, err = b.payments.CreateBotRecord(ctx, model.CreateBotPaymentParams{
		UserID:        b.botUserID,
		SessionID:     session.ID,
		ParticipantID: bot.ID,
		Reference:     fmt.Sprintf("%s-%s-%s", refPrefix, session.ID, bot.ID),
	})
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", session.ID).
			Str("botParticipantId", bot.ID).
			Msg("failed to create bot payment record")
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("sessionCode", session.SessionCode).
		Int("botQuantity", botQuantity).
		Int("realQuantity", realQuantity).
		Int("totalNow", realQuantity+botQuantity).
		Msg("bot participant created to reach 25% fill")

	return bot, nil
}

// Remove deletes a bot participant and detaches it from the session. Bots
// are always removed before downstream orders are created.
func (b *BotFiller) Remove(ctx context.Context, sessionID, botParticipantID string) error {
	if err := b.participants.DeleteByID(ctx, botParticipantID); err != nil {
		return fmt.Errorf("delete bot participant: %w", err)
	}
	if err := b.sessions.ClearBotInfo(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session bot info: %w", err)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("botParticipantId", botParticipantID).
		Msg("bot participant removed")
	return nil
}

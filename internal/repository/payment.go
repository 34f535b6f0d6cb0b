package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lakumart/groupbuy-server-go/internal/database"
	"github.com/lakumart/groupbuy-server-go/internal/model"
)

type PaymentRecordRepository interface {
	// CreateBotRecord inserts a zero-amount paid record for a synthetic
	// participant so the ledger stays auditable. No escrow, no real money.
	CreateBotRecord(ctx context.Context, params model.CreateBotPaymentParams) (*model.PaymentRecord, error)
	ListByParticipant(ctx context.Context, participantID string) ([]model.PaymentRecord, error)
	HasPaid(ctx context.Context, participantID string) (bool, error)

	WithTx(tx *sqlx.Tx) PaymentRecordRepository
}

type paymentRecordRepo struct {
	db database.DBTX
}

func NewPaymentRecordRepository(db *sqlx.DB) PaymentRecordRepository {
	return &paymentRecordRepo{db: db}
}

func (r *paymentRecordRepo) WithTx(tx *sqlx.Tx) PaymentRecordRepository {
	return &paymentRecordRepo{db: tx}
}

func (r *paymentRecordRepo) CreateBotRecord(ctx context.Context, params model.CreateBotPaymentParams) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO payment_records (
			id, user_id, session_id, participant_id,
			order_amount, total_amount, method, status, is_escrow, paid_at, reference
		)
		VALUES ($1, $2, $3, $4, 0, 0, $5, 'paid', FALSE, NOW(), $6)
		RETURNING *
	`, uuid.NewString(), params.UserID, params.SessionID, params.ParticipantID,
		model.PaymentMethodBot, params.Reference)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *paymentRecordRepo) ListByParticipant(ctx context.Context, participantID string) ([]model.PaymentRecord, error) {
	records := []model.PaymentRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM payment_records WHERE participant_id = $1 ORDER BY created_at ASC
	`, participantID)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *paymentRecordRepo) HasPaid(ctx context.Context, participantID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM payment_records
		WHERE participant_id = $1 AND status = 'paid'
	`, participantID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

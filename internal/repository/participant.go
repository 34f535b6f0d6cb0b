package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/lakumart/groupbuy-server-go/internal/database"
	"github.com/lakumart/groupbuy-server-go/internal/model"
)

type ParticipantRepository interface {
	Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error)
	FindByID(ctx context.Context, id string) (*model.Participant, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error)
	ListReal(ctx context.Context, sessionID string) ([]model.Participant, error)
	Stats(ctx context.Context, sessionID string) (*model.ParticipantStats, error)
	Count(ctx context.Context, sessionID string) (int, error)

	// DeleteUnlinked removes a user's participant rows from a session as long
	// as no downstream order has been linked. Returns the number of rows
	// removed; zero means the user either never joined or is already ordered.
	DeleteUnlinked(ctx context.Context, sessionID, userID string) (int64, error)

	DeleteByID(ctx context.Context, id string) error
	LinkOrder(ctx context.Context, participantID, orderID string) error

	WithTx(tx *sqlx.Tx) ParticipantRepository
}

type participantRepo struct {
	db database.DBTX
}

func NewParticipantRepository(db *sqlx.DB) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) WithTx(tx *sqlx.Tx) ParticipantRepository {
	return &participantRepo{db: tx}
}

func (r *participantRepo) Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error) {
	var participant model.Participant
	err := r.db.GetContext(ctx, &participant, `
		INSERT INTO participants (session_id, user_id, quantity, variant_id, unit_price, total_price, is_bot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.SessionID, params.UserID, params.Quantity, params.VariantID,
		params.UnitPrice, params.TotalPrice, params.IsBot)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	var participant model.Participant
	err := r.db.GetContext(ctx, &participant, `
		SELECT * FROM participants WHERE id = $1
	`, id)
	return HandleNotFound(&participant, err)
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error) {
	participants := []model.Participant{}
	err := r.db.SelectContext(ctx, &participants, `
		SELECT * FROM participants WHERE session_id = $1 ORDER BY joined_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantRepo) ListReal(ctx context.Context, sessionID string) ([]model.Participant, error) {
	participants := []model.Participant{}
	err := r.db.SelectContext(ctx, &participants, `
		SELECT * FROM participants
		WHERE session_id = $1 AND is_bot = FALSE
		ORDER BY joined_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantRepo) Stats(ctx context.Context, sessionID string) (*model.ParticipantStats, error) {
	var stats model.ParticipantStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS participant_count,
			COALESCE(SUM(quantity), 0) AS total_quantity,
			COALESCE(SUM(total_price), 0) AS total_revenue
		FROM participants
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *participantRepo) Count(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM participants WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *participantRepo) DeleteUnlinked(ctx context.Context, sessionID, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM participants
		WHERE session_id = $1 AND user_id = $2 AND order_id IS NULL
	`, sessionID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *participantRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	return err
}

func (r *participantRepo) LinkOrder(ctx context.Context, participantID, orderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET order_id = $2 WHERE id = $1
	`, participantID, orderID)
	return err
}

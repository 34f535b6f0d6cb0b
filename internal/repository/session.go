package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lakumart/groupbuy-server-go/internal/database"
	"github.com/lakumart/groupbuy-server-go/internal/model"
)

type SessionRepository interface {
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindByCode(ctx context.Context, code string) (*model.Session, error)
	List(ctx context.Context, filters model.SessionFilters) ([]model.Session, int, error)
	Update(ctx context.Context, id string, patch model.SessionPatch) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	CodeExists(ctx context.Context, code string) (bool, error)

	// TryUpdateStatus performs the conditional status transition that makes
	// expiration processing idempotent: the row is only touched when its
	// status differs from the target, and the return value reports whether
	// this caller won the claim. A false return is not an error.
	TryUpdateStatus(ctx context.Context, id string, status model.SessionStatus) (bool, error)

	SetEndTime(ctx context.Context, id string, endTime time.Time) error
	SetBotInfo(ctx context.Context, id string, botParticipantID string, botQuantity int) error
	ClearBotInfo(ctx context.Context, id string) error
	SetWarehouseInfo(ctx context.Context, id string, patch model.WarehousePatch) error
	SetTier(ctx context.Context, id string, tier model.Tier) error
	MarkProductionStarted(ctx context.Context, id string) error

	FindExpired(ctx context.Context) ([]model.Session, error)
	FindNearingExpiration(ctx context.Context, from, to time.Time) ([]model.Session, error)

	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (
			session_code, product_id, factory_id, factory_owner_id,
			target_moq, group_price,
			price_tier_25, price_tier_50, price_tier_75, price_tier_100,
			current_tier, grosir_unit_size, start_time, end_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 25, $11, $12, $13)
		RETURNING *
	`,
		params.SessionCode, params.ProductID, params.FactoryID, params.FactoryOwnerID,
		params.TargetMoq, params.GroupPrice,
		params.PriceTier25, params.PriceTier50, params.PriceTier75, params.PriceTier100,
		params.GrosirUnitSize, params.StartTime, params.EndTime)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE session_code = $1
	`, code)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) List(ctx context.Context, filters model.SessionFilters) ([]model.Session, int, error) {
	conds := []string{"TRUE"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != "" {
		conds = append(conds, "status = "+arg(filters.Status))
	}
	if filters.FactoryID != "" {
		conds = append(conds, "factory_id = "+arg(filters.FactoryID))
	}
	if filters.ProductID != "" {
		conds = append(conds, "product_id = "+arg(filters.ProductID))
	}
	if filters.ActiveOnly {
		conds = append(conds, "end_time > NOW()")
		conds = append(conds, "status IN ('forming', 'active', 'moq_reached')")
	}
	if filters.Search != "" {
		conds = append(conds, "session_code ILIKE '%' || "+arg(filters.Search)+" || '%'")
	}

	where := strings.Join(conds, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM sessions WHERE "+where, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM sessions WHERE " + where +
		" ORDER BY created_at DESC LIMIT " + arg(filters.Limit) + " OFFSET " + arg(filters.Offset)

	sessions := []model.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *sessionRepo) Update(ctx context.Context, id string, patch model.SessionPatch) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			target_moq = COALESCE($2, target_moq),
			group_price = COALESCE($3, group_price),
			end_time = COALESCE($4, end_time),
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, patch.TargetMoq, patch.GroupPrice, patch.EndTime)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *sessionRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM sessions WHERE session_code = $1
	`, code)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *sessionRepo) TryUpdateStatus(ctx context.Context, id string, status model.SessionStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = $2,
			moq_reached_at = CASE WHEN $2 = 'moq_reached' THEN NOW() ELSE moq_reached_at END,
			production_completed_at = CASE WHEN $2 = 'success' THEN NOW() ELSE production_completed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status <> $2
	`, id, status)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *sessionRepo) SetEndTime(ctx context.Context, id string, endTime time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET end_time = $2, updated_at = NOW() WHERE id = $1
	`, id, endTime)
	return err
}

func (r *sessionRepo) SetBotInfo(ctx context.Context, id string, botParticipantID string, botQuantity int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			bot_participant_id = $2,
			platform_bot_quantity = $3,
			updated_at = NOW()
		WHERE id = $1
	`, id, botParticipantID, botQuantity)
	return err
}

func (r *sessionRepo) ClearBotInfo(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			bot_participant_id = NULL,
			platform_bot_quantity = 0,
			updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

func (r *sessionRepo) SetWarehouseInfo(ctx context.Context, id string, patch model.WarehousePatch) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			warehouse_check_at = $2,
			warehouse_has_stock = $3,
			grosir_units_needed = $4,
			factory_notify_sent = $5,
			factory_notified_at = $6,
			updated_at = NOW()
		WHERE id = $1
	`, id, patch.CheckedAt, patch.HasStock, patch.GrosirUnitsNeeded,
		patch.FactoryNotifySent, patch.FactoryNotifiedAt)
	return err
}

func (r *sessionRepo) SetTier(ctx context.Context, id string, tier model.Tier) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET current_tier = $2, updated_at = NOW() WHERE id = $1
	`, id, tier)
	return err
}

func (r *sessionRepo) MarkProductionStarted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET production_started_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

func (r *sessionRepo) FindExpired(ctx context.Context) ([]model.Session, error) {
	sessions := []model.Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE end_time <= NOW()
		AND status IN ('forming', 'active', 'moq_reached')
		ORDER BY end_time ASC
	`)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) FindNearingExpiration(ctx context.Context, from, to time.Time) ([]model.Session, error) {
	sessions := []model.Session{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE status = 'forming'
		AND bot_participant_id IS NULL
		AND end_time >= $1 AND end_time <= $2
		ORDER BY end_time ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

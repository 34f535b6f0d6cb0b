package model

import "time"

// Session is a single group-buying run for one product. All prices are in
// integer minor currency units. Tier prices must be non-increasing:
// PriceTier25 >= PriceTier50 >= PriceTier75 >= PriceTier100 > 0.
type Session struct {
	ID             string        `db:"id" json:"id"`
	SessionCode    string        `db:"session_code" json:"sessionCode"`
	ProductID      string        `db:"product_id" json:"productId"`
	FactoryID      string        `db:"factory_id" json:"factoryId"`
	FactoryOwnerID string        `db:"factory_owner_id" json:"factoryOwnerId"`
	TargetMoq      int           `db:"target_moq" json:"targetMoq"`
	GroupPrice     int64         `db:"group_price" json:"groupPrice"`
	PriceTier25    int64         `db:"price_tier_25" json:"priceTier25"`
	PriceTier50    int64         `db:"price_tier_50" json:"priceTier50"`
	PriceTier75    int64         `db:"price_tier_75" json:"priceTier75"`
	PriceTier100   int64         `db:"price_tier_100" json:"priceTier100"`
	CurrentTier    Tier          `db:"current_tier" json:"currentTier"`
	GrosirUnitSize int           `db:"grosir_unit_size" json:"grosirUnitSize"`
	Status         SessionStatus `db:"status" json:"status"`
	StartTime      time.Time     `db:"start_time" json:"startTime"`
	EndTime        time.Time     `db:"end_time" json:"endTime"`

	BotParticipantID    *string `db:"bot_participant_id" json:"botParticipantId,omitempty"`
	PlatformBotQuantity int     `db:"platform_bot_quantity" json:"platformBotQuantity"`

	WarehouseCheckAt   *time.Time `db:"warehouse_check_at" json:"warehouseCheckAt,omitempty"`
	WarehouseHasStock  *bool      `db:"warehouse_has_stock" json:"warehouseHasStock,omitempty"`
	GrosirUnitsNeeded  int        `db:"grosir_units_needed" json:"grosirUnitsNeeded"`
	FactoryNotifySent  bool       `db:"factory_notify_sent" json:"factoryNotifySent"`
	FactoryNotifiedAt  *time.Time `db:"factory_notified_at" json:"factoryNotifiedAt,omitempty"`

	MoqReachedAt          *time.Time `db:"moq_reached_at" json:"moqReachedAt,omitempty"`
	ProductionStartedAt   *time.Time `db:"production_started_at" json:"productionStartedAt,omitempty"`
	ProductionCompletedAt *time.Time `db:"production_completed_at" json:"productionCompletedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// TierPrice returns the unit price for the given tier.
func (s *Session) TierPrice(t Tier) int64 {
	switch t {
	case Tier100:
		return s.PriceTier100
	case Tier75:
		return s.PriceTier75
	case Tier50:
		return s.PriceTier50
	default:
		return s.PriceTier25
	}
}

// CurrentPrice is the unit price at the session's currently active tier.
func (s *Session) CurrentPrice() int64 {
	return s.TierPrice(s.CurrentTier)
}

// Expired reports whether the session's window has closed as of now.
func (s *Session) Expired(now time.Time) bool {
	return !s.EndTime.After(now)
}

type CreateSessionParams struct {
	SessionCode    string
	ProductID      string
	FactoryID      string
	FactoryOwnerID string
	TargetMoq      int
	GroupPrice     int64
	PriceTier25    int64
	PriceTier50    int64
	PriceTier75    int64
	PriceTier100   int64
	GrosirUnitSize int
	StartTime      time.Time
	EndTime        time.Time
}

// SessionPatch enumerates every field updatable while a session is forming.
// Nil pointer means "leave unchanged".
type SessionPatch struct {
	TargetMoq  *int
	GroupPrice *int64
	EndTime    *time.Time
}

// WarehousePatch records the outcome of a warehouse demand check.
type WarehousePatch struct {
	CheckedAt         time.Time
	HasStock          bool
	GrosirUnitsNeeded int
	FactoryNotifySent bool
	FactoryNotifiedAt *time.Time
}

type SessionFilters struct {
	Status     SessionStatus
	FactoryID  string
	ProductID  string
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

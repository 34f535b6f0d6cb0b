package model

import "time"

// Participant is one buyer's commitment inside a session. A user may join
// the same session multiple times with different variants. IsBot marks
// synthetic demand injected by the platform; bot rows never produce orders.
type Participant struct {
	ID         string    `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"sessionId"`
	UserID     string    `db:"user_id" json:"userId"`
	Quantity   int       `db:"quantity" json:"quantity"`
	VariantID  *string   `db:"variant_id" json:"variantId,omitempty"`
	UnitPrice  int64     `db:"unit_price" json:"unitPrice"`
	TotalPrice int64     `db:"total_price" json:"totalPrice"`
	IsBot      bool      `db:"is_bot" json:"isBot"`
	OrderID    *string   `db:"order_id" json:"orderId,omitempty"`
	JoinedAt   time.Time `db:"joined_at" json:"joinedAt"`
}

type CreateParticipantParams struct {
	SessionID  string
	UserID     string
	Quantity   int
	VariantID  *string
	UnitPrice  int64
	TotalPrice int64
	IsBot      bool
}

// ParticipantStats is the aggregate the lifecycle engine recomputes on
// every decision: it never caches these numbers.
type ParticipantStats struct {
	ParticipantCount int   `db:"participant_count"`
	TotalQuantity    int   `db:"total_quantity"`
	TotalRevenue     int64 `db:"total_revenue"`
}

package model

import "time"

// PaymentRecord mirrors the payment ledger rows the payment service writes
// for escrow holds. The engine itself only ever inserts zero-value
// platform_bot records and reads paid rows at settlement.
type PaymentRecord struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"userId"`
	SessionID     string        `db:"session_id" json:"sessionId"`
	ParticipantID string        `db:"participant_id" json:"participantId"`
	OrderAmount   int64         `db:"order_amount" json:"orderAmount"`
	TotalAmount   int64         `db:"total_amount" json:"totalAmount"`
	Method        string        `db:"method" json:"method"`
	Status        PaymentStatus `db:"status" json:"status"`
	IsEscrow      bool          `db:"is_escrow" json:"isEscrow"`
	Reference     string        `db:"reference" json:"reference"`
	PaidAt        *time.Time    `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
}

type CreateBotPaymentParams struct {
	UserID        string
	SessionID     string
	ParticipantID string
	Reference     string
}

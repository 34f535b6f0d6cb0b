package model

type SessionStatus string

const (
	SessionStatusForming       SessionStatus = "forming"
	SessionStatusActive        SessionStatus = "active"
	SessionStatusMoqReached    SessionStatus = "moq_reached"
	SessionStatusPendingStock  SessionStatus = "pending_stock"
	SessionStatusStockReceived SessionStatus = "stock_received"
	SessionStatusSuccess       SessionStatus = "success"
	SessionStatusFailed        SessionStatus = "failed"
	SessionStatusCancelled     SessionStatus = "cancelled"
	SessionStatusOrdersCreated SessionStatus = "orders_created"
)

// Terminal reports whether no further lifecycle transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSuccess || s == SessionStatusFailed || s == SessionStatusCancelled
}

// Joinable reports whether new participants may still enter the session.
func (s SessionStatus) Joinable() bool {
	return s == SessionStatusForming || s == SessionStatusActive
}

// Tier is one of the four discount levels, named by the fill percentage
// threshold that unlocks it.
type Tier int

const (
	Tier25  Tier = 25
	Tier50  Tier = 50
	Tier75  Tier = 75
	Tier100 Tier = 100
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// PaymentMethodBot marks the zero-value audit record written for a
// synthetic participant. No real money moves under this method.
const PaymentMethodBot = "platform_bot"

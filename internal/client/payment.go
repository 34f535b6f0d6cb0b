package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lakumart/groupbuy-server-go/internal/config"
)

// EscrowParams is the escrow hold request: the buyer's money is held
// against the session and released to the factory only when production
// completes, or refunded when the session fails.
type EscrowParams struct {
	UserID        string `json:"userId"`
	SessionID     string `json:"groupSessionId"`
	ParticipantID string `json:"participantId"`
	Amount        int64  `json:"amount"`
	ExpiresAt     string `json:"expiresAt"`
	IsEscrow      bool   `json:"isEscrow"`
	FactoryID     string `json:"factoryId"`
}

type EscrowResult struct {
	Payment    json.RawMessage `json:"payment"`
	PaymentURL string          `json:"paymentUrl"`
	InvoiceID  string          `json:"invoiceId"`
}

type Payment interface {
	CreateEscrow(ctx context.Context, params EscrowParams) (*EscrowResult, error)
	ReleaseEscrow(ctx context.Context, sessionID string) error
	RefundSession(ctx context.Context, sessionID, reason string) error
}

type paymentClient struct {
	httpClient
}

func NewPaymentClient(baseURL string) Payment {
	return &paymentClient{newHTTPClient(baseURL)}
}

func (c *paymentClient) CreateEscrow(ctx context.Context, params EscrowParams) (*EscrowResult, error) {
	params.IsEscrow = true
	if params.ExpiresAt == "" {
		params.ExpiresAt = time.Now().Add(24 * time.Hour).Format(time.RFC3339)
	}

	var envelope struct {
		Data EscrowResult `json:"data"`
	}
	err := withRetry(ctx, config.EscrowRetryInitialWait, func() error {
		return c.postJSON(ctx, "/api/payments/escrow", params, &envelope)
	})
	if err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *paymentClient) ReleaseEscrow(ctx context.Context, sessionID string) error {
	body := map[string]string{"groupSessionId": sessionID}
	return withRetry(ctx, config.EscrowRetryInitialWait, func() error {
		return c.postJSON(ctx, "/api/payments/release-escrow", body, nil)
	})
}

func (c *paymentClient) RefundSession(ctx context.Context, sessionID, reason string) error {
	body := map[string]string{
		"groupSessionId": sessionID,
		"reason":         reason,
	}
	return withRetry(ctx, config.RefundRetryInitialWait, func() error {
		return c.postJSON(ctx, "/api/payments/refund-session", body, nil)
	})
}

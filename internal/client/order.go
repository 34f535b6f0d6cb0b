package client

import (
	"context"

	"github.com/lakumart/groupbuy-server-go/internal/config"
)

// OrderLine is one participant's share of a session's bulk order.
type OrderLine struct {
	UserID        string  `json:"userId"`
	ParticipantID string  `json:"participantId"`
	ProductID     string  `json:"productId"`
	VariantID     *string `json:"variantId,omitempty"`
	Quantity      int     `json:"quantity"`
	UnitPrice     int64   `json:"unitPrice"`
}

type Order interface {
	// BulkCreate turns the paid participants of a settled session into real
	// orders in a single call. Retried; order-service deduplicates on
	// (session, participant) so replays are safe.
	BulkCreate(ctx context.Context, sessionID string, lines []OrderLine) (int, error)
}

type orderClient struct {
	httpClient
}

func NewOrderClient(baseURL string) Order {
	return &orderClient{newHTTPClient(baseURL)}
}

func (c *orderClient) BulkCreate(ctx context.Context, sessionID string, lines []OrderLine) (int, error) {
	body := map[string]any{
		"groupSessionId": sessionID,
		"participants":   lines,
	}

	var result struct {
		OrdersCreated int `json:"ordersCreated"`
	}
	err := withRetry(ctx, config.OrderRetryInitialWait, func() error {
		return c.postJSON(ctx, "/api/orders/bulk", body, &result)
	})
	if err != nil {
		return 0, err
	}
	return result.OrdersCreated, nil
}

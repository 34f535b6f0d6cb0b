package client

import "context"

// CreditParams credits a user's wallet, typically a tier refund after
// settlement. Reference doubles as the wallet-side idempotency key.
type CreditParams struct {
	UserID      string         `json:"userId"`
	Amount      int64          `json:"amount"`
	Description string         `json:"description"`
	Reference   string         `json:"reference"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Wallet interface {
	// Credit is fire-and-continue: callers log failures and move on, each
	// credit is independently retryable by reference.
	Credit(ctx context.Context, params CreditParams) error
}

type walletClient struct {
	httpClient
}

func NewWalletClient(baseURL string) Wallet {
	return &walletClient{newHTTPClient(baseURL)}
}

func (c *walletClient) Credit(ctx context.Context, params CreditParams) error {
	return c.postJSON(ctx, "/api/wallet/credit", params, nil)
}

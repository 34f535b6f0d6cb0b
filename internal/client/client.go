// Package client holds the HTTP clients for the engine's peer services:
// payment, warehouse, order and wallet. All calls use a fixed request
// timeout; operations that must survive transient peer failures are wrapped
// in bounded exponential backoff. There is no circuit breaker: exhausted
// retries surface as an error and the caller decides between reporting and
// failing open.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lakumart/groupbuy-server-go/internal/config"
)

type httpClient struct {
	baseURL string
	hc      *http.Client
}

func newHTTPClient(baseURL string) httpClient {
	return httpClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: config.PeerRequestTimeout},
	}
}

func (c httpClient) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c httpClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c httpClient) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var remote struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &remote) == nil {
			if remote.Message != "" {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, remote.Message)
			}
			if remote.Error != "" {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, remote.Error)
			}
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// withRetry runs fn under bounded exponential backoff. Context cancellation
// stops the retry loop early.
func withRetry(ctx context.Context, initialWait time.Duration, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialWait

	return backoff.Retry(fn,
		backoff.WithContext(backoff.WithMaxRetries(bo, config.PeerMaxRetries), ctx))
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
)

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/auth/health-check/", nil, nil, false)
}

// WaitHealthy polls the health endpoint with exponential backoff until it
// succeeds, attempts are exhausted, or ctx is done.
func (c *Client) WaitHealthy(ctx context.Context, attempts uint, delay time.Duration) error {
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error { return c.Health(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("backend not ready", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("backend at %s is not healthy: %w", c.baseURL, err)
	}
	return nil
}

// Package partner pushes issued codes to the external loyalty system.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const savePath = "/cs2/api/membership/save_membership_coupon.php"

type Notifier struct {
	BaseURL     string
	HTTP        *http.Client
	Limiter     *rate.Limiter
	MaxAttempts int
	RetryDelay  time.Duration
}

func NewNotifier(baseURL string, rps float64, burst int) *Notifier {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &Notifier{
		BaseURL:     baseURL,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		MaxAttempts: 3,
		RetryDelay:  500 * time.Millisecond,
	}
}

// Notify POSTs {"membership_code": code} to the partner endpoint and returns
// the raw response body. The partner acknowledgement format is opaque; the
// body is not parsed. Transport errors and 5xx responses are retried up to
// MaxAttempts with a fixed delay; other non-2xx statuses fail immediately.
func (n *Notifier) Notify(ctx context.Context, code string) ([]byte, error) {
	payload, _ := json.Marshal(map[string]string{"membership_code": code})
	if err := n.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= n.MaxAttempts; attempt++ {
		body, retryable, err := n.post(ctx, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt == n.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(n.RetryDelay):
		}
	}
	return nil, lastErr
}

func (n *Notifier) post(ctx context.Context, payload []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+savePath, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.HTTP.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("partner request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("partner response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("partner status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("partner status %d", resp.StatusCode)
	}
	return body, false, nil
}

// Package collectors holds what the vendor API clients share.
package collectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrRateLimited is returned when every attempt was answered with 429.
var ErrRateLimited = errors.New("rate limited")

// Retry bounds the attempts made on a rate-limited endpoint.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry waits a fixed five seconds between up to three attempts.
var DefaultRetry = Retry{Attempts: 3, Backoff: 5 * time.Second}

// Policy is the constant backoff bounded to Attempts tries and cancelled
// with ctx.
func (r Retry) Policy(ctx context.Context) backoff.BackOff {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Backoff), uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// Do sends the request built by newReq, retrying only on 429 Too Many
// Requests. Any other status is handed back with its body unread; transport
// errors are not retried.
func Do(ctx context.Context, client *http.Client, retry Retry, log *zap.Logger, newReq func() (*http.Request, error)) (*http.Response, error) {
	attempt := 0
	op := func() (*http.Response, error) {
		attempt++
		req, err := newReq()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s after %d attempt(s)", ErrRateLimited, req.URL, attempt)
		}
		return resp, nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("Rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}
	return backoff.RetryNotifyWithData(op, retry.Policy(ctx), notify)
}

// StatusError reports an unexpected HTTP status with a trimmed body.
func StatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
}

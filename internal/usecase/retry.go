package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/shelfscan/backend/internal/domain"
)

// RetryPolicy bounds how rate-limited extraction calls are retried. Only
// rate limiting is retried; every other error is returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay added at random, 0..1

	// Sleep and Rand are replaced in tests
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// RetryNotifier is told about each retry before the backoff wait starts
type RetryNotifier func(attempt int, delay time.Duration, err error)

// DefaultRetryPolicy returns the production policy: five attempts starting at 2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Do runs call until it succeeds, fails with a non-rate-limit error, or the
// attempt budget is spent. Exhaustion wraps domain.ErrRetriesExhausted.
func (p RetryPolicy) Do(
	ctx context.Context,
	call func(ctx context.Context) (domain.RawResult, error),
	onRetry RetryNotifier,
) (domain.RawResult, error) {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRateLimited(err) {
			return domain.RawResult{}, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		delay := p.delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return domain.RawResult{}, err
		}
	}

	return domain.RawResult{}, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempts, lastErr)
}

// Backoff returns the wait before retry number attempt (1-based), doubling
// from BaseDelay and capped at MaxDelay
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		attempt = 32
	}
	d := p.BaseDelay << (attempt - 1)
	// d <= 0 means the shift overflowed
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if p.Jitter <= 0 {
		return d
	}
	random := rand.Float64
	if p.Rand != nil {
		random = p.Rand
	}
	return d + time.Duration(random()*p.Jitter*float64(d))
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRateLimited reports whether err signals provider throttling (HTTP 429).
// Errors that are not ProviderErrors are inspected for a "429" marker, as
// some SDKs only report the status inside the message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Status == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "429")
}

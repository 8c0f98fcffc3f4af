// Package retry implements bounded retries with jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// Policy decides whether and when an operation is attempted again.
type Policy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
	MaxAttempts() int
}

// Config sizes an ExponentialPolicy.
type Config struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ExponentialPolicy implements Policy with jittered backoff.
type ExponentialPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	classify    func(error) bool
}

// NewExponentialPolicy builds a policy, filling zero fields with defaults.
func NewExponentialPolicy(cfg Config) *ExponentialPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	return &ExponentialPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		classify:    school.IsTransient,
	}
}

// MaxAttempts returns the total number of attempts allowed, including the first.
func (p *ExponentialPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable after the given attempt (1-based).
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	return p.classify(err)
}

// Backoff returns the wait duration before the attempt following `attempt`.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomDuration(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Do runs op until it succeeds, the policy gives up, or ctx ends. It returns
// the number of attempts made alongside the last error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context, attempt int) error) (int, error) {
	attempt := 0
	for {
		attempt++
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("retry canceled: %w", err)
		}
		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if policy == nil || !policy.ShouldRetry(err, attempt) {
			return attempt, err
		}
		if !Sleep(ctx, policy.Backoff(attempt)) {
			return attempt, fmt.Errorf("retry canceled: %w", ctx.Err())
		}
	}
}

// Sleep pauses for d or until ctx ends. It reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Uniform returns a random duration in [lo, hi].
func Uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + randomDuration(hi-lo+1)
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"mercator-hq/relay/pkg/config"
)

// maxShift caps the exponent so BaseDelay<<i cannot overflow.
const maxShift = 30

// Classified is implemented by attempt outcomes that know whether they are
// worth retrying.
type Classified interface {
	Retryable() bool
}

// Policy is a bounded exponential backoff policy.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// BaseDelay is doubled on every attempt.
	BaseDelay time.Duration

	// Jitter is the width of the random window added to each delay.
	Jitter time.Duration

	// jitter returns a value in [0, n). Nil uses math/rand/v2.
	jitter func(n int64) int64
}

// NewPolicy builds a Policy from retry configuration.
func NewPolicy(cfg config.RetryConfig) *Policy {
	return &Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Jitter:      cfg.Jitter,
	}
}

// DefaultPolicy returns the policy used when nothing is configured:
// five attempts, 1s base delay and 500ms jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: config.DefaultMaxAttempts,
		BaseDelay:   config.DefaultBaseDelay,
		Jitter:      config.DefaultJitter,
	}
}

// WithJitterSource returns a copy of the policy that draws jitter from fn.
// fn must return a value in [0, n).
func (p *Policy) WithJitterSource(fn func(n int64) int64) *Policy {
	cp := *p
	cp.jitter = fn
	return &cp
}

// ShouldRetry reports whether another attempt should follow the attempt with
// the given zero-based index.
func (p *Policy) ShouldRetry(outcome Classified, attemptIndex int) bool {
	if outcome == nil || !outcome.Retryable() {
		return false
	}
	return attemptIndex < p.MaxAttempts-1
}

// DelayFor returns the wait before the attempt following attemptIndex.
func (p *Policy) DelayFor(attemptIndex int) time.Duration {
	shift := attemptIndex
	if shift < 0 {
		shift = 0
	}
	if shift > maxShift {
		shift = maxShift
	}

	delay := p.BaseDelay << uint(shift)
	if delay < 0 {
		delay = 0
	}

	if p.Jitter > 0 {
		delay += time.Duration(p.jitterN(int64(p.Jitter)))
	}
	return delay
}

func (p *Policy) jitterN(n int64) int64 {
	if p.jitter != nil {
		return p.jitter(n)
	}
	return rand.Int64N(n)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the context ended the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

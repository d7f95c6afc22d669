package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdxemberai/gmm-tools/internal/metrics"
	"github.com/gdxemberai/gmm-tools/internal/model"
)

// Policy configures the retry wrapper: attempt budget, backoff schedule,
// per-attempt timeout, and the retryable-error predicate. The per-attempt
// timeout is independent of the backoff delays so retries cannot silently
// exceed the caller's budget.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// The default of 2 gives 3 attempts total.
	MaxRetries int

	// BaseDelay is the first backoff delay; each retry doubles it.
	BaseDelay time.Duration

	// AttemptTimeout bounds a single extraction call. Zero disables the
	// per-attempt deadline.
	AttemptTimeout time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		BaseDelay:      500 * time.Millisecond,
		AttemptTimeout: 20 * time.Second,
	}
}

// Retrier wraps an Extractor with the retry policy. It validates the
// structural invariants of every returned record; an invalid record is a
// retryable parse failure, never accepted silently.
type Retrier struct {
	inner  Extractor
	policy Policy
}

// NewRetrier wraps inner with policy.
func NewRetrier(inner Extractor, policy Policy) *Retrier {
	if policy.Retryable == nil {
		policy.Retryable = DefaultRetryable
	}
	return &Retrier{inner: inner, policy: policy}
}

// Extract attempts extraction up to 1+MaxRetries times with exponential
// backoff between attempts. Fatal errors abort immediately; caller
// cancellation propagates as the context error.
func (r *Retrier) Extract(ctx context.Context, description string) (*model.ParsedCard, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.policy.BaseDelay << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		card, err := r.attempt(ctx, description)
		if err == nil {
			err = card.Validate()
			if err == nil {
				metrics.ExtractionAttempts.WithLabelValues("ok").Inc()
				return card, nil
			}
		}
		metrics.ExtractionAttempts.WithLabelValues("error").Inc()
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !r.policy.Retryable(err) {
			return nil, fmt.Errorf("%w: %v", ErrFailed, err)
		}
		if attempt < r.policy.MaxRetries {
			slog.Warn("extraction attempt failed, retrying",
				"attempt", attempt+1,
				"max_attempts", r.policy.MaxRetries+1,
				"err", err,
			)
		}
	}

	slog.Error("extraction attempts exhausted",
		"attempts", r.policy.MaxRetries+1,
		"err", lastErr,
	)
	return nil, fmt.Errorf("%w: %v", ErrFailed, lastErr)
}

func (r *Retrier) attempt(ctx context.Context, description string) (*model.ParsedCard, error) {
	if r.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
		defer cancel()
	}
	return r.inner.Extract(ctx, description)
}

// Package extract converts free-text listing descriptions into structured
// card records through an external model call, with an explicit retry
// policy around the unreliable boundary.
package extract

import (
	"context"
	"errors"

	"github.com/gdxemberai/gmm-tools/internal/model"
)

// ErrFailed is returned after the retry budget is exhausted or a fatal
// error makes further attempts pointless. The listing could not be parsed.
var ErrFailed = errors.New("extract: listing could not be parsed")

// Extractor converts a listing description into a parsed record.
// Implementations return the record or an error; structural validation
// happens in the retry wrapper so every attempt is checked uniformly.
type Extractor interface {
	Extract(ctx context.Context, description string) (*model.ParsedCard, error)
}

// FatalError marks an error as non-retryable. Auth and configuration
// failures wear it: retrying those only burns the budget.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "extract: fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as non-retryable.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

// DefaultRetryable is the retry predicate used unless a policy overrides
// it: everything is transient except explicit fatal errors and caller
// cancellation. Timeouts, rate limits, and malformed output all retry.
func DefaultRetryable(err error) bool {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Oracle wraps a Provider with a per-call timeout and the fail-closed contract:
// Compare always returns a judgement and never an error.
type Oracle struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
}

func NewOracle(provider Provider, timeout time.Duration, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{provider: provider, timeout: timeout, logger: logger}
}

// Provider returns the wrapped backend.
func (o *Oracle) Provider() Provider {
	return o.provider
}

// Compare asks the provider whether the candidate shows the person registered
// under expectedProfileID. Transport errors, timeouts, panics and malformed
// output all collapse to FailClosed.
func (o *Oracle) Compare(ctx context.Context, referenceURL, candidateURL string, expectedProfileID int64) (j Judgement) {
	logger := o.logger.With("provider", o.provider.Name(), "profile_id", expectedProfileID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("oracle panicked", "panic", r)
			j = FailClosed("oracle panic")
		}
	}()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result, err := o.provider.CompareImages(ctx, &CompareRequest{
		ReferenceURL:     referenceURL,
		CandidateURL:     candidateURL,
		ExpectedProfiles: []int64{expectedProfileID},
	})
	if err != nil {
		logger.Warn("oracle comparison failed", "error", err)
		return FailClosed(failureReason(o.provider.Name(), err))
	}
	if result == nil {
		logger.Warn("oracle returned no judgement")
		return FailClosed(o.provider.Name() + " returned no judgement")
	}

	return *result
}

func failureReason(provider string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out", provider)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("%s request cancelled", provider)
	case errors.Is(err, ErrMalformedResponse):
		return fmt.Sprintf("%s returned a malformed response", provider)
	default:
		return fmt.Sprintf("%s API error", provider)
	}
}

package media

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAuthorization marks a source that requires sign-in or consent.
	ErrAuthorization = errors.New("media source requires authorization")
	// ErrToolFailure marks a terminal external tool failure.
	ErrToolFailure = errors.New("media tool failed")
)

// retryOnce runs step, and on a transient failure refreshes the tool and
// runs step one more time. Authorization failures return at once.
func (a *Acquirer) retryOnce(ctx context.Context, op string, refresh, step func(context.Context) error) error {
	err := step(ctx)
	if err == nil {
		return nil
	}
	if Classify(err) == ClassAuthorization {
		return a.authFailure(op, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %w", ErrToolFailure, op, err)
	}

	a.metrics.IncToolRetry()
	a.logger.Warn("media step failed, refreshing tool and retrying", map[string]any{
		"operation": op,
		"class":     ClassTransient.String(),
		"error":     err.Error(),
	})

	if refresh != nil {
		if rerr := refresh(ctx); rerr != nil {
			a.logger.Warn("tool refresh failed, retrying with current binary", map[string]any{
				"operation": op,
				"error":     rerr.Error(),
			})
		} else {
			a.metrics.IncToolRefresh()
		}
	}

	err = step(ctx)
	if err == nil {
		return nil
	}
	if Classify(err) == ClassAuthorization {
		return a.authFailure(op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrToolFailure, op, err)
}

func (a *Acquirer) authFailure(op string, err error) error {
	a.metrics.IncAuthFailure()
	a.logger.Warn("media source requires authorization", map[string]any{
		"operation": op,
		"class":     ClassAuthorization.String(),
		"error":     err.Error(),
		"hint":      "the source needs a signed-in session; configure cookies for the download tool or use the upload route",
	})
	return fmt.Errorf("%w: %s: %w", ErrAuthorization, op, err)
}

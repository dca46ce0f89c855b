package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"authflow-go/internal/metrics"
)

// DefaultRetryDelay is the fixed pause before the single retry of a
// transient failure.
const DefaultRetryDelay = 500 * time.Millisecond

// retryTransient runs op and, if it fails with a transient *Error, runs it
// exactly once more after delay. Other failures return immediately.
func retryTransient[T any](ctx context.Context, logger *slog.Logger, operation string, delay time.Duration, op func() (T, error)) (T, error) {
	attempt := func() (T, error) {
		res, err := op()
		if err != nil && !IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(2),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.Retries.WithLabelValues(operation).Inc()
			logger.WarnContext(ctx, "transient failure, retrying",
				"operation", operation,
				"error", err,
				"delay", next)
		}),
	)
	if err == nil {
		return res, nil
	}

	// The last attempt's error may still carry the permanent marker.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	// Cancellation of ctx during the pause surfaces as the bare context error.
	var flowErr *Error
	if !errors.As(err, &flowErr) && ctx.Err() != nil {
		err = &Error{Kind: KindTransient, Message: msgRequestAborted, Err: err}
	}
	return res, err
}

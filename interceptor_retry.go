package fins

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryInterceptor creates an interceptor that retries failed operations up
// to maxRetries times with a fixed delay between attempts. Context errors and
// local validation failures (bad addresses, empty payloads) are never
// retried. Pass a nil logger to retry silently.
//
// The client performs no retries on its own; installing one of these
// interceptors is the explicit opt-in.
//
// Example:
//
//	client.SetInterceptor(fins.RetryInterceptor(3, 100*time.Millisecond, logger))
func RetryInterceptor(maxRetries int, delay time.Duration, logger *zap.Logger) Interceptor {
	return retryLoop(maxRetries, logger, func(time.Duration) time.Duration { return delay }, retryableError)
}

// RetryInterceptorWithBackoff retries with exponential backoff: the delay
// doubles after each attempt, capped at maxDelay.
//
// Example:
//
//	// 100ms, 200ms, 400ms, capped at 1s
//	client.SetInterceptor(fins.RetryInterceptorWithBackoff(3, 100*time.Millisecond, time.Second, logger))
func RetryInterceptorWithBackoff(maxRetries int, initialDelay, maxDelay time.Duration, logger *zap.Logger) Interceptor {
	// The previous delay is per-operation state owned by the retry loop; it
	// starts at zero on every operation, so the schedule restarts at
	// initialDelay each time instead of carrying over between operations.
	return retryLoop(maxRetries, logger, func(prev time.Duration) time.Duration {
		if prev == 0 {
			return initialDelay
		}
		next := prev * 2
		if next > maxDelay {
			next = maxDelay
		}
		return next
	}, retryableError)
}

// RetryInterceptorConditional retries only errors for which shouldRetry
// returns true.
func RetryInterceptorConditional(maxRetries int, delay time.Duration, shouldRetry func(error) bool, logger *zap.Logger) Interceptor {
	return retryLoop(maxRetries, logger, func(time.Duration) time.Duration { return delay }, shouldRetry)
}

func retryLoop(maxRetries int, logger *zap.Logger, nextDelay func(time.Duration) time.Duration, shouldRetry func(error) bool) Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("FINS.retry")

	return func(c *InterceptorCtx) (interface{}, error) {
		var result interface{}
		var err error
		var delay time.Duration
		ctx := c.Context()
		info := c.Info()

		for attempt := 0; attempt <= maxRetries; attempt++ {
			result, err = c.Invoke(ctx)
			if err == nil {
				return result, nil
			}
			if ctx.Err() != nil {
				return nil, err
			}
			if !shouldRetry(err) {
				return result, err
			}
			if attempt < maxRetries {
				delay = nextDelay(delay)
				logger.Warn("retrying",
					zap.String("operation", string(info.Operation)),
					zap.Int("attempt", attempt+1),
					zap.Int("max", maxRetries+1),
					zap.Duration("delay", delay),
					zap.Error(err),
				)
				time.Sleep(delay)
			}
		}

		return result, fmt.Errorf("operation failed after %d attempts: %w", maxRetries+1, err)
	}
}

// retryableError is the default retry predicate: transient transport
// failures are retried, local validation errors are not. Controller-reported
// errors are retried too, since some end codes clear after a PLC mode change.
func retryableError(err error) bool {
	var addrErr AddressError
	var closedErr ClientClosedError
	if errors.As(err, &addrErr) || errors.As(err, &closedErr) {
		return false
	}
	return true
}

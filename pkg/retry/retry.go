package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v5"
	"github.com/lib/pq"
)

// Postgres error classes that mean "infrastructure hiccup, try again":
// 08 connection exception, 53 insufficient resources, 57 operator
// intervention (admin shutdown, crash recovery).
var transientPgClasses = map[string]bool{
	"08": true,
	"53": true,
	"57": true,
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// AsTransient marks an error as retryable regardless of its type. Used for
// conditions only the caller can classify, like a 429/5xx bulk response.
func AsTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether an error is worth retrying. Logical errors
// (bad SQL, schema mismatch, constraint violations) are not: retrying them
// can only delay the run's failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *transientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := string(pqErr.Code.Class())
		return transientPgClasses[class]
	}

	return false
}

// IsTransientStatus reports whether an HTTP status from the search index is
// worth retrying.
func IsTransientStatus(code int) bool {
	return code == 429 || code >= 500
}

// Do runs op with exponential backoff, retrying only transient errors up to
// maxAttempts. The last error surfaces once attempts are exhausted; a
// non-transient error surfaces immediately.
func Do[T any](ctx context.Context, logger ectologger.Logger, label string, maxAttempts int, baseDelay time.Duration, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		result, err := op()
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return result, backoff.Permanent(err)
		}
		logger.WithContext(ctx).WithError(err).Warnf("%s failed with transient error (attempt %d/%d)", label, attempt, maxAttempts)
		return result, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
}

package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/moss/pkg/retry"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func TestIsTransient(t *testing.T) {
	t.Run("nil is not transient", func(t *testing.T) {
		assert.False(t, retry.IsTransient(nil))
	})

	t.Run("marked errors are transient", func(t *testing.T) {
		assert.True(t, retry.IsTransient(retry.AsTransient(errors.New("overloaded"))))
	})

	t.Run("deadline exceeded is transient", func(t *testing.T) {
		assert.True(t, retry.IsTransient(context.DeadlineExceeded))
	})

	t.Run("connection-class postgres errors are transient", func(t *testing.T) {
		err := &pq.Error{Code: "08006"}
		assert.True(t, retry.IsTransient(err))
	})

	t.Run("logical postgres errors are not transient", func(t *testing.T) {
		// 42P01 undefined_table: retrying cannot fix a bad query
		err := &pq.Error{Code: "42P01"}
		assert.False(t, retry.IsTransient(err))
	})

	t.Run("plain errors are not transient", func(t *testing.T) {
		assert.False(t, retry.IsTransient(errors.New("mapping conflict")))
	})
}

func TestIsTransientStatus(t *testing.T) {
	assert.True(t, retry.IsTransientStatus(429))
	assert.True(t, retry.IsTransientStatus(500))
	assert.True(t, retry.IsTransientStatus(503))
	assert.False(t, retry.IsTransientStatus(400))
	assert.False(t, retry.IsTransientStatus(404))
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	logger := getTestLogger()

	t.Run("returns the first success", func(t *testing.T) {
		calls := 0
		result, err := retry.Do(ctx, logger, "op", 3, time.Millisecond, func() (string, error) {
			calls++
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		result, err := retry.Do(ctx, logger, "op", 5, time.Millisecond, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, retry.AsTransient(errors.New("connection reset"))
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, result)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-transient errors fail immediately", func(t *testing.T) {
		calls := 0
		logical := errors.New("undefined column")
		_, err := retry.Do(ctx, logger, "op", 5, time.Millisecond, func() (int, error) {
			calls++
			return 0, logical
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, logical)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		_, err := retry.Do(ctx, logger, "op", 3, time.Millisecond, func() (int, error) {
			calls++
			return 0, retry.AsTransient(errors.New("still down"))
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}

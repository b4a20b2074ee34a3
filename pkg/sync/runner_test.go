package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/moss/pkg/state"
)

func TestRunnerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("runs a cycle immediately on start", func(t *testing.T) {
		f := newFixture()
		f.addFilm("film-1", "Inception", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

		runner := NewRunner(f.orchestrator(t), time.Hour, getTestLogger())
		require.NoError(t, runner.Start(ctx))
		defer runner.Stop(ctx)

		assert.Eventually(t, func() bool {
			runState, err := f.state.GetRunState(ctx)
			return err == nil && runState == state.RunStateFinish
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("double start is rejected", func(t *testing.T) {
		f := newFixture()
		runner := NewRunner(f.orchestrator(t), time.Hour, getTestLogger())

		require.NoError(t, runner.Start(ctx))
		defer runner.Stop(ctx)

		assert.ErrorIs(t, runner.Start(ctx), ErrRunnerAlreadyRunning)
	})

	t.Run("stop waits for the loop and is idempotent", func(t *testing.T) {
		f := newFixture()
		runner := NewRunner(f.orchestrator(t), time.Hour, getTestLogger())

		require.NoError(t, runner.Start(ctx))
		require.NoError(t, runner.Stop(ctx))
		assert.False(t, runner.IsRunning())
		require.NoError(t, runner.Stop(ctx))
	})

	t.Run("a stopped runner can be started again", func(t *testing.T) {
		f := newFixture()
		runner := NewRunner(f.orchestrator(t), time.Hour, getTestLogger())

		require.NoError(t, runner.Start(ctx))
		require.NoError(t, runner.Stop(ctx))

		f.addFilm("film-1", "Inception", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

		require.NoError(t, runner.Start(ctx))
		defer runner.Stop(ctx)
		assert.True(t, runner.IsRunning())

		assert.Eventually(t, func() bool {
			_, ok := f.loader.film("film-1")
			return ok
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("trigger requests an immediate cycle", func(t *testing.T) {
		f := newFixture()
		runner := NewRunner(f.orchestrator(t), time.Hour, getTestLogger())

		assert.False(t, runner.Trigger(), "stopped runner cannot be triggered")

		require.NoError(t, runner.Start(ctx))
		defer runner.Stop(ctx)

		// Let the initial cycle settle before mutating the fake source.
		assert.Eventually(t, func() bool {
			runState, err := f.state.GetRunState(ctx)
			return err == nil && runState == state.RunStateFinish
		}, 5*time.Second, 10*time.Millisecond)

		base := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
		f.addFilm("film-late", "Arrival", base)
		assert.True(t, runner.Trigger())

		assert.Eventually(t, func() bool {
			_, ok := f.loader.film("film-late")
			return ok
		}, 5*time.Second, 10*time.Millisecond)
	})
}

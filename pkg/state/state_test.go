package state_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/moss/pkg/state"
)

func newFileState(t *testing.T) *state.State {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint", "main.json")
	return state.NewState(state.NewJSONFileStorage(path))
}

func TestJSONFileStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file reads as absent keys", func(t *testing.T) {
		storage := state.NewJSONFileStorage(filepath.Join(t.TempDir(), "nope.json"))

		_, ok, err := storage.Get(ctx, "anything")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		storage := state.NewJSONFileStorage(filepath.Join(t.TempDir(), "cache", "main.json"))

		require.NoError(t, storage.Set(ctx, "key", "value"))

		value, ok, err := storage.Get(ctx, "key")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "value", value)
	})

	t.Run("set preserves other keys", func(t *testing.T) {
		storage := state.NewJSONFileStorage(filepath.Join(t.TempDir(), "main.json"))

		require.NoError(t, storage.Set(ctx, "a", "1"))
		require.NoError(t, storage.Set(ctx, "b", "2"))
		require.NoError(t, storage.Set(ctx, "a", "3"))

		a, _, err := storage.Get(ctx, "a")
		require.NoError(t, err)
		b, _, err := storage.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "3", a)
		assert.Equal(t, "2", b)
	})
}

func TestState(t *testing.T) {
	ctx := context.Background()

	t.Run("run state round-trips", func(t *testing.T) {
		st := newFileState(t)

		runState, err := st.GetRunState(ctx)
		require.NoError(t, err)
		assert.Empty(t, runState)

		require.NoError(t, st.SetRunState(ctx, state.RunStateStart))
		runState, err = st.GetRunState(ctx)
		require.NoError(t, err)
		assert.Equal(t, state.RunStateStart, runState)

		require.NoError(t, st.SetRunState(ctx, state.RunStateFinish))
		runState, err = st.GetRunState(ctx)
		require.NoError(t, err)
		assert.Equal(t, state.RunStateFinish, runState)
	})

	t.Run("run number defaults to zero", func(t *testing.T) {
		st := newFileState(t)

		n, err := st.GetRunNumber(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, st.SetRunNumber(ctx, 42))
		n, err = st.GetRunNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, n)
	})

	t.Run("modified after defaults to the zero time", func(t *testing.T) {
		st := newFileState(t)

		modifiedAfter, err := st.GetModifiedAfter(ctx)
		require.NoError(t, err)
		assert.True(t, modifiedAfter.IsZero())
	})

	t.Run("modified after keeps sub-second precision", func(t *testing.T) {
		st := newFileState(t)
		mark := time.Date(2024, 5, 17, 10, 30, 0, 123456789, time.UTC)

		require.NoError(t, st.SetModifiedAfter(ctx, mark))

		got, err := st.GetModifiedAfter(ctx)
		require.NoError(t, err)
		assert.True(t, mark.Equal(got), "expected %s, got %s", mark, got)
	})
}

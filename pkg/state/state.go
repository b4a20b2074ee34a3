package state

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// RunState is the lifecycle marker of the synchronization process.
type RunState string

const (
	// RunStateStart marks a run in progress. Found at startup it means the
	// previous process died mid-run without reaching ERROR.
	RunStateStart RunState = "START"
	// RunStateFinish marks a polling cycle that completed with nothing left.
	RunStateFinish RunState = "FINISH"
	// RunStateError marks a run aborted by an error; the run number is kept
	// so a retry resumes numbering instead of resetting.
	RunStateError RunState = "ERROR"
)

const (
	keyRunState      = "global_state"
	keyRunNumber     = "global_n_run"
	keyModifiedAfter = "modified_after"
)

// State is the typed accessor over the checkpoint storage.
type State struct {
	storage Storage
}

func NewState(storage Storage) *State {
	return &State{storage: storage}
}

// GetRunState returns the persisted run state, empty when never written.
func (s *State) GetRunState(ctx context.Context) (RunState, error) {
	value, ok, err := s.storage.Get(ctx, keyRunState)
	if err != nil || !ok {
		return "", err
	}
	return RunState(value), nil
}

func (s *State) SetRunState(ctx context.Context, state RunState) error {
	return s.storage.Set(ctx, keyRunState, string(state))
}

// GetRunNumber returns the persisted run counter, 0 when never written.
func (s *State) GetRunNumber(ctx context.Context) (int, error) {
	value, ok, err := s.storage.Get(ctx, keyRunNumber)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid run number %q in checkpoint: %w", value, err)
	}
	return n, nil
}

func (s *State) SetRunNumber(ctx context.Context, n int) error {
	return s.storage.Set(ctx, keyRunNumber, strconv.Itoa(n))
}

// GetModifiedAfter returns the high-water mark; the zero time when the
// checkpoint has never advanced (first run syncs everything).
func (s *State) GetModifiedAfter(ctx context.Context) (time.Time, error) {
	value, ok, err := s.storage.Get(ctx, keyModifiedAfter)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid modified_after %q in checkpoint: %w", value, err)
	}
	return t, nil
}

func (s *State) SetModifiedAfter(ctx context.Context, t time.Time) error {
	return s.storage.Set(ctx, keyModifiedAfter, t.UTC().Format(time.RFC3339Nano))
}

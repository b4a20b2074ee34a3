package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Storage is the checkpoint medium: opaque string keys and values. Absent
// keys are not an error. No concurrent-writer protection is provided; the
// cooperative run-state guard in the orchestrator is the only lock.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

// JSONFileStorage keeps the checkpoint in a single JSON object at a fixed
// path. A missing file reads as all keys absent. Writes go through a temp
// file and rename so a crash mid-write never truncates the checkpoint.
type JSONFileStorage struct {
	path string
}

func NewJSONFileStorage(path string) *JSONFileStorage {
	return &JSONFileStorage{path: path}
}

func (s *JSONFileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (s *JSONFileStorage) Set(ctx context.Context, key string, value string) error {
	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *JSONFileStorage) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint file: %w", err)
	}
	return values, nil
}

func (s *JSONFileStorage) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

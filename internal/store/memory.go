package store

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process store for tests. Snapshots are deep-copied through
// JSON so callers cannot alias the stored state.
type Memory struct {
	mu sync.Mutex
	st []byte

	// SaveErr, when set, is returned by Save (persistence-failure tests).
	SaveErr error
	// Saves counts successful Save calls.
	Saves int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) (State, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		return State{}, nil
	}
	var st State
	if err := json.Unmarshal(m.st, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (m *Memory) Save(ctx context.Context, st State) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.st = b
	m.Saves++
	return nil
}

func (m *Memory) Close() error { return nil }

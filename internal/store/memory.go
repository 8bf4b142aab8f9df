package store

import (
	"context"
	"slices"
	"sync"

	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
)

type Memory struct {
	mu      sync.Mutex
	streams map[string]Stream
}

func NewMemory() *Memory {
	return &Memory{streams: make(map[string]Stream)}
}

func (m *Memory) Append(_ context.Context, code string, seq, version int, events []engine.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.streams[code]
	if len(st.Events) != seq {
		return ErrConflict
	}
	st.Events = append(slices.Clip(st.Events), events...)
	st.Version = version
	m.streams[code] = st
	return nil
}

func (m *Memory) Load(_ context.Context, code string) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.streams[code]
	if !ok {
		return Stream{}, ErrNotFound
	}
	return Stream{Events: slices.Clone(st.Events), Version: st.Version}, nil
}

var _ EventStore = (*Memory)(nil)

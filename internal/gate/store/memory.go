package store

import (
	"context"
	"sync/atomic"
)

// Memory holds the gate in process. The zero value is a closed gate; use
// NewMemory for the enabled-at-startup default.
type Memory struct {
	enabled atomic.Bool
}

func NewMemory(initial bool) *Memory {
	m := &Memory{}
	m.enabled.Store(initial)
	return m
}

func (m *Memory) Get(_ context.Context) (bool, error) {
	return m.enabled.Load(), nil
}

func (m *Memory) Set(_ context.Context, enabled bool) error {
	m.enabled.Store(enabled)
	return nil
}

package talkpoint

import (
	"context"
	"encoding/json"
	"sync"
)

// memMemento is an in-memory Memento that stores values as JSON.
type memMemento struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func newMemMemento() *memMemento {
	return &memMemento{values: make(map[string][]byte)}
}

func (m *memMemento) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (m *memMemento) Update(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = data
	m.writes++
	return nil
}

func (m *memMemento) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.values[key])
}

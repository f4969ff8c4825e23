package fields

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and dev.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]Definition)}
}

func (m *MemoryStore) SaveField(_ context.Context, d Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.defs {
		if id != d.ID && existing.TargetModel == d.TargetModel && existing.Name == d.Name {
			return ErrDuplicateField
		}
	}
	m.defs[d.ID] = d
	return nil
}

func (m *MemoryStore) ListFields(_ context.Context, target TargetModel) ([]Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Definition
	for _, d := range m.defs {
		if target == "" || d.TargetModel == target {
			out = append(out, d)
		}
	}
	SortDefinitions(out)
	return out, nil
}

func (m *MemoryStore) DeleteField(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.defs, id)
	return nil
}

package account

import (
	"context"
	"strings"
	"sync"
)

// memstore keeps records in process memory. Used when no backend is configured.
type memstore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() Store {
	return &memstore{records: make(map[string]Record)}
}

func (m *memstore) Load(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[strings.TrimSpace(id)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

func (m *memstore) Save(ctx context.Context, rec Record) error {
	m.mu.Lock()
	m.records[strings.TrimSpace(rec.ID)] = rec.clone()
	m.mu.Unlock()
	return nil
}

func (m *memstore) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.records, strings.TrimSpace(id))
	m.mu.Unlock()
	return nil
}

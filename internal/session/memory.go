package session

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
)

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[Location]map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: map[Location]map[string][]byte{}}
}

func (m *MemoryBackend) Write(_ context.Context, loc Location, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[loc] == nil {
		m.records[loc] = map[string][]byte{}
	}
	m.records[loc][id] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Read(_ context.Context, loc Location, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[loc][id]
	if !ok {
		return nil, goerr.Wrap(domain.ErrSessionNotFound, "no session record", goerr.V("id", id))
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Delete(_ context.Context, loc Location, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[loc], id)
	return nil
}

func (m *MemoryBackend) List(_ context.Context, loc Location) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records[loc]))
	for id := range m.records[loc] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryBackend) Projects(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for loc := range m.records {
		if loc.Project != "" {
			out = append(out, loc.Project)
		}
	}
	return out, nil
}

package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps rows in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows [][]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FirstRow implements Store.
func (m *MemoryStore) FirstRow(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rows) == 0 {
		return nil, nil
	}
	return append([]string(nil), m.rows[0]...), nil
}

// InsertFirstRow implements Store.
func (m *MemoryStore) InsertFirstRow(_ context.Context, cells []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := append([]string(nil), cells...)
	m.rows = append([][]string{row}, m.rows...)
	return nil
}

// ColumnValues implements Store.
func (m *MemoryStore) ColumnValues(_ context.Context, column int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rows))
	for _, row := range m.rows {
		if column < len(row) {
			out = append(out, row[column])
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

// AppendRow implements Store.
func (m *MemoryStore) AppendRow(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row.Cells())
	return nil
}

// Rows returns a copy of every stored row.
func (m *MemoryStore) Rows() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.rows))
	for i, row := range m.rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}

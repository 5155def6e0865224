package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the last capacity entries in a ring.
type MemoryStore struct {
	mu   sync.Mutex
	ring []Entry
	next int
	full bool
	seen map[uuid.UUID]struct{}
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryStore{
		ring: make([]Entry, capacity),
		seen: make(map[uuid.UUID]struct{}, capacity),
	}
}

func (m *MemoryStore) Record(ctx context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.seen[e.ID]; dup {
		return nil
	}
	if m.full {
		delete(m.seen, m.ring[m.next].ID)
	}
	m.ring[m.next] = e
	m.seen[e.ID] = struct{}{}
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

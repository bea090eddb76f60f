package addons

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps add-ons in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	addons map[int64]*Addon
}

// NewMemoryStore creates a store seeded with addons. It panics when two
// seeds share a slug.
func NewMemoryStore(seed ...*Addon) *MemoryStore {
	s := &MemoryStore{addons: make(map[int64]*Addon)}
	for _, a := range seed {
		if err := s.Put(a); err != nil {
			panic(err)
		}
	}
	return s
}

// Put inserts or replaces an add-on. Slugs are unique across the store.
func (s *MemoryStore) Put(a *Addon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.addons {
		if id != a.ID && other.Slug == a.Slug {
			return fmt.Errorf("%w: %q used by add-on %d", ErrDuplicateSlug, a.Slug, id)
		}
	}
	s.addons[a.ID] = clone(a)
	return nil
}

func (s *MemoryStore) All() QuerySet { return &memoryQuery{store: s} }

func (s *MemoryStore) Valid() QuerySet {
	return s.Filter(Filter{Statuses: ValidStatuses})
}

func (s *MemoryStore) Filter(f Filter) QuerySet {
	return &memoryQuery{store: s, filter: f}
}

func clone(a *Addon) *Addon {
	cp := *a
	cp.Authors = append([]Author(nil), a.Authors...)
	return &cp
}

type memoryQuery struct {
	store  *MemoryStore
	filter Filter
}

func (q *memoryQuery) ByID(_ context.Context, id int64) (*Addon, error) {
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()

	a, ok := q.store.addons[id]
	if !ok || !q.filter.Match(a) {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (q *memoryQuery) BySlug(_ context.Context, slug string) (*Addon, error) {
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()

	for _, a := range q.store.addons {
		if a.Slug == slug && q.filter.Match(a) {
			return clone(a), nil
		}
	}
	return nil, ErrNotFound
}

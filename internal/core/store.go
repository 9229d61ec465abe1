package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Store holds the current snapshot of every dataset.
//
// The map lock guards membership only. Each entry publishes its snapshot
// through an atomic pointer so readers never wait on a writer, and
// read-modify-write updates of one dataset are serialized by the entry lock.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
	order   []string
}

type storeEntry struct {
	mu   sync.Mutex
	snap atomic.Pointer[Dataset]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*storeEntry),
	}
}

// Create registers a new Queued dataset with a fresh id.
func (s *Store) Create(now time.Time) *Dataset {
	ds := &Dataset{
		ID:      uuid.NewString(),
		Status:  StatusQueued,
		Created: now.UTC(),
	}
	s.Put(ds)
	return ds
}

// Put inserts or overwrites a snapshot. New ids are appended to the listing order.
func (s *Store) Put(ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ds.ID]
	if !ok {
		e = &storeEntry{}
		s.entries[ds.ID] = e
		s.order = append(s.order, ds.ID)
	}
	e.snap.Store(ds)
}

// Get returns the current snapshot for id.
func (s *Store) Get(id string) (*Dataset, bool) {
	e := s.entry(id)
	if e == nil {
		return nil, false
	}
	return e.snap.Load(), true
}

// Exists reports whether id names a dataset.
func (s *Store) Exists(id string) bool {
	return s.entry(id) != nil
}

// Update replaces the snapshot of id with fn's result. fn runs under the
// entry lock and must not mutate its argument.
func (s *Store) Update(id string, fn func(*Dataset) *Dataset) (*Dataset, error) {
	e := s.entry(id)
	if e == nil {
		return nil, ErrDatasetNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := fn(e.snap.Load())
	e.snap.Store(next)
	return next, nil
}

// Delete removes id. It reports whether the dataset existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// IDs returns dataset ids in creation order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Len returns the number of datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) entry(id string) *storeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

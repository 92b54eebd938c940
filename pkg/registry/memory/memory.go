// Package memory is an in-process registry.Store.
package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viraltok/tokmint/pkg/registry"
)

// Store is an in-memory implementation of registry.Store.
type Store struct {
	mu        sync.RWMutex
	byAddress map[string]*registry.Record
	now       func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byAddress: make(map[string]*registry.Record),
		now:       time.Now,
	}
}

// Save adds a record. Returns ErrDuplicateKey if the address already exists.
func (s *Store) Save(_ context.Context, r *registry.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[r.Address]; exists {
		return registry.ErrDuplicateKey
	}

	recCopy := *r
	if recCopy.ID == uuid.Nil {
		recCopy.ID = uuid.New()
	}
	if recCopy.CreatedAt.IsZero() {
		recCopy.CreatedAt = s.now()
	}
	s.byAddress[r.Address] = &recCopy
	return nil
}

// GetByAddress returns ErrNotFound if the address is unknown.
func (s *Store) GetByAddress(_ context.Context, address string) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byAddress[address]
	if !exists {
		return nil, registry.ErrNotFound
	}
	recCopy := *r
	return &recCopy, nil
}

// List returns records by timestamp descending.
func (s *Store) List(_ context.Context, limit int) ([]*registry.Record, error) {
	s.mu.RLock()
	out := s.snapshot()
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Address < out[j].Address
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Random returns up to n distinct records.
func (s *Store) Random(_ context.Context, n int) ([]*registry.Record, error) {
	if n <= 0 {
		return nil, registry.ErrInvalidInput
	}
	s.mu.RLock()
	out := s.snapshot()
	s.mu.RUnlock()

	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// UpdateImageURL replaces the image URL of an existing record.
func (s *Store) UpdateImageURL(_ context.Context, address, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.byAddress[address]
	if !exists {
		return registry.ErrNotFound
	}
	r.ImageURL = imageURL
	return nil
}

// Count returns the number of records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAddress)
}

// snapshot copies every record. Caller holds the read lock.
func (s *Store) snapshot() []*registry.Record {
	out := make([]*registry.Record, 0, len(s.byAddress))
	for _, r := range s.byAddress {
		recCopy := *r
		out = append(out, &recCopy)
	}
	return out
}

var _ registry.Store = (*Store)(nil)

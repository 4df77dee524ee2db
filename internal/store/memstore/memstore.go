// Package memstore is an in-memory Store for tests and local runs.
//
// Items are held as native value trees (never serialized) and returned as
// deep copies, so callers cannot alias stored state. Fetch walks items in
// insertion order, like the hosted service's test fake, and filters them
// with the query package's predicates.
package memstore

import (
	"context"
	"sync"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Store is an in-memory store.Store. The zero value is not usable; call New.
// Each Store is independent: there is no shared process-wide inventory.
type Store struct {
	mu    sync.RWMutex
	order []string
	items map[string]value.Object
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{items: make(map[string]value.Object)}
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (value.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.items[key]
	if !ok {
		return nil, store.KeyErr("get", key, store.ErrNotFound)
	}
	return store.WithKey(key, data), nil
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, key string, data value.Object) (value.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		return nil, store.KeyErr("insert", key, store.ErrDuplicateKey)
	}
	s.putLocked(key, data)
	return store.WithKey(key, s.items[key]), nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, data value.Object) (value.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(key, data)
	return store.WithKey(key, s.items[key]), nil
}

// PutMany implements store.Store.
func (s *Store) PutMany(ctx context.Context, items []value.Object) ([]value.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.CheckBatch(items); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]value.Object, len(items))
	for i, item := range items {
		key, _ := store.ItemKey(item)
		s.putLocked(key, item)
		out[i] = store.WithKey(key, s.items[key])
	}
	return out, nil
}

// putLocked stores a copy of data without its key field. A replaced item
// keeps its position in the iteration order.
func (s *Store) putLocked(key string, data value.Object) {
	if _, exists := s.items[key]; !exists {
		s.order = append(s.order, key)
	}
	s.items[key] = store.WithoutKey(data)
}

// Fetch implements store.Store.
func (s *Store) Fetch(ctx context.Context, filter query.Wire, opts store.FetchOptions) (store.Page, error) {
	if err := ctx.Err(); err != nil {
		return store.Page{}, err
	}

	q, err := query.ParseWire(filter)
	if err != nil {
		return store.Page{}, err
	}
	pred, err := q.Compile()
	if err != nil {
		return store.Page{}, err
	}

	s.mu.RLock()
	records := make([]value.Object, len(s.order))
	for i, key := range s.order {
		records[i] = store.WithKey(key, s.items[key])
	}
	s.mu.RUnlock()

	return query.Paginate(records, pred, opts.Last, opts.Limit)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, key string, upd store.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.items[key]
	if !ok {
		return store.KeyErr("update", key, store.ErrKeyNotFound)
	}
	next, err := store.ApplyUpdate(data, upd)
	if err != nil {
		return store.KeyErr("update", key, err)
	}
	s.items[key] = next
	return nil
}

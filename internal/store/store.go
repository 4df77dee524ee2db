// Package store defines the port every key-value backend implements, plus
// the helpers backends share: key handling, batch limits, and the
// partial-update operations.
//
// Items cross the port as flat objects. Items returned by a store always
// carry their key under query.KeyField; data passed to Insert and Put
// must not depend on it (any key field in the data is replaced).
package store

import (
	"context"
	"fmt"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/value"
)

// Limits of the hosted service. Backends that emulate it enforce
// MaxBatchSize; the size limits are informational.
const (
	MaxBatchSize     = 25
	MaxItemBytes     = 400 * 1024
	MaxFetchBytes    = 1024 * 1024
	DefaultPageLimit = 1000
)

// KeyField is the field items carry their key under.
const KeyField = query.KeyField

// Store is a named collection ("base") of items addressed by key.
type Store interface {
	// Get returns the item, or ErrNotFound.
	Get(ctx context.Context, key string) (value.Object, error)

	// Insert creates the item, or fails with ErrDuplicateKey.
	Insert(ctx context.Context, key string, data value.Object) (value.Object, error)

	// Put creates or replaces the item.
	Put(ctx context.Context, key string, data value.Object) (value.Object, error)

	// PutMany puts up to MaxBatchSize items, each carrying its own key.
	PutMany(ctx context.Context, items []value.Object) ([]value.Object, error)

	// Fetch returns one page of items matching filter. An empty filter
	// matches everything.
	Fetch(ctx context.Context, filter query.Wire, opts FetchOptions) (Page, error)

	// Update applies a partial update, or fails with ErrKeyNotFound.
	Update(ctx context.Context, key string, upd Update) error
}

// FetchOptions controls paging.
type FetchOptions struct {
	// Limit caps the number of items. Non-positive means no limit.
	Limit int
	// Last resumes after the item with this key.
	Last string
}

// Page is one page of fetched items.
type Page = query.Page

// WithKey returns a copy of data carrying key.
func WithKey(key string, data value.Object) value.Object {
	out := make(value.Object, len(data)+1)
	for k, v := range data {
		out[k] = value.Clone(v)
	}
	out[KeyField] = value.String(key)
	return out
}

// WithoutKey returns a copy of item without its key field.
func WithoutKey(item value.Object) value.Object {
	out := make(value.Object, len(item))
	for k, v := range item {
		if k == KeyField {
			continue
		}
		out[k] = value.Clone(v)
	}
	return out
}

// ItemKey returns the key an item carries, or ErrMissingKey.
func ItemKey(item value.Object) (string, error) {
	switch k := item[KeyField].(type) {
	case value.String:
		if k != "" {
			return string(k), nil
		}
	case nil:
	default:
		return "", fmt.Errorf("%w: key is a %s", ErrMissingKey, value.Kind(k))
	}
	return "", ErrMissingKey
}

// CheckBatch validates a PutMany batch: size and a key on every item.
func CheckBatch(items []value.Object) error {
	if len(items) > MaxBatchSize {
		return fmt.Errorf("%w: %d items, limit %d", ErrBatchTooLarge, len(items), MaxBatchSize)
	}
	for i, item := range items {
		if _, err := ItemKey(item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

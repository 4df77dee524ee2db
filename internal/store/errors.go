package store

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every backend. Backends translate their native
// failures into these so callers can branch with errors.Is.
var (
	// ErrNotFound is returned by Get for an absent key.
	ErrNotFound = errors.New("item not found")

	// ErrDuplicateKey is returned by Insert when the key already exists.
	ErrDuplicateKey = errors.New("key already exists")

	// ErrKeyNotFound is returned by Update for an absent key. It is
	// distinct from ErrNotFound because it comes from the update path.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBatchTooLarge is returned by PutMany for more than MaxBatchSize items.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrMissingKey is returned when an item that must carry a key does not.
	ErrMissingKey = errors.New("item has no key")

	// ErrInvalidUpdate is returned when an update cannot be applied to the
	// stored item (incrementing a string, appending to an object).
	ErrInvalidUpdate = errors.New("invalid update")
)

// KeyError records the operation and key an error happened on.
type KeyError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyError) Unwrap() error {
	return e.Err
}

// KeyErr wraps err with op and key.
func KeyErr(op, key string, err error) error {
	return &KeyError{Op: op, Key: key, Err: err}
}

package database

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldNotFound is returned when a record or view has no such field.
	ErrFieldNotFound = errors.New("field not found")

	// ErrScopeActive is returned when a batched scope is opened on a
	// record that already has one open.
	ErrScopeActive = errors.New("batched scope already active")

	// ErrNotContainer is returned when a map or sequence view is asked
	// for a field holding a scalar.
	ErrNotContainer = errors.New("field is not a container")

	// ErrIndexOutOfRange is returned by sequence views for a bad index.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// FieldError records the record key and field path an error happened on.
type FieldError struct {
	Key  string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("record %q: field %q: %v", e.Key, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// IsFieldNotFound reports whether err is, or wraps, ErrFieldNotFound.
func IsFieldNotFound(err error) bool {
	return errors.Is(err, ErrFieldNotFound)
}

func fieldErr(key, path string, err error) error {
	return &FieldError{Key: key, Path: path, Err: err}
}

// Package ident projects domain identifiers onto store keys.
package ident

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ErrUnsupportedIdentifier is returned when a value has no key projection.
var ErrUnsupportedIdentifier = errors.New("unsupported identifier")

// Identifiable is implemented by domain objects that own a numeric id
// within a kind (a user, a guild, a channel).
//
// The projected key is "<kind>_<id>", so two objects of different kinds
// that share an id never collide.
type Identifiable interface {
	IdentifierKind() string
	IdentifierID() int64
}

// Normalize returns the store key for identifier.
//
// Strings pass through unchanged. Integers are formatted in base 10 and
// UUIDs in their canonical hyphenated form. Anything else fails with
// ErrUnsupportedIdentifier.
//
// All projections share one keyspace with plain strings: "user_5" and a
// user with id 5 name the same record, as do "42" and 42. Callers that mix
// string keys with identifiers must keep their string keys out of the
// projected forms.
func Normalize(identifier any) (string, error) {
	switch id := identifier.(type) {
	case string:
		return id, nil
	case uuid.UUID:
		return id.String(), nil
	case int:
		return strconv.FormatInt(int64(id), 10), nil
	case int32:
		return strconv.FormatInt(int64(id), 10), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(id), 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	}

	if obj, ok := identifier.(Identifiable); ok {
		kind := obj.IdentifierKind()
		if kind == "" {
			return "", fmt.Errorf("%w: %T has an empty kind", ErrUnsupportedIdentifier, identifier)
		}
		return kind + "_" + strconv.FormatInt(obj.IdentifierID(), 10), nil
	}

	return "", fmt.Errorf("%w: %T", ErrUnsupportedIdentifier, identifier)
}

// MustNormalize is Normalize for identifiers known to be supported.
// It panics on error.
func MustNormalize(identifier any) string {
	key, err := Normalize(identifier)
	if err != nil {
		panic(err)
	}
	return key
}

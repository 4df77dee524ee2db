package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned when a dotted path cannot be followed.
var ErrInvalidPath = errors.New("invalid path")

// SplitPath splits a dotted field path into segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// Lookup follows a dotted path through nested objects and arrays.
// A numeric segment indexes an array.
func Lookup(root Object, path string) (Value, bool) {
	var cur Value = root
	for _, seg := range SplitPath(path) {
		switch node := cur.(type) {
		case Object:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case Array:
			i, ok := arrayIndex(seg, len(node))
			if !ok {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath assigns v at path, creating missing intermediate objects.
// It modifies root in place.
func SetPath(root Object, path string, v Value) error {
	segs := SplitPath(path)
	parent, err := walkToParent(root, segs, true)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}

	last := segs[len(segs)-1]
	switch node := parent.(type) {
	case Object:
		node[last] = v
	case Array:
		i, ok := arrayIndex(last, len(node))
		if !ok {
			return fmt.Errorf("set %q: %w: index %q out of range", path, ErrInvalidPath, last)
		}
		node[i] = v
	}
	return nil
}

// DeletePath removes the value at path. A path that does not exist is
// not an error. Deleting an array element removes it from the array.
func DeletePath(root Object, path string) error {
	segs := SplitPath(path)
	if len(segs) == 1 {
		delete(root, segs[0])
		return nil
	}

	parentPath := segs[:len(segs)-1]
	grand, err := walkToParent(root, parentPath, false)
	if err != nil {
		return nil
	}
	parentKey := parentPath[len(parentPath)-1]

	var parent Value
	switch node := grand.(type) {
	case Object:
		parent = node[parentKey]
	case Array:
		i, ok := arrayIndex(parentKey, len(node))
		if !ok {
			return nil
		}
		parent = node[i]
	}

	last := segs[len(segs)-1]
	switch node := parent.(type) {
	case Object:
		delete(node, last)
	case Array:
		i, ok := arrayIndex(last, len(node))
		if !ok {
			return nil
		}
		trimmed := append(node[:i:i], node[i+1:]...)
		// Arrays are values, so write the shorter slice back into its parent.
		switch g := grand.(type) {
		case Object:
			g[parentKey] = trimmed
		case Array:
			j, _ := arrayIndex(parentKey, len(g))
			g[j] = trimmed
		}
	}
	return nil
}

// walkToParent returns the container holding the last segment of segs.
// With create set, missing objects along the way are created.
func walkToParent(root Object, segs []string, create bool) (Value, error) {
	var cur Value = root
	for _, seg := range segs[:len(segs)-1] {
		switch node := cur.(type) {
		case Object:
			next, ok := node[seg]
			if !ok {
				if !create {
					return nil, fmt.Errorf("%w: %q missing", ErrInvalidPath, seg)
				}
				next = Object{}
				node[seg] = next
			}
			cur = next
		case Array:
			i, ok := arrayIndex(seg, len(node))
			if !ok {
				return nil, fmt.Errorf("%w: index %q out of range", ErrInvalidPath, seg)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("%w: %q is a %s", ErrInvalidPath, seg, Kind(cur))
		}
	}

	switch cur.(type) {
	case Object, Array:
		return cur, nil
	default:
		return nil, fmt.Errorf("%w: parent is a %s", ErrInvalidPath, Kind(cur))
	}
}

func arrayIndex(seg string, n int) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

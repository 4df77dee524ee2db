package store

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/basekit/internal/value"
)

// Update is a partial update addressed by dotted field paths.
//
// Operations apply in this order: Set, Increment, Append, Prepend, Delete.
// Delete removes the field; it never leaves a null behind.
type Update struct {
	Set       map[string]value.Value
	Increment map[string]value.Value
	Append    map[string]value.Array
	Prepend   map[string]value.Array
	Delete    []string
}

// IsEmpty reports whether u changes nothing.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Increment) == 0 &&
		len(u.Append) == 0 && len(u.Prepend) == 0 && len(u.Delete) == 0
}

// SetField records a set of path to v. A pending delete of the same path
// is dropped.
func (u *Update) SetField(path string, v value.Value) {
	if u.Set == nil {
		u.Set = make(map[string]value.Value)
	}
	u.Set[path] = v
	u.Delete = slices.DeleteFunc(u.Delete, func(p string) bool { return p == path })
}

// DeleteField records a delete of path. A pending set of the same path is
// dropped.
func (u *Update) DeleteField(path string) {
	delete(u.Set, path)
	if !slices.Contains(u.Delete, path) {
		u.Delete = append(u.Delete, path)
	}
}

// IncrementField adds delta to any pending increment of path.
func (u *Update) IncrementField(path string, delta value.Value) {
	if u.Increment == nil {
		u.Increment = make(map[string]value.Value)
	}
	if prev, ok := u.Increment[path]; ok {
		delta = addNumbers(prev, delta)
	}
	u.Increment[path] = delta
}

// AppendField appends items to any pending append of path.
func (u *Update) AppendField(path string, items ...value.Value) {
	if u.Append == nil {
		u.Append = make(map[string]value.Array)
	}
	u.Append[path] = append(u.Append[path], items...)
}

// PrependField prepends items to any pending prepend of path.
func (u *Update) PrependField(path string, items ...value.Value) {
	if u.Prepend == nil {
		u.Prepend = make(map[string]value.Array)
	}
	u.Prepend[path] = append(append(value.Array{}, items...), u.Prepend[path]...)
}

// Map returns a copy of u with fn applied to every operand value.
func (u Update) Map(fn func(value.Value) value.Value) Update {
	out := Update{Delete: slices.Clone(u.Delete)}
	if u.Set != nil {
		out.Set = make(map[string]value.Value, len(u.Set))
		for k, v := range u.Set {
			out.Set[k] = fn(v)
		}
	}
	if u.Increment != nil {
		out.Increment = make(map[string]value.Value, len(u.Increment))
		for k, v := range u.Increment {
			out.Increment[k] = fn(v)
		}
	}
	mapArrays := func(in map[string]value.Array) map[string]value.Array {
		if in == nil {
			return nil
		}
		m := make(map[string]value.Array, len(in))
		for k, arr := range in {
			conv := make(value.Array, len(arr))
			for i, v := range arr {
				conv[i] = fn(v)
			}
			m[k] = conv
		}
		return m
	}
	out.Append = mapArrays(u.Append)
	out.Prepend = mapArrays(u.Prepend)
	return out
}

// ApplyUpdate returns a copy of doc with u applied. doc is not modified.
//
// Increment treats a missing field as zero. Append and Prepend treat a
// missing field as an empty list. Deleting a missing field is a no-op.
func ApplyUpdate(doc value.Object, u Update) (value.Object, error) {
	out := doc.Clone()
	if out == nil {
		out = value.Object{}
	}

	for _, path := range sortedPaths(u.Set) {
		if err := value.SetPath(out, path, value.Clone(u.Set[path])); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
	}

	for _, path := range sortedPaths(u.Increment) {
		delta := u.Increment[path]
		if !value.IsNumber(delta) {
			return nil, fmt.Errorf("%w: increment %q by a %s", ErrInvalidUpdate, path, value.Kind(delta))
		}
		cur, ok := value.Lookup(out, path)
		if !ok {
			cur = value.Int(0)
		}
		if !value.IsNumber(cur) {
			return nil, fmt.Errorf("%w: increment %q: field is a %s", ErrInvalidUpdate, path, value.Kind(cur))
		}
		if err := value.SetPath(out, path, addNumbers(cur, delta)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
	}

	for _, path := range sortedPaths(u.Append) {
		if err := extendList(out, path, u.Append[path], false); err != nil {
			return nil, err
		}
	}
	for _, path := range sortedPaths(u.Prepend) {
		if err := extendList(out, path, u.Prepend[path], true); err != nil {
			return nil, err
		}
	}

	for _, path := range u.Delete {
		if err := value.DeletePath(out, path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
	}
	return out, nil
}

func extendList(doc value.Object, path string, items value.Array, front bool) error {
	var list value.Array
	if cur, ok := value.Lookup(doc, path); ok {
		arr, isArr := cur.(value.Array)
		if !isArr {
			return fmt.Errorf("%w: append to %q: field is a %s", ErrInvalidUpdate, path, value.Kind(cur))
		}
		list = arr
	}

	var next value.Array
	if front {
		next = append(items.Clone(), list...)
	} else {
		next = append(slices.Clone(list), items.Clone()...)
	}
	if err := value.SetPath(doc, path, next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return nil
}

func addNumbers(a, b value.Value) value.Value {
	ai, aInt := a.(value.Int)
	bi, bInt := b.(value.Int)
	if aInt && bInt {
		return ai + bi
	}
	return value.Float(asFloat(a) + asFloat(b))
}

func asFloat(v value.Value) float64 {
	switch n := v.(type) {
	case value.Int:
		return float64(n)
	case value.Float:
		return float64(n)
	}
	return 0
}

func sortedPaths[V any](m map[string]V) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Wire keys of an update payload.
const (
	updateSet       = "set"
	updateIncrement = "increment"
	updateAppend    = "append"
	updatePrepend   = "prepend"
	updateDelete    = "delete"
)

// ToObject renders u in the hosted service's update payload shape:
// {"set": {...}, "increment": {...}, "append": {...}, "prepend": {...},
// "delete": [...]}. Empty sections are omitted.
func (u Update) ToObject() value.Object {
	obj := value.Object{}
	if len(u.Set) > 0 {
		set := make(value.Object, len(u.Set))
		for k, v := range u.Set {
			set[k] = v
		}
		obj[updateSet] = set
	}
	if len(u.Increment) > 0 {
		inc := make(value.Object, len(u.Increment))
		for k, v := range u.Increment {
			inc[k] = v
		}
		obj[updateIncrement] = inc
	}
	if len(u.Append) > 0 {
		app := make(value.Object, len(u.Append))
		for k, v := range u.Append {
			app[k] = v
		}
		obj[updateAppend] = app
	}
	if len(u.Prepend) > 0 {
		pre := make(value.Object, len(u.Prepend))
		for k, v := range u.Prepend {
			pre[k] = v
		}
		obj[updatePrepend] = pre
	}
	if len(u.Delete) > 0 {
		del := make(value.Array, len(u.Delete))
		for i, p := range u.Delete {
			del[i] = value.String(p)
		}
		obj[updateDelete] = del
	}
	return obj
}

// UpdateFromObject parses the payload produced by ToObject. A non-list
// append or prepend operand is wrapped in a one-element list.
func UpdateFromObject(obj value.Object) (Update, error) {
	var u Update
	for _, section := range obj.SortedKeys() {
		raw := obj[section]
		switch section {
		case updateSet, updateIncrement, updateAppend, updatePrepend:
			fields, ok := raw.(value.Object)
			if !ok {
				return Update{}, fmt.Errorf("%w: %q must be an object", ErrInvalidUpdate, section)
			}
			for path, v := range fields {
				switch section {
				case updateSet:
					if u.Set == nil {
						u.Set = make(map[string]value.Value)
					}
					u.Set[path] = v
				case updateIncrement:
					u.IncrementField(path, v)
				case updateAppend:
					u.AppendField(path, asList(v)...)
				case updatePrepend:
					u.PrependField(path, asList(v)...)
				}
			}
		case updateDelete:
			paths, ok := raw.(value.Array)
			if !ok {
				return Update{}, fmt.Errorf("%w: %q must be a list", ErrInvalidUpdate, section)
			}
			for _, p := range paths {
				s, ok := p.(value.String)
				if !ok {
					return Update{}, fmt.Errorf("%w: delete path is a %s", ErrInvalidUpdate, value.Kind(p))
				}
				u.Delete = append(u.Delete, string(s))
			}
		default:
			return Update{}, fmt.Errorf("%w: unknown section %q", ErrInvalidUpdate, section)
		}
	}
	return u, nil
}

func asList(v value.Value) value.Array {
	if arr, ok := v.(value.Array); ok {
		return arr
	}
	return value.Array{v}
}

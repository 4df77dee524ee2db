package value

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrUnorderable is returned by Compare when two values have no mutual order.
var ErrUnorderable = errors.New("values are not mutually ordered")

// Equal reports whether a and b represent the same value.
// Int and Float compare by numeric value, so Int(1) equals Float(1.0).
func Equal(a, b Value) bool {
	if IsNumber(a) && IsNumber(b) {
		return compareNumbers(a, b) == 0
	}

	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Time:
		bv, ok := b.(Time)
		return ok && av.Equal(bv.Time)
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	case Tagged:
		bv, ok := b.(Tagged)
		return ok && reflect.DeepEqual(av.Item, bv.Item)
	case Ref:
		bv, ok := b.(Ref)
		return ok && av.Tag == bv.Tag
	default:
		return false
	}
}

// Orderable reports whether v can take part in Compare.
func Orderable(v Value) bool {
	switch v.(type) {
	case Int, Float, String, Time:
		return true
	}
	return false
}

// Compare orders a against b. Numbers order numerically across Int and
// Float, strings order bytewise, timestamps chronologically. Any other
// pairing fails with ErrUnorderable.
func Compare(a, b Value) (int, error) {
	if IsNumber(a) && IsNumber(b) {
		return compareNumbers(a, b), nil
	}
	switch av := a.(type) {
	case String:
		if bv, ok := b.(String); ok {
			return strings.Compare(string(av), string(bv)), nil
		}
	case Time:
		if bv, ok := b.(Time); ok {
			return av.Compare(bv.Time), nil
		}
	}
	return 0, fmt.Errorf("%w: %s and %s", ErrUnorderable, Kind(a), Kind(b))
}

func compareNumbers(a, b Value) int {
	ai, aInt := a.(Int)
	bi, bInt := b.(Int)
	if aInt && bInt {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(toFloat(a), toFloat(b))
}

func toFloat(v Value) float64 {
	switch n := v.(type) {
	case Int:
		return float64(n)
	case Float:
		return float64(n)
	}
	return 0
}

// Clone returns a deep copy of v. Containers are copied recursively;
// Tagged items and Ref targets are shared.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		return val.Clone()
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// Clone returns a deep copy of the array.
func (arr Array) Clone() Array {
	if arr == nil {
		return nil
	}
	out := make(Array, len(arr))
	for i, elem := range arr {
		out[i] = Clone(elem)
	}
	return out
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the value tree.
// Only the types in this package implement it.
type Value interface {
	isValue() // Sealed - only these types implement it
}

// Null represents a JSON null.
// Using an explicit type keeps nil out of trees.
type Null struct{}

func (Null) isValue() {}

// Bool represents a boolean.
type Bool bool

func (Bool) isValue() {}

// Int represents an integral number.
type Int int64

func (Int) isValue() {}

// Float represents a number with a fractional part or exponent.
type Float float64

func (Float) isValue() {}

// String represents a string.
type String string

func (String) isValue() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) isValue() {}

// Object represents a mapping of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) isValue() {}

// Time represents a timestamp. It never reaches a store directly; the codec
// turns it into a marker string.
type Time struct {
	time.Time
}

func (Time) isValue() {}

// NewTime wraps t.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// Loadable is implemented by domain objects that can be stored as a nested
// polymorphic value and rebuilt on decode through a registered tag.
type Loadable interface {
	// LoadTag names the registry entry that rebuilds this object.
	LoadTag() string
	// ToObject returns the fields to persist. It may contain further
	// Tagged values.
	ToObject() Object
}

// Tagged places a Loadable inside a value tree.
type Tagged struct {
	Item Loadable
}

func (Tagged) isValue() {}

// Ref is a reference to a registered symbol (typically a function).
// Only Tag is persisted; Target is resolved from the registry on decode.
//
// References should only be stored in short-lived records: a renamed or
// removed symbol silently decodes back to a plain object.
type Ref struct {
	Tag    string
	Target any
}

func (Ref) isValue() {}

// Kind returns a short name for v's type, used in error messages.
func Kind(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	case Time:
		return "time"
	case Tagged:
		return "tagged"
	case Ref:
		return "ref"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsNumber reports whether v is an Int or a Float.
func IsNumber(v Value) bool {
	switch v.(type) {
	case Int, Float:
		return true
	}
	return false
}

// IsContainer reports whether v is an Array or an Object.
func IsContainer(v Value) bool {
	switch v.(type) {
	case Array, Object:
		return true
	}
	return false
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
// Go's default string comparison uses UTF-8 which orders some runes differently.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := Unmarshal(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (arr *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(Array, len(raw))
	for i, v := range raw {
		val, err := Unmarshal(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// Unmarshal decodes one JSON document into a Value.
// Integers that fit int64 become Int; every other number becomes Float.
func Unmarshal(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var arr Array
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		return arr, nil

	case '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return fromNumber(n)
	}
}

// fromNumber keeps integer literals integral and everything else floating.
func fromNumber(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for output
// that must be byte-stable.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := Marshal(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Array.
func (arr Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := Marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Display replaces the semantic kinds in v with the wire kinds Marshal
// renders them as: Time becomes an RFC 3339 string, Tagged its object and
// Ref its tag. Wire kinds are returned as they are.
func Display(v Value) Value {
	switch val := v.(type) {
	case Time:
		return String(val.Format(time.RFC3339Nano))
	case Tagged:
		if val.Item == nil {
			return Null{}
		}
		return Display(val.Item.ToObject())
	case Ref:
		return String(val.Tag)
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Display(elem)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = Display(elem)
		}
		return out
	default:
		return v
	}
}

// Marshal encodes v as JSON.
// Semantic kinds are rendered for display only: Time as RFC 3339, Tagged as
// its object, Ref as its tag. Run the codec first when the output must
// decode back to the same tree.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(bool(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case String:
		return json.Marshal(string(val))
	case Array:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	case Time:
		return json.Marshal(val.Format(time.RFC3339Nano))
	case Tagged:
		if val.Item == nil {
			return []byte("null"), nil
		}
		return val.Item.ToObject().MarshalJSON()
	case Ref:
		return json.Marshal(val.Tag)
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

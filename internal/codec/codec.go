// Package codec translates value trees to and from the restricted shapes a
// store can persist.
//
// The store cannot hold empty objects (they come back as null), timestamps,
// or nested domain objects. Encode rewrites those into reserved marker
// strings and tag objects; Decode reverses the rewrite. Strings that happen
// to start with the marker prefix are escaped so they never decode as
// markers.
//
// Decode is lenient: foreign or malformed shapes pass through unchanged, so
// data written by other versions of a schema stays readable.
package codec

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/basekit/internal/value"
)

// Reserved marker strings.
const (
	// MarkerPrefix starts every marker. Literal strings with this prefix
	// are escaped on encode.
	MarkerPrefix = "$"

	// EmptyObjectMarker stands in for {}.
	EmptyObjectMarker = "$EMPTY_DICT"

	// DatetimeMarker prefixes an ISO-8601 timestamp.
	DatetimeMarker = "$ENCODED_DATETIME"

	// EscapeMarker prefixes a literal string that starts with MarkerPrefix.
	EscapeMarker = "$NOOP"
)

// Tag object keys.
const (
	LoadMethodKey = "__database_load_method"
	TagKey        = "__database_tag"
	PayloadKey    = "__database_payload"

	// Legacy tag shape: {load_method, module, name, ...fields}.
	ModuleKey = "__module"
	NameKey   = "__name"

	// LoadMethodDecode is the load method written for Tagged values.
	LoadMethodDecode = "decode"
)

// Codec encodes and decodes value trees against a Registry.
type Codec struct {
	registry *Registry
	logger   *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithRegistry sets the registry used to resolve tags on decode.
func WithRegistry(r *Registry) Option {
	return func(c *Codec) {
		c.registry = r
	}
}

// WithLogger sets the logger for tag resolution failures (Debug level).
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		c.logger = l
	}
}

// New returns a Codec. Without WithRegistry it gets an empty registry,
// so every tag object decodes to a plain object.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Registry returns the codec's registry.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Encode returns the store representation of v. The input is not modified.
//
// Rules, checked in order for every node:
//  1. empty object -> EmptyObjectMarker
//  2. Tagged -> tag object carrying the encoded payload
//  3. Ref -> tag object with load method false and no payload
//  4. array / object -> recurse
//  5. string starting with MarkerPrefix -> EscapeMarker + string
//  6. Time -> DatetimeMarker + RFC 3339 timestamp
func (c *Codec) Encode(v value.Value) value.Value {
	switch val := v.(type) {
	case value.Object:
		if len(val) == 0 {
			return value.String(EmptyObjectMarker)
		}
		return c.EncodeFields(val)
	case value.Tagged:
		if val.Item == nil {
			return value.Null{}
		}
		return value.Object{
			LoadMethodKey: value.String(LoadMethodDecode),
			TagKey:        value.String(val.Item.LoadTag()),
			PayloadKey:    c.Encode(val.Item.ToObject()),
		}
	case value.Ref:
		return value.Object{
			LoadMethodKey: value.Bool(false),
			TagKey:        value.String(val.Tag),
		}
	case value.Array:
		out := make(value.Array, len(val))
		for i, elem := range val {
			out[i] = c.Encode(elem)
		}
		return out
	case value.String:
		if strings.HasPrefix(string(val), MarkerPrefix) {
			return value.String(EscapeMarker + string(val))
		}
		return val
	case value.Time:
		return value.String(DatetimeMarker + val.Format(time.RFC3339Nano))
	case nil:
		return value.Null{}
	default:
		return v
	}
}

// EncodeFields encodes the fields of a record. Unlike Encode, an empty
// record stays an empty object: the record itself is never a marker.
func (c *Codec) EncodeFields(fields value.Object) value.Object {
	out := make(value.Object, len(fields))
	for k, v := range fields {
		out[k] = c.Encode(v)
	}
	return out
}

// Decode returns the in-memory representation of a stored value.
// It never fails: unknown shapes pass through unchanged.
func (c *Codec) Decode(v value.Value) value.Value {
	switch val := v.(type) {
	case value.Object:
		decoded := c.DecodeFields(val)
		if resolved, ok := c.resolve(decoded); ok {
			return resolved
		}
		return decoded
	case value.Array:
		out := make(value.Array, len(val))
		for i, elem := range val {
			out[i] = c.Decode(elem)
		}
		return out
	case value.String:
		return decodeString(val)
	default:
		return v
	}
}

// DecodeFields decodes the fields of a record. The record itself is never
// interpreted as a tag object.
func (c *Codec) DecodeFields(fields value.Object) value.Object {
	out := make(value.Object, len(fields))
	for k, v := range fields {
		out[k] = c.Decode(v)
	}
	return out
}

func decodeString(s value.String) value.Value {
	str := string(s)
	switch {
	case str == EmptyObjectMarker:
		return value.Object{}
	case strings.HasPrefix(str, DatetimeMarker):
		if t, ok := parseTimestamp(strings.TrimPrefix(str, DatetimeMarker)); ok {
			return value.NewTime(t)
		}
		return s
	case strings.HasPrefix(str, EscapeMarker):
		return value.String(strings.TrimPrefix(str, EscapeMarker))
	default:
		return s
	}
}

// timestampLayouts are tried in order. Zone-less forms are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolve interprets an already-decoded object as a tag object.
// The second result is false when obj is not a tag object or when
// resolution fails; failures are logged and the object is kept as is.
func (c *Codec) resolve(obj value.Object) (value.Value, bool) {
	method, ok := obj[LoadMethodKey]
	if !ok {
		return nil, false
	}

	tag, payload, ok := tagOf(obj)
	if !ok {
		c.logger.Debug("tag object without tag", "keys", obj.SortedKeys())
		return nil, false
	}

	switch m := method.(type) {
	case value.Bool:
		if m {
			c.logger.Debug("unsupported load method", "tag", tag, "method", true)
			return nil, false
		}
		target, found := c.registry.Ref(tag)
		if !found {
			c.logger.Debug("unresolved reference", "tag", tag)
			return nil, false
		}
		return value.Ref{Tag: tag, Target: target}, true

	case value.String:
		load, found := c.registry.Loader(tag)
		if !found {
			c.logger.Debug("unresolved tag", "tag", tag, "method", string(m))
			return nil, false
		}
		item, err := load(payload)
		if err != nil || item == nil {
			c.logger.Debug("loader failed", "tag", tag, "error", err)
			return nil, false
		}
		return value.Tagged{Item: item}, true

	default:
		c.logger.Debug("unsupported load method", "tag", tag, "method", value.Kind(method))
		return nil, false
	}
}

// tagOf extracts the tag and payload from either tag shape.
func tagOf(obj value.Object) (string, value.Object, bool) {
	if tag, ok := obj[TagKey].(value.String); ok {
		switch p := obj[PayloadKey].(type) {
		case value.Object:
			return string(tag), p, true
		case nil:
			return string(tag), value.Object{}, true
		default:
			return "", nil, false
		}
	}

	module, mok := obj[ModuleKey].(value.String)
	name, nok := obj[NameKey].(value.String)
	if !mok || !nok {
		return "", nil, false
	}
	payload := make(value.Object, len(obj))
	for k, v := range obj {
		switch k {
		case LoadMethodKey, ModuleKey, NameKey:
			continue
		}
		payload[k] = v
	}
	return string(module) + "." + string(name), payload, true
}

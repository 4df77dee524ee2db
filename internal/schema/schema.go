// Package schema validates record data against a CUE definition before it
// is written. The store itself enforces no schema; this is a client-side
// check only.
//
// A schema file declares a definition, #Record by default:
//
//	#Record: {
//	    name: string
//	    age?: int & >=0
//	    tags?: [...string]
//	}
//
// Definitions are closed, so fields the definition does not mention are
// rejected. Timestamps are validated as RFC 3339 strings.
package schema

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/basekit/internal/value"
)

// DefaultDefinition is the definition Load and Compile use when none is named.
const DefaultDefinition = "#Record"

// Schema is a compiled record definition. It is safe for concurrent use.
type Schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	def  cue.Value
	name string
}

// CompileError reports a schema that does not compile.
type CompileError struct {
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// ValidationError reports data the schema rejects. Path is the dotted
// path of the first offending field, empty when the record as a whole is
// at fault.
type ValidationError struct {
	Definition string
	Path       string
	Message    string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("schema %s: %s: %s", e.Definition, e.Path, e.Message)
	}
	return fmt.Sprintf("schema %s: %s", e.Definition, e.Message)
}

// Unwrap returns the full CUE error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Load reads and compiles a schema file.
func Load(path, definition string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return compile(string(src), path, definition)
}

// Compile compiles CUE source and selects definition (DefaultDefinition
// when empty).
func Compile(src, definition string) (*Schema, error) {
	return compile(src, "schema.cue", definition)
}

func compile(src, filename, definition string) (*Schema, error) {
	if definition == "" {
		definition = DefaultDefinition
	}
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := root.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return nil, &CompileError{Message: fmt.Sprintf("definition %s not found", definition)}
	}
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return &Schema{ctx: ctx, def: def, name: definition}, nil
}

// Definition returns the name of the definition data is checked against.
func (s *Schema) Definition() string {
	return s.name
}

// Validate checks decoded record data (without its key).
func (s *Schema) Validate(data value.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.ctx.Encode(toCUE(data))
	if err := v.Err(); err != nil {
		return &ValidationError{Definition: s.name, Message: err.Error(), Err: err}
	}
	err := s.def.Unify(v).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	verr := &ValidationError{Definition: s.name, Message: err.Error(), Err: err}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		first := errs[0]
		format, args := first.Msg()
		verr.Message = fmt.Sprintf(format, args...)
		verr.Path = strings.Join(fieldPath(first.Path()), ".")
	}
	return verr
}

// fieldPath drops the definition name CUE puts in front of field paths.
func fieldPath(path []string) []string {
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		return path[1:]
	}
	return path
}

// toCUE converts data to plain Go values CUE can encode. Timestamps
// become RFC 3339 strings.
func toCUE(v value.Value) any {
	switch val := v.(type) {
	case value.Time:
		return val.Format(time.RFC3339Nano)
	case value.Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = toCUE(elem)
		}
		return out
	case value.Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = toCUE(elem)
		}
		return out
	case value.Tagged:
		if val.Item == nil {
			return nil
		}
		return toCUE(val.Item.ToObject())
	default:
		return value.ToNative(v)
	}
}

func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Message: err.Error()}
	}
	first := errs[0]
	ce := &CompileError{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

package query

import (
	"strings"

	"github.com/roach88/basekit/internal/value"
)

// Op is a condition operator.
type Op string

const (
	OpEq             Op = "eq"
	OpNe             Op = "ne"
	OpLt             Op = "lt"
	OpLte            Op = "lte"
	OpGt             Op = "gt"
	OpGte            Op = "gte"
	OpPrefix         Op = "prefix"
	OpRangeExclusive Op = "rangeExclusive"
	OpContains       Op = "contains"
	OpNotContains    Op = "notContains"
)

// wireSuffix maps operators to the suffix used in "field?suffix" keys.
// Equality has no suffix.
var wireSuffix = map[Op]string{
	OpEq:             "",
	OpNe:             "ne",
	OpLt:             "lt",
	OpLte:            "lte",
	OpGt:             "gt",
	OpGte:            "gte",
	OpPrefix:         "pfx",
	OpRangeExclusive: "r",
	OpContains:       "contains",
	OpNotContains:    "not_contains",
}

var suffixOp = func() map[string]Op {
	m := make(map[string]Op, len(wireSuffix))
	for op, suffix := range wireSuffix {
		if suffix != "" {
			m[suffix] = op
		}
	}
	return m
}()

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	_, ok := wireSuffix[op]
	return ok
}

// Ordering reports whether op is one of lt, lte, gt, gte.
func (op Op) Ordering() bool {
	switch op {
	case OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Condition is a single (field, operator, operand) test.
// Build conditions with NewCondition or the Field helpers; the zero value
// is not valid.
type Condition struct {
	Field   string
	Op      Op
	Operand value.Value

	err error
}

// Err returns the construction error, if any.
func (c Condition) Err() error {
	return c.err
}

// WireKey returns the "field" or "field?suffix" key for c.
func (c Condition) WireKey() string {
	suffix := wireSuffix[c.Op]
	if suffix == "" {
		return c.Field
	}
	return c.Field + "?" + suffix
}

// NewCondition validates and returns a condition. operand may be a Value
// or plain Go data accepted by value.FromNative.
func NewCondition(field string, op Op, operand any) (Condition, error) {
	c := Condition{Field: field, Op: op}

	switch operand.(type) {
	case Condition, []Condition, Query, []Query:
		return c, newError(CodeUnsupportedShape, field, op,
			"operand is a %T; nested filters are not supported", operand)
	}

	v, err := value.FromNative(operand)
	if err != nil {
		return c, newError(CodeTypeMismatch, field, op, "operand: %v", err)
	}
	c.Operand = v

	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

// validate enforces the one-level operand restriction and operator typing.
func (c Condition) validate() error {
	if !c.Op.Valid() {
		return newError(CodeUnknownOperator, c.Field, c.Op, "unknown operator")
	}
	if c.Field == "" {
		return newError(CodeUnsupportedShape, c.Field, c.Op, "empty field path")
	}
	if strings.Contains(c.Field, "?") {
		return newError(CodeUnsupportedShape, c.Field, c.Op, "field path must not contain '?'")
	}

	if c.Op == OpRangeExclusive {
		return validateRange(c)
	}

	switch c.Operand.(type) {
	case value.Array, value.Object, value.Tagged, value.Ref:
		return newError(CodeUnsupportedShape, c.Field, c.Op,
			"operand is a %s; nested filters are not supported", value.Kind(c.Operand))
	}

	switch {
	case c.Op.Ordering():
		if !value.Orderable(c.Operand) {
			return newError(CodeUnorderable, c.Field, c.Op,
				"%s operand cannot be ordered", value.Kind(c.Operand))
		}
	case c.Op == OpPrefix:
		if _, ok := c.Operand.(value.String); !ok {
			return newError(CodeTypeMismatch, c.Field, c.Op,
				"prefix operand must be a string, got %s", value.Kind(c.Operand))
		}
	}
	return nil
}

func validateRange(c Condition) error {
	bounds, ok := c.Operand.(value.Array)
	if !ok || len(bounds) != 2 {
		return newError(CodeUnsupportedShape, c.Field, c.Op,
			"range operand must be a [lo, hi) pair, got %s", value.Kind(c.Operand))
	}
	if !value.IsNumber(bounds[0]) || !value.IsNumber(bounds[1]) {
		return newError(CodeTypeMismatch, c.Field, c.Op,
			"range bounds must be numbers, got %s and %s", value.Kind(bounds[0]), value.Kind(bounds[1]))
	}
	return nil
}

// FieldRef starts a condition on a dotted field path.
type FieldRef struct {
	path string
}

// Field returns a FieldRef for path.
func Field(path string) FieldRef {
	return FieldRef{path: path}
}

func (f FieldRef) cond(op Op, operand any) Condition {
	c, err := NewCondition(f.path, op, operand)
	c.err = err
	return c
}

func (f FieldRef) Eq(v any) Condition          { return f.cond(OpEq, v) }
func (f FieldRef) Ne(v any) Condition          { return f.cond(OpNe, v) }
func (f FieldRef) Lt(v any) Condition          { return f.cond(OpLt, v) }
func (f FieldRef) Lte(v any) Condition         { return f.cond(OpLte, v) }
func (f FieldRef) Gt(v any) Condition          { return f.cond(OpGt, v) }
func (f FieldRef) Gte(v any) Condition         { return f.cond(OpGte, v) }
func (f FieldRef) Prefix(s string) Condition   { return f.cond(OpPrefix, s) }
func (f FieldRef) Contains(v any) Condition    { return f.cond(OpContains, v) }
func (f FieldRef) NotContains(v any) Condition { return f.cond(OpNotContains, v) }

// Range matches numbers in the half-open interval [lo, hi).
func (f FieldRef) Range(lo, hi any) Condition {
	return f.cond(OpRangeExclusive, []any{lo, hi})
}

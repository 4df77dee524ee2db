package query

import (
	"strings"

	"github.com/roach88/basekit/internal/value"
)

// Predicate tests one record. Records are flat objects carrying their key
// under KeyField; dotted condition fields reach into nested values.
type Predicate func(record value.Object) (bool, error)

// KeyField is the field every fetched record carries its key under.
const KeyField = "key"

// MatchAll is the predicate of an empty query.
func MatchAll(value.Object) (bool, error) { return true, nil }

// CompileCondition validates a condition and returns its predicate.
func CompileCondition(field string, op Op, operand any) (Predicate, error) {
	c, err := NewCondition(field, op, operand)
	if err != nil {
		return nil, err
	}
	return c.Predicate(), nil
}

// Predicate returns the predicate for a validated condition.
//
// A missing field matches ne (unless the operand is null) and notContains,
// and matches eq only against a null operand. Every other operator fails
// to match a missing field. A present field of the wrong type is an error.
func (c Condition) Predicate() Predicate {
	return func(record value.Object) (bool, error) {
		field, ok := value.Lookup(record, c.Field)
		if !ok {
			return matchMissing(c), nil
		}
		return c.eval(field)
	}
}

func matchMissing(c Condition) bool {
	_, null := c.Operand.(value.Null)
	switch c.Op {
	case OpEq:
		return null
	case OpNe:
		return !null
	case OpNotContains:
		return true
	default:
		return false
	}
}

func (c Condition) eval(field value.Value) (bool, error) {
	switch c.Op {
	case OpEq:
		return value.Equal(field, c.Operand), nil
	case OpNe:
		return !value.Equal(field, c.Operand), nil
	case OpLt, OpLte, OpGt, OpGte:
		return c.evalOrdering(field)
	case OpPrefix:
		s, ok := field.(value.String)
		if !ok {
			return false, newError(CodeTypeMismatch, c.Field, c.Op, "field is a %s, not a string", value.Kind(field))
		}
		return strings.HasPrefix(string(s), string(c.Operand.(value.String))), nil
	case OpRangeExclusive:
		return c.evalRange(field)
	case OpContains:
		return c.evalContains(field)
	case OpNotContains:
		found, err := c.evalContains(field)
		return !found, err
	default:
		return false, newError(CodeUnknownOperator, c.Field, c.Op, "unknown operator")
	}
}

func (c Condition) evalOrdering(field value.Value) (bool, error) {
	cmp, err := value.Compare(field, c.Operand)
	if err != nil {
		return false, newError(CodeUnorderable, c.Field, c.Op, "%v", err)
	}
	switch c.Op {
	case OpLt:
		return cmp < 0, nil
	case OpLte:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func (c Condition) evalRange(field value.Value) (bool, error) {
	if !value.IsNumber(field) {
		return false, newError(CodeTypeMismatch, c.Field, c.Op, "field is a %s, not a number", value.Kind(field))
	}
	bounds := c.Operand.(value.Array)
	lo, _ := value.Compare(field, bounds[0])
	hi, _ := value.Compare(field, bounds[1])
	return lo >= 0 && hi < 0, nil
}

func (c Condition) evalContains(field value.Value) (bool, error) {
	switch f := field.(type) {
	case value.Array:
		for _, elem := range f {
			if value.Equal(elem, c.Operand) {
				return true, nil
			}
		}
		return false, nil
	case value.String:
		sub, ok := c.Operand.(value.String)
		if !ok {
			return false, newError(CodeTypeMismatch, c.Field, c.Op,
				"substring test needs a string operand, got %s", value.Kind(c.Operand))
		}
		return strings.Contains(string(f), string(sub)), nil
	default:
		return false, newError(CodeTypeMismatch, c.Field, c.Op,
			"field is a %s, not a list or string", value.Kind(field))
	}
}

// CompileConjunction validates conds and returns their logical AND,
// evaluated left to right with short-circuiting.
func CompileConjunction(conds []Condition) (Predicate, error) {
	for _, c := range conds {
		if c.err != nil {
			return nil, c.err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
	}

	preds := make([]Predicate, len(conds))
	for i, c := range conds {
		preds[i] = c.Predicate()
	}
	return func(record value.Object) (bool, error) {
		for _, p := range preds {
			ok, err := p(record)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}, nil
}

// CompileDisjunction returns the logical OR of the conjunctions. With no
// conjunctions it matches every record, like an empty filter list.
func CompileDisjunction(conjunctions [][]Condition) (Predicate, error) {
	if len(conjunctions) == 0 {
		return MatchAll, nil
	}

	preds := make([]Predicate, len(conjunctions))
	for i, conj := range conjunctions {
		p, err := CompileConjunction(conj)
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	return func(record value.Object) (bool, error) {
		for _, p := range preds {
			ok, err := p(record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

// Compile returns the predicate for q.
func (q Query) Compile() (Predicate, error) {
	return CompileDisjunction(q.conjunctions)
}

package query

import (
	"strings"

	"github.com/roach88/basekit/internal/value"
)

// Query is a disjunction of conjunctions of conditions.
// The zero Query has no conjunctions and matches every record.
type Query struct {
	conjunctions [][]Condition
}

// New returns a single-conjunction query. It fails with the first
// construction error among conds, or when two conditions share a wire key.
func New(conds ...Condition) (Query, error) {
	for _, c := range conds {
		if c.err != nil {
			return Query{}, c.err
		}
		// Conditions built as struct literals skip NewCondition.
		if err := c.validate(); err != nil {
			return Query{}, err
		}
	}

	seen := make(map[string]bool, len(conds))
	for _, c := range conds {
		key := c.WireKey()
		if seen[key] {
			return Query{}, newError(CodeUnsupportedShape, c.Field, c.Op,
				"duplicate condition %q in one conjunction", key)
		}
		seen[key] = true
	}

	conj := make([]Condition, len(conds))
	copy(conj, conds)
	return Query{conjunctions: [][]Condition{conj}}, nil
}

// MustNew is New for literal queries. It panics on error.
func MustNew(conds ...Condition) Query {
	q, err := New(conds...)
	if err != nil {
		panic(err)
	}
	return q
}

// Or returns a query matching records that match q or any of others.
func (q Query) Or(others ...Query) Query {
	out := Query{conjunctions: append([][]Condition(nil), q.conjunctions...)}
	for _, o := range others {
		out.conjunctions = append(out.conjunctions, o.conjunctions...)
	}
	return out
}

// Any returns the disjunction of queries.
func Any(queries ...Query) Query {
	return Query{}.Or(queries...)
}

// Conjunctions returns a copy of the query's AND groups.
func (q Query) Conjunctions() [][]Condition {
	out := make([][]Condition, len(q.conjunctions))
	for i, conj := range q.conjunctions {
		out[i] = append([]Condition(nil), conj...)
	}
	return out
}

// IsEmpty reports whether q has no conditions at all.
func (q Query) IsEmpty() bool {
	for _, conj := range q.conjunctions {
		if len(conj) > 0 {
			return false
		}
	}
	return true
}

// Wire is the filter-list payload sent to a store's fetch: one object per
// conjunction, keyed by "field" or "field?suffix".
type Wire []value.Object

// Wire renders q. encode is applied to every operand (pass the codec's
// Encode so operands match the stored representation); nil leaves
// operands as they are. Range bounds are encoded element-wise.
//
// A string operand of contains or notContains is sent as it is: it is a
// substring of the stored text, and escaping it would break matching.
// Membership of a string starting with '$' in a stored list therefore
// does not match, since the stored element carries the escape.
func (q Query) Wire(encode func(value.Value) value.Value) Wire {
	if encode == nil {
		encode = func(v value.Value) value.Value { return v }
	}
	if len(q.conjunctions) == 0 {
		return nil
	}

	wire := make(Wire, len(q.conjunctions))
	for i, conj := range q.conjunctions {
		obj := make(value.Object, len(conj))
		for _, c := range conj {
			obj[c.WireKey()] = encodeOperand(c, encode)
		}
		wire[i] = obj
	}
	return wire
}

func encodeOperand(c Condition, encode func(value.Value) value.Value) value.Value {
	switch operand := c.Operand.(type) {
	case value.Array:
		if c.Op == OpRangeExclusive {
			return value.Array{encode(operand[0]), encode(operand[1])}
		}
	case value.String:
		if c.Op == OpContains || c.Op == OpNotContains {
			return operand
		}
	}
	return encode(c.Operand)
}

// ParseWire rebuilds a Query from its wire form, applying the same
// validation as construction. Stores use it to filter a fetch payload.
func ParseWire(w Wire) (Query, error) {
	q := Query{}
	for _, obj := range w {
		conds := make([]Condition, 0, len(obj))
		for _, key := range obj.SortedKeys() {
			field, op, err := splitWireKey(key)
			if err != nil {
				return Query{}, err
			}
			c := Condition{Field: field, Op: op, Operand: obj[key]}
			if c.Operand == nil {
				c.Operand = value.Null{}
			}
			if err := c.validate(); err != nil {
				return Query{}, err
			}
			conds = append(conds, c)
		}
		q.conjunctions = append(q.conjunctions, conds)
	}
	return q, nil
}

// splitWireKey splits "field?suffix" at the last '?'.
func splitWireKey(key string) (string, Op, error) {
	i := strings.LastIndexByte(key, '?')
	if i < 0 {
		return key, OpEq, nil
	}
	field, suffix := key[:i], key[i+1:]
	op, ok := suffixOp[suffix]
	if !ok {
		return "", "", newError(CodeUnknownOperator, field, Op(suffix), "unknown operator suffix %q", suffix)
	}
	return field, op, nil
}

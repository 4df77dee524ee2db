// Package querysql compiles filter queries to parameterized SQLite SQL
// over JSON documents, using the JSON1 functions.
//
// Records live in a table with a text key column and a JSON data column.
// The "key" field addresses the key column; every other field is a JSON
// path into the data column. A dotted segment names an object member,
// except that a non-negative integer segment indexes an array when the
// value before it is one, the way value.Lookup reads paths.
package querysql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/value"
)

// SQLCompiler compiles queries to parameterized SQL for SQLite.
//
// Every fetch is ordered by key with COLLATE BINARY, and values are always
// bound as parameters, never interpolated.
//
// A field of the wrong type for its operator does not match. (The
// in-memory predicates report such conditions as errors instead.)
type SQLCompiler struct {
	// Table is the items table. It must have base, key and data columns.
	Table string
}

// NewSQLCompiler returns a compiler for the items table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "items"}
}

// Fetch describes one page of a fetch.
type Fetch struct {
	Base  string
	Query query.Query
	// After resumes strictly after this key. Empty starts at the beginning.
	After string
	// Limit caps the row count. Non-positive means no limit.
	Limit int
}

// CompileFetch returns a SELECT of key and data for f, ordered by key.
// Placeholders are numbered (?1, ?2, ...) so one bound value can appear
// more than once in the text.
func (c *SQLCompiler) CompileFetch(f Fetch) (string, []any, error) {
	b := &builder{}
	base := b.bind(f.Base)
	where, err := b.query(f.Query)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT key, data FROM %s WHERE base = %s", c.Table, base)
	if where != "" {
		sb.WriteString(" AND (" + where + ")")
	}
	if f.After != "" {
		sb.WriteString(" AND key > " + b.bind(f.After))
	}
	sb.WriteString(" ORDER BY key COLLATE BINARY ASC")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(f.Limit))
	}
	return sb.String(), b.params, nil
}

// Compile converts q to a WHERE clause fragment (without the keyword).
// An empty query compiles to an empty fragment.
func (c *SQLCompiler) Compile(q query.Query) (string, []any, error) {
	b := &builder{}
	where, err := b.query(q)
	if err != nil {
		return "", nil, err
	}
	return where, b.params, nil
}

// builder accumulates parameters; bind returns the numbered placeholder.
type builder struct {
	params []any
}

func (b *builder) bind(v any) string {
	b.params = append(b.params, v)
	return fmt.Sprintf("?%d", len(b.params))
}

func (b *builder) query(q query.Query) (string, error) {
	if q.IsEmpty() {
		return "", nil
	}

	var disjuncts []string
	for _, conj := range q.Conjunctions() {
		if len(conj) == 0 {
			disjuncts = append(disjuncts, "1 = 1")
			continue
		}
		parts := make([]string, 0, len(conj))
		for _, cond := range conj {
			sql, err := b.condition(cond)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		disjuncts = append(disjuncts, "("+strings.Join(parts, " AND ")+")")
	}
	return strings.Join(disjuncts, " OR "), nil
}

// operand is the SQL view of one field: an expression yielding its JSON
// type name (NULL when missing), one yielding its SQL value, and the
// bound JSON path (empty for the key column).
type operand struct {
	typ, val, path string
}

func (b *builder) field(name string) (operand, error) {
	if name == query.KeyField {
		return operand{typ: "'text'", val: "key"}, nil
	}
	p, err := b.path(name)
	if err != nil {
		return operand{}, err
	}
	return operand{
		typ:  "json_type(data, " + p + ")",
		val:  "json_extract(data, " + p + ")",
		path: p,
	}, nil
}

// JSONPath renders a dotted field as a SQLite JSON path of quoted member
// names: "owner.id" becomes $."owner"."id".
func JSONPath(field string) (string, error) {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range value.SplitPath(field) {
		if strings.ContainsRune(seg, '"') {
			return "", &query.Error{
				Code:    query.CodeUnsupportedShape,
				Field:   field,
				Message: "field segment contains a double quote",
			}
		}
		sb.WriteString(member(seg))
	}
	return sb.String(), nil
}

func member(seg string) string {
	return `."` + seg + `"`
}

// path returns an SQL expression for the JSON path of field. Paths without
// integer segments are one bound string; each integer segment picks "[n]"
// or the member name by the JSON type of what precedes it.
func (b *builder) path(field string) (string, error) {
	if _, err := JSONPath(field); err != nil {
		return "", err
	}
	var expr string
	lit := "$"
	for _, seg := range value.SplitPath(field) {
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 {
			lit += member(seg)
			continue
		}
		prefix := b.concat(expr, lit)
		expr = fmt.Sprintf("(CASE json_type(data, %s) WHEN 'array' THEN %s || %s ELSE %s || %s END)",
			prefix, prefix, b.bind(fmt.Sprintf("[%d]", i)), prefix, b.bind(member(seg)))
		lit = ""
	}
	return b.concat(expr, lit), nil
}

func (b *builder) concat(expr, lit string) string {
	switch {
	case expr == "":
		return b.bind(lit)
	case lit == "":
		return expr
	default:
		return "(" + expr + " || " + b.bind(lit) + ")"
	}
}

func (b *builder) condition(c query.Condition) (string, error) {
	if err := c.Err(); err != nil {
		return "", err
	}
	o, err := b.field(c.Field)
	if err != nil {
		return "", err
	}

	switch c.Op {
	case query.OpEq:
		return "IFNULL(" + b.equals(o, c.Operand) + ", 0)", nil
	case query.OpNe:
		return "NOT IFNULL(" + b.equals(o, c.Operand) + ", 0)", nil
	case query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		return b.ordering(o, c.Op, c.Operand), nil
	case query.OpPrefix:
		s, _ := c.Operand.(value.String)
		return fmt.Sprintf("(%s = 'text' AND instr(%s, %s) = 1)", o.typ, o.val, b.bind(string(s))), nil
	case query.OpRangeExclusive:
		bounds, _ := c.Operand.(value.Array)
		if len(bounds) != 2 {
			return "", &query.Error{Code: query.CodeUnsupportedShape, Field: c.Field, Op: c.Op,
				Message: "range needs two bounds"}
		}
		return fmt.Sprintf("(%s IN ('integer', 'real') AND %s >= %s AND %s < %s)",
			o.typ, o.val, b.bind(param(bounds[0])), o.val, b.bind(param(bounds[1]))), nil
	case query.OpContains:
		return "IFNULL(" + b.contains(o, c.Operand) + ", 0)", nil
	case query.OpNotContains:
		return "NOT IFNULL(" + b.contains(o, c.Operand) + ", 0)", nil
	default:
		return "", &query.Error{Code: query.CodeUnknownOperator, Field: c.Field, Op: c.Op,
			Message: "unknown operator"}
	}
}

// equals matches JSON type and value. A missing field (NULL type) equals
// only a null operand.
func (b *builder) equals(o operand, v value.Value) string {
	switch val := v.(type) {
	case nil, value.Null:
		return fmt.Sprintf("(%s IS NULL OR %s = 'null')", o.typ, o.typ)
	case value.Bool:
		if val {
			return fmt.Sprintf("(%s = 'true')", o.typ)
		}
		return fmt.Sprintf("(%s = 'false')", o.typ)
	case value.Int, value.Float:
		return fmt.Sprintf("(%s IN ('integer', 'real') AND %s = %s)", o.typ, o.val, b.bind(param(v)))
	default:
		return fmt.Sprintf("(%s = 'text' AND %s = %s)", o.typ, o.val, b.bind(param(v)))
	}
}

func (b *builder) ordering(o operand, op query.Op, v value.Value) string {
	sym := map[query.Op]string{
		query.OpLt: "<", query.OpLte: "<=", query.OpGt: ">", query.OpGte: ">=",
	}[op]

	types := "= 'text'"
	if value.IsNumber(v) {
		types = "IN ('integer', 'real')"
	}
	return fmt.Sprintf("(%s %s AND %s %s %s)", o.typ, types, o.val, sym, b.bind(param(v)))
}

// contains tests list membership for an array field and substring (for a
// string operand) for a text field. Anything else does not contain.
func (b *builder) contains(o operand, v value.Value) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(CASE %s", o.typ)
	if o.path != "" {
		elem := b.equals(operand{typ: "je.type", val: "je.value"}, v)
		fmt.Fprintf(&sb, " WHEN 'array' THEN EXISTS (SELECT 1 FROM json_each(data, %s) AS je WHERE %s)", o.path, elem)
	}
	if s, ok := v.(value.String); ok {
		fmt.Fprintf(&sb, " WHEN 'text' THEN instr(%s, %s) > 0", o.val, b.bind(string(s)))
	}
	sb.WriteString(" ELSE 0 END)")
	return sb.String()
}

// param converts an operand to a driver value.
func param(v value.Value) any {
	switch val := v.(type) {
	case value.Int:
		return int64(val)
	case value.Float:
		return float64(val)
	case value.String:
		return string(val)
	case value.Bool:
		return bool(val)
	case value.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return nil
	}
}

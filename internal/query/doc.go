// Package query builds filter expressions and compiles them into predicates
// and into the filter-list wire shape sent to a store's fetch.
//
// A Query is a disjunction (OR) of conjunctions (AND) of field conditions:
//
//	q, err := query.New(
//	    query.Field("age").Gte(18),
//	    query.Field("age").Lt(65),
//	)
//	q = q.Or(query.MustNew(query.Field("role").Eq("admin")))
//
// On the wire each conjunction is one object whose keys are "field" (for
// equality) or "field?op", and the disjunction is the list of those objects:
//
//	[{"age?gte": 18, "age?lt": 65}, {"role": "admin"}]
//
// Operands are single values. A condition whose operand is itself a
// container (a list, an object, another condition) is rejected when the
// condition is built, never at evaluation. The only exception is the
// half-open range operator, whose operand is a [lo, hi) pair of numbers.
//
// Compile* turn a Query into a Predicate for in-process filtering; the
// in-memory store and tests use it. Paginate applies the cursor and limit
// rules shared by every store.
package query

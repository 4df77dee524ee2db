package querysql

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basekit/internal/query"
)

func TestCompileFetch_Everything(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, params, err := compiler.CompileFetch(Fetch{Base: "pets"})
	require.NoError(t, err)

	assert.Equal(t, "SELECT key, data FROM items WHERE base = ?1 ORDER BY key COLLATE BINARY ASC", sql)
	assert.Equal(t, []any{"pets"}, params)
}

func TestCompileFetch_Paging(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, params, err := compiler.CompileFetch(Fetch{Base: "pets", After: "k9", Limit: 11})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT key, data FROM items WHERE base = ?1 AND key > ?2 ORDER BY key COLLATE BINARY ASC LIMIT ?3", sql)
	assert.Equal(t, []any{"pets", "k9", 11}, params)
}

func TestCompile_EmptyQuery(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(query.Query{})
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Empty(t, params)
}

func TestCompile_ValuesAreParameterized(t *testing.T) {
	q := query.MustNew(
		query.Field("name").Eq("rex'; DROP TABLE items; --"),
		query.Field("age").Gte(3),
	)

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.NotContains(t, sql, "DROP TABLE")
	assert.NotContains(t, sql, "rex")
	assert.Contains(t, params, "rex'; DROP TABLE items; --")
	assert.Contains(t, params, int64(3))
	assert.Contains(t, params, `$."name"`)
	assert.Contains(t, params, `$."age"`)
}

func TestCompile_PlaceholdersMatchParams(t *testing.T) {
	q := query.MustNew(
		query.Field("tags").Contains("vip"),
		query.Field("score").Range(1, 5),
		query.Field("owner.name").Prefix("a"),
		query.Field("gone").Eq(nil),
	).Or(query.MustNew(query.Field("key").Ne("k1")))

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	for i := range params {
		assert.Contains(t, sql, "?"+strconv.Itoa(i+1), "placeholder for param %d", i+1)
	}
	assert.NotContains(t, sql, "?"+strconv.Itoa(len(params)+1))
	assert.Equal(t, 1, strings.Count(sql, ") OR ("))
}

func TestCompile_Operators(t *testing.T) {
	tests := []struct {
		name     string
		cond     query.Condition
		contains []string
	}{
		{"eq string", query.Field("name").Eq("rex"),
			[]string{"IFNULL((json_type(data, ?1) = 'text' AND json_extract(data, ?1) = ?2), 0)"}},
		{"eq number", query.Field("n").Eq(2.5),
			[]string{"json_type(data, ?1) IN ('integer', 'real') AND json_extract(data, ?1) = ?2"}},
		{"eq true", query.Field("ok").Eq(true), []string{"json_type(data, ?1) = 'true'"}},
		{"eq null", query.Field("x").Eq(nil),
			[]string{"json_type(data, ?1) IS NULL OR json_type(data, ?1) = 'null'"}},
		{"ne", query.Field("n").Ne(1), []string{"NOT IFNULL("}},
		{"lt number", query.Field("n").Lt(1), []string{"json_extract(data, ?1) < ?2"}},
		{"gte string", query.Field("s").Gte("m"), []string{"json_type(data, ?1) = 'text' AND json_extract(data, ?1) >= ?2"}},
		{"prefix", query.Field("s").Prefix("ab"), []string{"instr(json_extract(data, ?1), ?2) = 1"}},
		{"range", query.Field("n").Range(1, 3),
			[]string{"json_extract(data, ?1) >= ?2 AND json_extract(data, ?1) < ?3"}},
		{"contains", query.Field("tags").Contains("a"),
			[]string{"json_each(data, ?1) AS je", "je.type = 'text' AND je.value = ?2", "instr(json_extract(data, ?1), ?3) > 0"}},
		{"not contains", query.Field("tags").NotContains(4), []string{"NOT IFNULL((CASE", "ELSE 0 END)"}},
		{"key", query.Field("key").Prefix("a"), []string{"('text' = 'text' AND instr(key, ?1) = 1)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := NewSQLCompiler().Compile(query.MustNew(tt.cond))
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, sql, want)
			}
		})
	}
}

func TestCompile_NonStringContainsSkipsSubstring(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(query.MustNew(query.Field("tags").Contains(4)))
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHEN 'text'")
	assert.Equal(t, []any{`$."tags"`, int64(4)}, params)
}

func TestCompile_RangeParams(t *testing.T) {
	_, params, err := NewSQLCompiler().Compile(query.MustNew(query.Field("n").Range(1, 2.5)))
	require.NoError(t, err)
	assert.Equal(t, []any{`$."n"`, int64(1), 2.5}, params)
}

func TestCompile_RejectsQuotedSegment(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(query.MustNew(query.Field(`a"b`).Eq(1)))
	assert.True(t, query.IsUnsupportedShape(err))
}

func TestJSONPath(t *testing.T) {
	path, err := JSONPath("owner.first name")
	require.NoError(t, err)
	assert.Equal(t, `$."owner"."first name"`, path)

	_, err = JSONPath(`a."b`)
	assert.True(t, query.IsUnsupportedShape(err))
}

func TestCompile_IndexSegments(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(query.MustNew(query.Field("rows.0.n").Eq(1)))
	require.NoError(t, err)
	assert.Contains(t, sql, "CASE json_type(data, ?1) WHEN 'array' THEN ?1 || ?2 ELSE ?1 || ?3 END")
	assert.Equal(t, []any{`$."rows"`, "[0]", `."0"`, `."n"`, int64(1)}, params)

	_, params, err = NewSQLCompiler().Compile(query.MustNew(query.Field("owner.id").Eq(1)))
	require.NoError(t, err)
	assert.Equal(t, []any{`$."owner"."id"`, int64(1)}, params)
}

package sqlitestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

func keysOf(t *testing.T, items []value.Object) []string {
	t.Helper()
	out := make([]string, len(items))
	for i, item := range items {
		key, err := store.ItemKey(item)
		require.NoError(t, err)
		out[i] = key
	}
	return out
}

func TestFetch_OrderedByKey(t *testing.T) {
	ctx := context.Background()
	s := createTestDB(t).Base("b")
	for _, k := range []string{"c", "a", "B", "b"} {
		_, err := s.Put(ctx, k, value.Object{})
		require.NoError(t, err)
	}

	page, err := s.Fetch(ctx, nil, store.FetchOptions{})
	require.NoError(t, err)
	// COLLATE BINARY puts upper case first.
	assert.Equal(t, []string{"B", "a", "b", "c"}, keysOf(t, page.Items))
}

func TestFetch_CursorResumesAfterKey(t *testing.T) {
	ctx := context.Background()
	s := createTestDB(t).Base("b")
	for _, k := range []string{"a", "b", "c", "d"} {
		_, err := s.Put(ctx, k, value.Object{})
		require.NoError(t, err)
	}

	page, err := s.Fetch(ctx, nil, store.FetchOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keysOf(t, page.Items))
	assert.Equal(t, "b", page.Last)

	// A cursor need not name an existing item.
	page, err = s.Fetch(ctx, nil, store.FetchOptions{Last: "bb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, keysOf(t, page.Items))
	assert.Empty(t, page.Last)
}

func TestFetch_ExactLimitHasNoCursor(t *testing.T) {
	ctx := context.Background()
	s := createTestDB(t).Base("b")
	for _, k := range []string{"a", "b"} {
		_, err := s.Put(ctx, k, value.Object{})
		require.NoError(t, err)
	}

	page, err := s.Fetch(ctx, nil, store.FetchOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Empty(t, page.Last)
}

func TestFetch_BasesAreIsolated(t *testing.T) {
	ctx := context.Background()
	d := createTestDB(t)
	_, err := d.Base("cats").Put(ctx, "tom", value.Object{})
	require.NoError(t, err)
	_, err = d.Base("dogs").Put(ctx, "rex", value.Object{})
	require.NoError(t, err)

	page, err := d.Base("dogs").Fetch(ctx, nil, store.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"rex"}, keysOf(t, page.Items))

	_, err = d.Base("cats").Get(ctx, "rex")
	assert.ErrorIs(t, err, store.ErrNotFound)

	bases, err := d.Bases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cats", "dogs"}, bases)
}

func TestFetch_MissingFieldRules(t *testing.T) {
	ctx := context.Background()
	s := createTestDB(t).Base("b")
	_, err := s.Put(ctx, "with", value.Object{"x": value.Int(1), "n": value.Null{}})
	require.NoError(t, err)
	_, err = s.Put(ctx, "without", value.Object{})
	require.NoError(t, err)

	tests := []struct {
		name string
		cond query.Condition
		want []string
	}{
		{"eq null matches missing and null", query.Field("n").Eq(nil), []string{"with", "without"}},
		{"ne value matches missing", query.Field("x").Ne(1), []string{"without"}},
		{"ne null skips missing", query.Field("x").Ne(nil), []string{"with"}},
		{"not contains matches missing", query.Field("tags").NotContains("a"), []string{"with", "without"}},
		{"ordering skips missing", query.Field("x").Gte(0), []string{"with"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.Fetch(ctx, query.MustNew(tt.cond).Wire(nil), store.FetchOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(t, page.Items))
		})
	}
}

func TestFetch_TypeMismatchDoesNotMatch(t *testing.T) {
	ctx := context.Background()
	s := createTestDB(t).Base("b")
	_, err := s.Put(ctx, "a", value.Object{"name": value.Int(3), "flag": value.Bool(true)})
	require.NoError(t, err)

	for _, c := range []query.Condition{
		query.Field("name").Prefix("3"),
		query.Field("name").Eq("3"),
		query.Field("flag").Eq(1),
		query.Field("name").Contains("3"),
	} {
		page, err := s.Fetch(ctx, query.MustNew(c).Wire(nil), store.FetchOptions{})
		require.NoError(t, err)
		assert.Empty(t, page.Items, "%s?%s", c.Field, c.Op)
	}
}

func TestFetch_NumbersCompareAcrossIntAndFloat(t *testing.T) {
	ctx := context.Background()
	s := createTestDB(t).Base("b")
	_, err := s.Put(ctx, "a", value.Object{"n": value.Float(2)})
	require.NoError(t, err)

	page, err := s.Fetch(ctx, query.MustNew(query.Field("n").Eq(2)).Wire(nil), store.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

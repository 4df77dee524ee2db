// Package storetest provides the conformance suite every store.Store
// backend runs from its own tests.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store {
//	        return memstore.New()
//	    })
//	}
package storetest

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Factory returns a fresh, empty store. It is called once per test.
type Factory func(t *testing.T) store.Store

// Run runs the conformance suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	suite.Run(t, &Suite{factory: factory})
}

// Suite is the conformance suite.
type Suite struct {
	suite.Suite
	factory Factory
	st      store.Store
	ctx     context.Context
}

// SetupTest builds a fresh store for every test.
func (s *Suite) SetupTest() {
	s.st = s.factory(s.T())
	s.ctx = context.Background()
}

func obj(fields map[string]any) value.Object {
	return value.MustFromNative(fields).(value.Object)
}

// requireSame compares with value.Equal, since backends that serialize
// may return 2.0 as 2.
func (s *Suite) requireSame(expected, actual value.Value) {
	s.T().Helper()
	s.Require().True(value.Equal(expected, actual), "expected %#v\nactual   %#v", expected, actual)
}

func (s *Suite) seed(n int) {
	s.T().Helper()
	for i := 0; i < n; i++ {
		_, err := s.st.Put(s.ctx, fmt.Sprintf("item-%02d", i), obj(map[string]any{
			"n":    i,
			"even": i%2 == 0,
			"name": fmt.Sprintf("name-%d", i),
			"tags": []any{fmt.Sprintf("t%d", i%3)},
		}))
		s.Require().NoError(err)
	}
}

func (s *Suite) TestGetMissing() {
	_, err := s.st.Get(s.ctx, "nope")
	s.Require().ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestPutGetRoundTrip() {
	data := obj(map[string]any{
		"name":   "rex",
		"age":    4,
		"weight": 12.5,
		"good":   true,
		"none":   nil,
		"tags":   []any{"a", 1, false},
		"owner":  map[string]any{"name": "ana", "ids": []any{1, 2}},
		"empty":  []any{},
	})

	put, err := s.st.Put(s.ctx, "dog", data)
	s.Require().NoError(err)
	s.Equal(value.String("dog"), put[store.KeyField])

	got, err := s.st.Get(s.ctx, "dog")
	s.Require().NoError(err)
	s.requireSame(store.WithKey("dog", data), got)
}

func (s *Suite) TestPutReplaces() {
	_, err := s.st.Put(s.ctx, "k", obj(map[string]any{"a": 1, "b": 2}))
	s.Require().NoError(err)
	_, err = s.st.Put(s.ctx, "k", obj(map[string]any{"c": 3}))
	s.Require().NoError(err)

	got, err := s.st.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.requireSame(obj(map[string]any{"key": "k", "c": 3}), got)
}

func (s *Suite) TestPutIgnoresKeyInData() {
	_, err := s.st.Put(s.ctx, "real", obj(map[string]any{"key": "fake", "a": 1}))
	s.Require().NoError(err)

	got, err := s.st.Get(s.ctx, "real")
	s.Require().NoError(err)
	s.Equal(value.String("real"), got[store.KeyField])

	_, err = s.st.Get(s.ctx, "fake")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestInsertDuplicate() {
	_, err := s.st.Insert(s.ctx, "k", obj(map[string]any{"v": 1}))
	s.Require().NoError(err)

	_, err = s.st.Insert(s.ctx, "k", obj(map[string]any{"v": 2}))
	s.Require().ErrorIs(err, store.ErrDuplicateKey)

	got, err := s.st.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.requireSame(value.Int(1), got["v"])
}

func (s *Suite) TestPutMany() {
	items := []value.Object{
		obj(map[string]any{"key": "a", "v": 1}),
		obj(map[string]any{"key": "b", "v": 2}),
	}
	out, err := s.st.PutMany(s.ctx, items)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(value.String("a"), out[0][store.KeyField])
	s.Equal(value.String("b"), out[1][store.KeyField])

	got, err := s.st.Get(s.ctx, "b")
	s.Require().NoError(err)
	s.requireSame(value.Int(2), got["v"])
}

func (s *Suite) TestPutManyLimits() {
	items := make([]value.Object, store.MaxBatchSize+1)
	for i := range items {
		items[i] = obj(map[string]any{"key": fmt.Sprint(i)})
	}
	_, err := s.st.PutMany(s.ctx, items)
	s.Require().ErrorIs(err, store.ErrBatchTooLarge)

	_, err = s.st.PutMany(s.ctx, []value.Object{obj(map[string]any{"v": 1})})
	s.Require().ErrorIs(err, store.ErrMissingKey)

	page, err := s.st.Fetch(s.ctx, nil, store.FetchOptions{})
	s.Require().NoError(err)
	s.Empty(page.Items, "a rejected batch must not write anything")
}

func (s *Suite) TestUpdateMissingKey() {
	err := s.st.Update(s.ctx, "ghost", store.Update{Set: map[string]value.Value{"a": value.Int(1)}})
	s.Require().ErrorIs(err, store.ErrKeyNotFound)
}

func (s *Suite) TestUpdateOperations() {
	_, err := s.st.Put(s.ctx, "k", obj(map[string]any{
		"name":   "rex",
		"visits": 1,
		"tags":   []any{"b"},
		"owner":  map[string]any{"name": "ana"},
		"temp":   "x",
	}))
	s.Require().NoError(err)

	var upd store.Update
	upd.SetField("name", value.String("max"))
	upd.SetField("owner.name", value.String("bo"))
	upd.IncrementField("visits", value.Int(2))
	upd.AppendField("tags", value.String("c"))
	upd.PrependField("tags", value.String("a"))
	upd.DeleteField("temp")
	s.Require().NoError(s.st.Update(s.ctx, "k", upd))

	got, err := s.st.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.requireSame(obj(map[string]any{
		"key":    "k",
		"name":   "max",
		"visits": 3,
		"tags":   []any{"a", "b", "c"},
		"owner":  map[string]any{"name": "bo"},
	}), got)
	_, present := got["temp"]
	s.False(present, "deleted field must be absent")
}

func (s *Suite) TestUpdateInvalid() {
	_, err := s.st.Put(s.ctx, "k", obj(map[string]any{"name": "rex"}))
	s.Require().NoError(err)

	err = s.st.Update(s.ctx, "k", store.Update{Increment: map[string]value.Value{"name": value.Int(1)}})
	s.Require().ErrorIs(err, store.ErrInvalidUpdate)
}

func (s *Suite) TestReturnedItemsAreCopies() {
	_, err := s.st.Put(s.ctx, "k", obj(map[string]any{"tags": []any{"a"}}))
	s.Require().NoError(err)

	got, err := s.st.Get(s.ctx, "k")
	s.Require().NoError(err)
	got["tags"].(value.Array)[0] = value.String("mutated")
	got["extra"] = value.Int(1)

	again, err := s.st.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.requireSame(obj(map[string]any{"key": "k", "tags": []any{"a"}}), again)
}

func (s *Suite) keys(items []value.Object) []string {
	out := make([]string, len(items))
	for i, item := range items {
		key, err := store.ItemKey(item)
		s.Require().NoError(err)
		out[i] = key
	}
	sort.Strings(out)
	return out
}

func (s *Suite) TestFetchEverything() {
	s.seed(5)

	page, err := s.st.Fetch(s.ctx, nil, store.FetchOptions{})
	s.Require().NoError(err)
	s.Equal([]string{"item-00", "item-01", "item-02", "item-03", "item-04"}, s.keys(page.Items))
	s.Empty(page.Last)
}

func (s *Suite) TestFetchFilters() {
	s.seed(10)

	tests := []struct {
		name string
		q    query.Query
		want []string
	}{
		{"eq", query.MustNew(query.Field("n").Eq(3)), []string{"item-03"}},
		{"bool eq", query.MustNew(query.Field("even").Eq(true), query.Field("n").Lt(5)),
			[]string{"item-00", "item-02", "item-04"}},
		{"ne", query.MustNew(query.Field("n").Ne(0), query.Field("n").Lte(2)), []string{"item-01", "item-02"}},
		{"gt gte", query.MustNew(query.Field("n").Gt(7)), []string{"item-08", "item-09"}},
		{"range", query.MustNew(query.Field("n").Range(3, 5)), []string{"item-03", "item-04"}},
		{"prefix", query.MustNew(query.Field("name").Prefix("name-1")), []string{"item-01"}},
		{"contains list", query.MustNew(query.Field("tags").Contains("t2"), query.Field("n").Lt(6)),
			[]string{"item-02", "item-05"}},
		{"contains string", query.MustNew(query.Field("name").Contains("-9")), []string{"item-09"}},
		{"not contains", query.MustNew(query.Field("tags").NotContains("t0"), query.Field("n").Gte(7)),
			[]string{"item-07", "item-08"}},
		{"key", query.MustNew(query.Field("key").Eq("item-06")), []string{"item-06"}},
		{"or", query.MustNew(query.Field("n").Eq(1)).Or(query.MustNew(query.Field("n").Eq(8))),
			[]string{"item-01", "item-08"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			page, err := s.st.Fetch(s.ctx, tt.q.Wire(nil), store.FetchOptions{})
			s.Require().NoError(err)
			s.Equal(tt.want, s.keys(page.Items))
		})
	}
}

func (s *Suite) TestFetchNestedField() {
	_, err := s.st.Put(s.ctx, "a", obj(map[string]any{"owner": map[string]any{"id": 1}}))
	s.Require().NoError(err)
	_, err = s.st.Put(s.ctx, "b", obj(map[string]any{"owner": map[string]any{"id": 2}}))
	s.Require().NoError(err)

	page, err := s.st.Fetch(s.ctx, query.MustNew(query.Field("owner.id").Eq(2)).Wire(nil), store.FetchOptions{})
	s.Require().NoError(err)
	s.Equal([]string{"b"}, s.keys(page.Items))
}

func (s *Suite) TestFetchIndexedField() {
	_, err := s.st.Put(s.ctx, "a", obj(map[string]any{"tags": []any{"x", "y"}}))
	s.Require().NoError(err)
	_, err = s.st.Put(s.ctx, "b", obj(map[string]any{"tags": []any{"y"}}))
	s.Require().NoError(err)
	_, err = s.st.Put(s.ctx, "c", obj(map[string]any{"tags": map[string]any{"0": "y"}}))
	s.Require().NoError(err)
	_, err = s.st.Put(s.ctx, "d", obj(map[string]any{"rows": []any{[]any{1, 2}, map[string]any{"n": 3}}}))
	s.Require().NoError(err)

	fetch := func(q query.Query) []string {
		page, err := s.st.Fetch(s.ctx, q.Wire(nil), store.FetchOptions{})
		s.Require().NoError(err)
		return s.keys(page.Items)
	}

	// An integer segment indexes a list, or names a member of an object.
	s.Equal([]string{"b", "c"}, fetch(query.MustNew(query.Field("tags.0").Eq("y"))))
	s.Equal([]string{"a"}, fetch(query.MustNew(query.Field("tags.1").Eq("y"))))
	s.Empty(fetch(query.MustNew(query.Field("tags.2").Eq("y"))))
	s.Equal([]string{"d"}, fetch(query.MustNew(query.Field("rows.0.1").Eq(2))))
	s.Equal([]string{"d"}, fetch(query.MustNew(query.Field("rows.1.n").Gt(2))))
}

func (s *Suite) TestFetchPagination() {
	s.seed(12)
	filter := query.MustNew(query.Field("n").Gte(1)).Wire(nil)

	var all []value.Object
	opts := store.FetchOptions{Limit: 5}
	pages := 0
	for {
		page, err := s.st.Fetch(s.ctx, filter, opts)
		s.Require().NoError(err)
		s.Require().LessOrEqual(len(page.Items), 5)
		all = append(all, page.Items...)
		pages++
		if page.Last == "" {
			break
		}
		s.Require().Less(pages, 10, "pagination does not terminate")
		opts.Last = page.Last
	}

	keys := s.keys(all)
	s.Len(keys, 11)
	for i, k := range keys {
		s.Equal(fmt.Sprintf("item-%02d", i+1), k)
	}
	s.Equal(3, pages)
}

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basekit/internal/value"
)

func stored(t *testing.T, db *Database, key, field string) value.Value {
	t.Helper()
	r, err := db.Get(context.Background(), key)
	require.NoError(t, err)
	v, err := r.Field(context.Background(), field)
	require.NoError(t, err)
	return v
}

func TestSeqAppendUsesAppendOperation(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"tags": []any{"a"}})

	tags, err := db.Record("k").Seq(ctx, "tags")
	require.NoError(t, err)
	require.NoError(t, tags.Append(ctx, value.String("b")))

	require.Len(t, rec.updates, 1)
	assert.Equal(t, map[string]value.Array{"tags": {value.String("b")}}, rec.updates[0].Append)
	assert.Empty(t, rec.updates[0].Set)

	assert.Equal(t, value.Array{value.String("a"), value.String("b")}, tags.Data())
	assert.Equal(t, value.Array{value.String("a"), value.String("b")}, stored(t, db, "k", "tags"))
}

func TestSeqAppendKeepsConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"log": []any{}})

	first, err := db.Record("k").Seq(ctx, "log")
	require.NoError(t, err)
	second, err := db.Record("k").Seq(ctx, "log")
	require.NoError(t, err)

	require.NoError(t, first.Append(ctx, value.String("x")))
	require.NoError(t, second.Append(ctx, value.String("y")))

	assert.Equal(t, value.Array{value.String("x"), value.String("y")}, stored(t, db, "k", "log"))
}

func TestSeqAppendInsideBatchWritesWholeList(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"tags": []any{"a"}})
	r := db.Record("k")

	require.NoError(t, r.Batch(ctx, func() error {
		tags, err := r.Seq(ctx, "tags")
		if err != nil {
			return err
		}
		if err := tags.Append(ctx, value.String("b")); err != nil {
			return err
		}
		return tags.Append(ctx, value.String("c"))
	}))

	require.Len(t, rec.updates, 1)
	assert.Empty(t, rec.updates[0].Append)
	assert.Equal(t, value.Array{value.String("a"), value.String("b"), value.String("c")}, rec.updates[0].Set["tags"])
}

func TestSeqMutations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ctx context.Context, s *BoundSeq) error
		want   []any
	}{
		{"extend", func(ctx context.Context, s *BoundSeq) error {
			return s.Extend(ctx, value.Int(4), value.Int(5))
		}, []any{3, 1, 2, 4, 5}},
		{"insert", func(ctx context.Context, s *BoundSeq) error {
			return s.Insert(ctx, 1, value.Int(9))
		}, []any{3, 9, 1, 2}},
		{"insert at end", func(ctx context.Context, s *BoundSeq) error {
			return s.Insert(ctx, 3, value.Int(9))
		}, []any{3, 1, 2, 9}},
		{"set", func(ctx context.Context, s *BoundSeq) error {
			return s.Set(ctx, -1, value.Int(0))
		}, []any{3, 1, 0}},
		{"pop", func(ctx context.Context, s *BoundSeq) error {
			v, err := s.Pop(ctx, 0)
			if err == nil && !value.Equal(v, value.Int(3)) {
				return assert.AnError
			}
			return err
		}, []any{1, 2}},
		{"remove", func(ctx context.Context, s *BoundSeq) error {
			_, err := s.Remove(ctx, value.Int(1))
			return err
		}, []any{3, 2}},
		{"clear", func(ctx context.Context, s *BoundSeq) error {
			return s.Clear(ctx)
		}, []any{}},
		{"reverse", func(ctx context.Context, s *BoundSeq) error {
			return s.Reverse(ctx)
		}, []any{2, 1, 3}},
		{"sort", func(ctx context.Context, s *BoundSeq) error {
			return s.Sort(ctx)
		}, []any{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db, rec, _ := newTestDB(t)
			seedRecord(t, db, "k", map[string]any{"nums": []any{3, 1, 2}})

			nums, err := db.Record("k").Seq(ctx, "nums")
			require.NoError(t, err)
			require.NoError(t, tt.mutate(ctx, nums))

			want := value.MustFromNative(tt.want)
			require.Len(t, rec.updates, 1)
			assert.True(t, value.Equal(want, rec.updates[0].Set["nums"]), "update %#v", rec.updates[0].Set)
			assert.True(t, value.Equal(want, nums.Data()))
			assert.True(t, value.Equal(want, stored(t, db, "k", "nums")))
		})
	}
}

func TestSeqErrors(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"mixed": []any{1, "a"}, "name": "rex"})
	r := db.Record("k")

	_, err := r.Seq(ctx, "name")
	assert.ErrorIs(t, err, ErrNotContainer)
	_, err = r.Map(ctx, "mixed")
	assert.ErrorIs(t, err, ErrNotContainer)

	mixed, err := r.Seq(ctx, "mixed")
	require.NoError(t, err)
	assert.ErrorIs(t, mixed.Sort(ctx), value.ErrUnorderable)
	assert.ErrorIs(t, mixed.Set(ctx, 5, value.Int(0)), ErrIndexOutOfRange)
	_, err = mixed.At(-3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	removed, err := mixed.Remove(ctx, value.String("zzz"))
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Empty(t, rec.updates, "failed mutations must not write")
}

func TestMapMutations(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"owner": map[string]any{"name": "ana", "age": 30}})

	owner, err := db.Record("k").Map(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, "owner", owner.Path())
	assert.Equal(t, []string{"age", "name"}, owner.Keys())

	require.NoError(t, owner.Set(ctx, "name", value.String("bo")))
	assert.Equal(t, obj(map[string]any{"name": "bo", "age": 30}), rec.updates[0].Set["owner"])

	require.NoError(t, owner.Delete(ctx, "age"))
	assert.ErrorIs(t, owner.Delete(ctx, "age"), ErrFieldNotFound)

	city, err := owner.SetDefault(ctx, "city", value.String("lima"))
	require.NoError(t, err)
	assert.Equal(t, value.String("lima"), city)
	city, err = owner.SetDefault(ctx, "city", value.String("quito"))
	require.NoError(t, err)
	assert.Equal(t, value.String("lima"), city)

	require.NoError(t, owner.Merge(ctx, obj(map[string]any{"zip": "15001", "name": "cy"})))
	assert.True(t, value.Equal(
		obj(map[string]any{"name": "cy", "city": "lima", "zip": "15001"}),
		stored(t, db, "k", "owner"),
	))

	popped, err := owner.Pop(ctx, "zip")
	require.NoError(t, err)
	assert.Equal(t, value.String("15001"), popped)

	require.NoError(t, owner.Clear(ctx))
	assert.Equal(t, 0, owner.Len())
	assert.Equal(t, value.Object{}, stored(t, db, "k", "owner"))

	// Writes: set, delete, setdefault, merge, pop, clear.
	assert.Len(t, rec.updates, 6)
}

func TestNestedViewsPersistAtTheirPath(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{
		"owner": map[string]any{
			"pets": []any{
				map[string]any{"name": "rex", "toys": []any{"ball"}},
			},
		},
	})

	owner, err := db.Record("k").Map(ctx, "owner")
	require.NoError(t, err)
	pets, err := owner.Seq("pets")
	require.NoError(t, err)
	assert.Equal(t, "owner.pets", pets.Path())

	rex, err := pets.Map(0)
	require.NoError(t, err)
	assert.Equal(t, "owner.pets.0", rex.Path())
	toys, err := rex.Seq("toys")
	require.NoError(t, err)

	require.NoError(t, rex.Set(ctx, "name", value.String("max")))
	require.NoError(t, toys.Append(ctx, value.String("bone")))

	require.Len(t, rec.updates, 2)
	assert.Contains(t, rec.updates[0].Set, "owner.pets.0")
	assert.Equal(t, value.Array{value.String("bone")}, rec.updates[1].Append["owner.pets.0.toys"])

	// The parent views see what the nested ones did.
	want := obj(map[string]any{
		"pets": []any{
			map[string]any{"name": "max", "toys": []any{"ball", "bone"}},
		},
	})
	assert.True(t, value.Equal(want, owner.Data()), "owner %#v", owner.Data())
	assert.True(t, value.Equal(want, stored(t, db, "k", "owner")))
}

func TestNestedViewsInsideBatch(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": map[string]any{"b": []any{map[string]any{"c": 1}}}})
	r := db.Record("k")

	require.NoError(t, r.Batch(ctx, func() error {
		a, err := r.Map(ctx, "a")
		if err != nil {
			return err
		}
		b, err := a.Seq("b")
		if err != nil {
			return err
		}
		first, err := b.Map(0)
		if err != nil {
			return err
		}
		if err := first.Set(ctx, "c", value.Int(2)); err != nil {
			return err
		}
		return b.Append(ctx, value.Int(3))
	}))

	require.Len(t, rec.updates, 1)
	want := obj(map[string]any{"b": []any{map[string]any{"c": 2}, 3}})
	assert.True(t, value.Equal(want, stored(t, db, "k", "a")))
}

func TestViewsDoNotAliasRecord(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"m": map[string]any{"x": 1}})
	r := db.Record("k")

	m, err := r.Map(ctx, "m")
	require.NoError(t, err)
	inner := m.Data()
	inner["x"] = value.Int(99)

	v, err := m.Get("x")
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)

	_, err = m.Get("y")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "m.y", fe.Path)
}

func TestMapClearStoresEmptyObject(t *testing.T) {
	ctx := context.Background()
	db, _, mem := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"m": map[string]any{"x": 1}})

	m, err := db.Record("k").Map(ctx, "m")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx))

	raw, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, value.Null{}, raw["m"])
	assert.Equal(t, value.Object{}, stored(t, db, "k", "m"))
}

func TestFailedViewWritesLeaveViewUnchanged(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{
		"owner": map[string]any{"name": "bo"},
		"tags":  []any{"a"},
	})
	r := db.Record("k")
	owner, err := r.Map(ctx, "owner")
	require.NoError(t, err)
	tags, err := r.Seq(ctx, "tags")
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	assert.ErrorIs(t, owner.Set(canceled, "age", value.Int(3)), context.Canceled)
	assert.False(t, owner.Has("age"))

	_, err = owner.Pop(canceled, "name")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, owner.Has("name"))

	_, err = owner.SetDefault(canceled, "age", value.Int(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, owner.Merge(canceled, value.Object{"age": value.Int(3)}), context.Canceled)
	assert.ErrorIs(t, owner.Clear(canceled), context.Canceled)
	assert.Equal(t, value.Object{"name": value.String("bo")}, owner.Data())

	assert.ErrorIs(t, tags.Append(canceled, value.String("b")), context.Canceled)
	_, err = tags.Pop(canceled, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, value.Array{value.String("a")}, tags.Data())

	// The view still writes once the store is reachable.
	require.NoError(t, owner.Set(ctx, "age", value.Int(3)))
	assert.Equal(t, value.Object{"name": value.String("bo"), "age": value.Int(3)}, stored(t, db, "k", "owner"))
}

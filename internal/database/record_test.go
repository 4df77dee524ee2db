package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

func seedRecord(t *testing.T, db *Database, key string, data map[string]any) {
	t.Helper()
	_, err := db.Put(context.Background(), key, obj(data))
	require.NoError(t, err)
}

func TestRecordLoadsLazily(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"name": "rex"})

	r := db.Record("k")
	assert.False(t, r.Loaded())
	assert.Zero(t, rec.gets)

	name, err := r.Field(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, value.String("rex"), name)
	assert.True(t, r.Loaded())

	_, err = r.Field(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.gets, "a loaded record must not read again")
}

func TestRecordFromWriteIsLoaded(t *testing.T) {
	db, rec, _ := newTestDB(t)
	r, err := db.Put(context.Background(), "k", obj(map[string]any{"a": 1}))
	require.NoError(t, err)

	assert.True(t, r.Loaded())
	_, err = r.Field(context.Background(), "a")
	require.NoError(t, err)
	assert.Zero(t, rec.gets)
}

func TestRecordMissingItem(t *testing.T) {
	db, _, _ := newTestDB(t)
	_, err := db.Record("ghost").Field(context.Background(), "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFieldNotFound(t *testing.T) {
	db, _, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1})

	_, err := db.Record("k").Field(context.Background(), "b")
	require.ErrorIs(t, err, ErrFieldNotFound)
	assert.True(t, IsFieldNotFound(err))

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "k", fe.Key)
	assert.Equal(t, "b", fe.Path)
	assert.EqualError(t, err, `record "k": field "b": field not found`)
}

func TestFieldReturnsCopy(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"tags": []any{"a"}})
	r := db.Record("k")

	tags, err := r.Field(ctx, "tags")
	require.NoError(t, err)
	tags.(value.Array)[0] = value.String("changed")

	again, err := r.Field(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, value.Array{value.String("a")}, again)
}

func TestWritesOutsideScopeAreImmediate(t *testing.T) {
	ctx := context.Background()
	db, rec, mem := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 0})
	r := db.Record("k")

	require.NoError(t, r.Set(ctx, "a", value.Int(1)))
	require.NoError(t, r.Set(ctx, "b", value.Int(2)))
	require.NoError(t, r.Set(ctx, "c", value.Int(3)))

	require.Len(t, rec.updates, 3)
	assert.Equal(t, map[string]value.Value{"a": value.Int(1)}, rec.updates[0].Set)
	assert.Equal(t, map[string]value.Value{"c": value.Int(3)}, rec.updates[2].Set)

	raw, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), raw["b"])
}

func TestWriteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 0})
	r := db.Record("k")

	_, err := r.Field(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, r.Set(ctx, "a", value.Int(7)))
	assert.False(t, r.Loaded())

	a, err := r.Field(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, value.Int(7), a)
	assert.Equal(t, 2, rec.gets)
}

func TestBatchIssuesOneUpdate(t *testing.T) {
	ctx := context.Background()
	db, rec, mem := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 0})
	r := db.Record("k")

	err := r.Batch(ctx, func() error {
		assert.True(t, r.InScope())
		if err := r.Set(ctx, "a", value.Int(1)); err != nil {
			return err
		}
		if err := r.Set(ctx, "b", value.Int(2)); err != nil {
			return err
		}
		if err := r.Set(ctx, "c", value.Int(3)); err != nil {
			return err
		}
		assert.Empty(t, rec.updates, "writes inside a scope must be buffered")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, r.InScope())

	require.Len(t, rec.updates, 1)
	assert.Equal(t, map[string]value.Value{
		"a": value.Int(1), "b": value.Int(2), "c": value.Int(3),
	}, rec.updates[0].Set)

	raw, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), raw["c"])
	assert.False(t, r.Loaded())
}

func TestEmptyBatchSendsNothing(t *testing.T) {
	db, rec, _ := newTestDB(t)
	r := db.Record("k")

	require.NoError(t, r.Batch(context.Background(), func() error { return nil }))
	assert.Empty(t, rec.updates)
}

func TestBatchDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 0})
	r := db.Record("k")
	boom := errors.New("boom")

	err := r.Batch(ctx, func() error {
		require.NoError(t, r.Set(ctx, "a", value.Int(1)))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, rec.updates)
	assert.False(t, r.InScope())

	// A later scope starts empty rather than replaying the discarded write.
	require.NoError(t, r.Batch(ctx, func() error {
		return r.Set(ctx, "b", value.Int(2))
	}))
	require.Len(t, rec.updates, 1)
	assert.Equal(t, map[string]value.Value{"b": value.Int(2)}, rec.updates[0].Set)
}

func TestBatchDiscardsOnPanic(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 0})
	r := db.Record("k")

	assert.Panics(t, func() {
		_ = r.Batch(ctx, func() error {
			_ = r.Set(ctx, "a", value.Int(1))
			panic("boom")
		})
	})
	assert.False(t, r.InScope())
	assert.Empty(t, rec.updates)
}

func TestBatchRejectsReentry(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t)
	r := db.Record("k")

	var inner error
	require.NoError(t, r.Batch(ctx, func() error {
		inner = r.Batch(ctx, func() error { return nil })
		return nil
	}))
	assert.ErrorIs(t, inner, ErrScopeActive)
}

func TestDeleteRemovesField(t *testing.T) {
	ctx := context.Background()
	db, rec, mem := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1, "b": 2})
	r := db.Record("k")

	require.NoError(t, r.Delete(ctx, "a"))
	require.Len(t, rec.updates, 1)
	assert.Equal(t, []string{"a"}, rec.updates[0].Delete)
	assert.Empty(t, rec.updates[0].Set)

	raw, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	_, present := raw["a"]
	assert.False(t, present, "deleted field must be absent, not null")

	err = r.Delete(ctx, "a")
	assert.ErrorIs(t, err, ErrFieldNotFound)
	assert.Len(t, rec.updates, 1)
}

func TestDeleteInsideBatch(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1, "b": 2})
	r := db.Record("k")

	require.NoError(t, r.Batch(ctx, func() error {
		if err := r.Delete(ctx, "a"); err != nil {
			return err
		}
		has, err := r.Has(ctx, "a")
		require.NoError(t, err)
		assert.False(t, has)
		return r.Set(ctx, "c", value.Int(3))
	}))

	require.Len(t, rec.updates, 1)
	assert.Equal(t, []string{"a"}, rec.updates[0].Delete)
	assert.Equal(t, map[string]value.Value{"c": value.Int(3)}, rec.updates[0].Set)
}

func TestFailedDeleteKeepsLocalField(t *testing.T) {
	ctx := context.Background()
	db, _, mem := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1})
	r := db.Record("k")
	_, err := r.Has(ctx, "a")
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, r.Delete(canceled, "a"), context.Canceled)

	assert.True(t, r.Loaded())
	has, err := r.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, has, "a failed delete must not drop the local field")

	raw, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), raw["a"])
}

func TestBatchRestoresFieldsWhenDiscarded(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1, "b": 2})
	r := db.Record("k")
	_, err := r.Has(ctx, "a")
	require.NoError(t, err)
	boom := errors.New("boom")

	err = r.Batch(ctx, func() error {
		require.NoError(t, r.Delete(ctx, "a"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, rec.updates)

	has, err := r.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 1, rec.gets, "restored fields are served without a reload")

	assert.Panics(t, func() {
		_ = r.Batch(ctx, func() error {
			_ = r.Delete(ctx, "b")
			panic("boom")
		})
	})
	has, err = r.Has(ctx, "b")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBatchRestoresFieldsWhenFlushFails(t *testing.T) {
	ctx := context.Background()
	db, _, mem := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1})
	r := db.Record("k")
	_, err := r.Has(ctx, "a")
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = r.Batch(canceled, func() error {
		return r.Delete(canceled, "a")
	})
	require.ErrorIs(t, err, context.Canceled)

	has, err := r.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, has)
	raw, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Contains(t, raw, "a")
}

func TestGetOrDefault(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1})
	r := db.Record("k")

	a, err := r.GetOrDefault(ctx, "a", value.Int(9))
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), a)
	assert.Empty(t, rec.updates)

	tags, err := r.GetOrDefault(ctx, "tags", value.Array{})
	require.NoError(t, err)
	assert.Equal(t, value.Array{}, tags)
	require.Len(t, rec.updates, 1)

	got, err := r.Field(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, value.Array{}, got)
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	db, rec, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"visits": 1})
	r := db.Record("k")

	require.NoError(t, r.Increment(ctx, "visits", value.Int(2)))
	require.NoError(t, r.Batch(ctx, func() error {
		if err := r.Increment(ctx, "visits", value.Int(1)); err != nil {
			return err
		}
		return r.Increment(ctx, "visits", value.Int(1))
	}))

	require.Len(t, rec.updates, 2)
	assert.Equal(t, map[string]value.Value{"visits": value.Int(2)}, rec.updates[1].Increment)

	visits, err := r.Field(ctx, "visits")
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), visits)

	err = r.Increment(ctx, "visits", value.String("1"))
	assert.ErrorIs(t, err, store.ErrInvalidUpdate)
}

func TestWriteToMissingRecord(t *testing.T) {
	db, _, _ := newTestDB(t)
	err := db.Record("ghost").Set(context.Background(), "a", value.Int(1))
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestAutoCreate(t *testing.T) {
	ctx := context.Background()
	db, _, mem := newTestDB(t, WithAutoCreate())
	r := db.Record("new")

	has, err := r.Has(ctx, "count")
	require.NoError(t, err)
	assert.False(t, has)

	count, err := r.GetOrDefault(ctx, "count", value.Int(0))
	require.NoError(t, err)
	assert.Equal(t, value.Int(0), count)
	require.NoError(t, r.Increment(ctx, "count", value.Int(1)))

	raw, err := mem.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), raw["count"])
}

func TestDataIsACopy(t *testing.T) {
	ctx := context.Background()
	db, _, _ := newTestDB(t)
	seedRecord(t, db, "k", map[string]any{"a": 1})
	r := db.Record("k")

	data, err := r.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, obj(map[string]any{"a": 1}), data)
	data["a"] = value.Int(2)

	a, err := r.Field(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), a)
}

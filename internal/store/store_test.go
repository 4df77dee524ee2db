package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basekit/internal/value"
)

func obj(fields map[string]any) value.Object {
	return value.MustFromNative(fields).(value.Object)
}

func TestWithKeyAndWithoutKey(t *testing.T) {
	data := obj(map[string]any{"name": "rex", "key": "ignored"})

	item := WithKey("k1", data)
	assert.Equal(t, value.String("k1"), item[KeyField])
	assert.Equal(t, value.String("ignored"), data[KeyField], "input must not change")

	stripped := WithoutKey(item)
	assert.NotContains(t, stripped, KeyField)
	assert.Equal(t, value.String("rex"), stripped["name"])
}

func TestItemKey(t *testing.T) {
	key, err := ItemKey(obj(map[string]any{"key": "a"}))
	require.NoError(t, err)
	assert.Equal(t, "a", key)

	for _, item := range []value.Object{
		{},
		obj(map[string]any{"key": ""}),
		obj(map[string]any{"key": 5}),
	} {
		_, err := ItemKey(item)
		assert.ErrorIs(t, err, ErrMissingKey)
	}
}

func TestCheckBatch(t *testing.T) {
	items := make([]value.Object, MaxBatchSize+1)
	for i := range items {
		items[i] = obj(map[string]any{"key": fmt.Sprint(i)})
	}

	assert.ErrorIs(t, CheckBatch(items), ErrBatchTooLarge)
	assert.NoError(t, CheckBatch(items[:MaxBatchSize]))

	items[3] = value.Object{"name": value.String("no key")}
	assert.ErrorIs(t, CheckBatch(items[:5]), ErrMissingKey)
}

func TestKeyErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", KeyErr("update", "k9", ErrKeyNotFound))

	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.False(t, errors.Is(err, ErrNotFound))

	var ke *KeyError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, "k9", ke.Key)
	assert.Equal(t, "update", ke.Op)
	assert.Contains(t, err.Error(), `update "k9": key not found`)
}

func TestApplyUpdate(t *testing.T) {
	doc := obj(map[string]any{
		"name":   "rex",
		"visits": 3,
		"score":  1.5,
		"tags":   []any{"b"},
		"owner":  map[string]any{"name": "ana", "pets": []any{"rex"}},
		"old":    true,
	})

	var u Update
	u.SetField("name", value.String("max"))
	u.SetField("owner.name", value.String("bo"))
	u.IncrementField("visits", value.Int(2))
	u.IncrementField("visits", value.Int(1))
	u.IncrementField("score", value.Int(1))
	u.IncrementField("fresh", value.Int(5))
	u.AppendField("tags", value.String("c"))
	u.PrependField("tags", value.String("a"))
	u.AppendField("owner.pets", value.String("max"))
	u.AppendField("new_list", value.Int(1))
	u.DeleteField("old")

	got, err := ApplyUpdate(doc, u)
	require.NoError(t, err)

	expected := obj(map[string]any{
		"name":     "max",
		"visits":   6,
		"score":    2.5,
		"fresh":    5,
		"tags":     []any{"a", "b", "c"},
		"owner":    map[string]any{"name": "bo", "pets": []any{"rex", "max"}},
		"new_list": []any{1},
	})
	assert.Equal(t, expected, got)

	// The input document is untouched.
	assert.Equal(t, value.String("rex"), doc["name"])
	assert.Contains(t, doc, "old")
	assert.Equal(t, value.Array{value.String("b")}, doc["tags"])
}

func TestApplyUpdateDeleteRemovesField(t *testing.T) {
	doc := obj(map[string]any{"a": 1, "nested": map[string]any{"b": 2, "c": 3}})

	var u Update
	u.DeleteField("a")
	u.DeleteField("nested.b")
	u.DeleteField("missing")

	got, err := ApplyUpdate(doc, u)
	require.NoError(t, err)
	assert.Equal(t, obj(map[string]any{"nested": map[string]any{"c": 3}}), got)
	_, present := got["a"]
	assert.False(t, present, "deleted field must be absent, not null")
}

func TestApplyUpdateErrors(t *testing.T) {
	doc := obj(map[string]any{"name": "rex", "tags": map[string]any{"a": 1}})

	tests := []struct {
		name string
		u    Update
	}{
		{"increment string field", Update{Increment: map[string]value.Value{"name": value.Int(1)}}},
		{"increment by string", Update{Increment: map[string]value.Value{"n": value.String("1")}}},
		{"append to object", Update{Append: map[string]value.Array{"tags": {value.Int(1)}}}},
		{"set through scalar", Update{Set: map[string]value.Value{"name.first": value.String("x")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyUpdate(doc, tt.u)
			assert.ErrorIs(t, err, ErrInvalidUpdate)
		})
	}
}

func TestUpdateBookkeeping(t *testing.T) {
	var u Update
	assert.True(t, u.IsEmpty())

	u.SetField("a", value.Int(1))
	u.DeleteField("a")
	assert.NotContains(t, u.Set, "a")
	assert.Equal(t, []string{"a"}, u.Delete)

	u.SetField("a", value.Int(2))
	assert.Empty(t, u.Delete)
	assert.Equal(t, value.Int(2), u.Set["a"])

	u.PrependField("l", value.Int(2))
	u.PrependField("l", value.Int(1))
	assert.Equal(t, value.Array{value.Int(1), value.Int(2)}, u.Prepend["l"])
	assert.False(t, u.IsEmpty())
}

func TestUpdateMap(t *testing.T) {
	u := Update{
		Set:    map[string]value.Value{"s": value.String("$x")},
		Append: map[string]value.Array{"l": {value.String("$y")}},
		Delete: []string{"d"},
	}
	upper := u.Map(func(v value.Value) value.Value {
		if s, ok := v.(value.String); ok {
			return value.String("!" + string(s))
		}
		return v
	})

	assert.Equal(t, value.String("!$x"), upper.Set["s"])
	assert.Equal(t, value.Array{value.String("!$y")}, upper.Append["l"])
	assert.Equal(t, []string{"d"}, upper.Delete)
	assert.Equal(t, value.String("$x"), u.Set["s"])
}

func TestUpdateObjectRoundTrip(t *testing.T) {
	var u Update
	u.SetField("a.b", value.Int(1))
	u.IncrementField("n", value.Float(0.5))
	u.AppendField("l", value.String("x"))
	u.PrependField("p", value.Null{})
	u.DeleteField("gone")

	parsed, err := UpdateFromObject(u.ToObject())
	require.NoError(t, err)
	assert.Equal(t, u, parsed)

	assert.Equal(t, value.Object{}, Update{}.ToObject())
}

func TestUpdateFromObjectErrors(t *testing.T) {
	for _, payload := range []value.Object{
		{"set": value.Int(1)},
		{"delete": value.String("a")},
		{"delete": value.Array{value.Int(1)}},
		{"replace": value.Object{}},
	} {
		_, err := UpdateFromObject(payload)
		assert.ErrorIs(t, err, ErrInvalidUpdate)
	}

	u, err := UpdateFromObject(value.Object{"append": value.Object{"l": value.Int(1)}})
	require.NoError(t, err)
	assert.Equal(t, value.Array{value.Int(1)}, u.Append["l"])
}

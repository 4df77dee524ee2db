package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() Object {
	return Object{
		"name": String("rex"),
		"profile": Object{
			"tags":  Array{String("a"), String("b"), Object{"deep": Int(1)}},
			"empty": Object{},
		},
	}
}

func TestLookup(t *testing.T) {
	root := sampleTree()

	tests := []struct {
		path  string
		want  Value
		found bool
	}{
		{"name", String("rex"), true},
		{"profile.tags.1", String("b"), true},
		{"profile.tags.2.deep", Int(1), true},
		{"profile.empty", Object{}, true},
		{"profile.tags.3", nil, false},
		{"profile.tags.x", nil, false},
		{"name.first", nil, false},
		{"missing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Lookup(root, tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetPath(t *testing.T) {
	root := sampleTree()

	require.NoError(t, SetPath(root, "profile.tags.0", String("z")))
	require.NoError(t, SetPath(root, "profile.stats.wins", Int(3)))
	require.NoError(t, SetPath(root, "age", Int(4)))

	assert.Equal(t, String("z"), root["profile"].(Object)["tags"].(Array)[0])
	assert.Equal(t, Object{"wins": Int(3)}, root["profile"].(Object)["stats"])
	assert.Equal(t, Int(4), root["age"])

	err := SetPath(root, "name.first", String("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	err = SetPath(root, "profile.tags.9", String("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestDeletePath(t *testing.T) {
	root := sampleTree()

	require.NoError(t, DeletePath(root, "profile.tags.1"))
	assert.Equal(t, Array{String("a"), Object{"deep": Int(1)}}, root["profile"].(Object)["tags"])

	require.NoError(t, DeletePath(root, "profile.tags.1.deep"))
	assert.Equal(t, Object{}, root["profile"].(Object)["tags"].(Array)[1])

	require.NoError(t, DeletePath(root, "profile.empty"))
	assert.NotContains(t, root["profile"], "empty")

	require.NoError(t, DeletePath(root, "name"))
	assert.NotContains(t, root, "name")

	// Missing paths are a no-op.
	require.NoError(t, DeletePath(root, "nope.deeper"))
	require.NoError(t, DeletePath(root, "profile.tags.7"))
}

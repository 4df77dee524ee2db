package sqlitestore

import (
	"fmt"

	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// marshalData converts an item's fields to JSON TEXT for storage.
// The key field is stripped; it lives in its own column.
// Object keys are written sorted, so equal items store equal text.
func marshalData(data value.Object) (string, error) {
	b, err := value.Marshal(store.WithoutKey(data))
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(b), nil
}

// unmarshalItem rebuilds a stored item, key included.
func unmarshalItem(key, text string) (value.Object, error) {
	v, err := value.Unmarshal([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %q: %w", key, err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("unmarshal %q: data is a %s, not an object", key, value.Kind(v))
	}
	obj[store.KeyField] = value.String(key)
	return obj, nil
}

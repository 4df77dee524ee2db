// Package fixture loads seed data from YAML files.
//
// A fixture names an optional base and schema and lists items, each with
// its own key:
//
//	base: pets
//	schema: pets.cue
//	items:
//	  - key: rex
//	    name: Rex
//	    born: 2020-01-01T00:00:00Z
//	    tags: [good]
//
// Unquoted YAML timestamps become value.Time, so they are stored through
// the codec's datetime marker like any other timestamp. Quote a timestamp
// to keep it a string.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/basekit/internal/database"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Fixture is a parsed fixture file.
type Fixture struct {
	// Base is the base to seed. Empty means the caller's default.
	Base string `yaml:"base,omitempty"`

	// Schema is a CUE schema file the items must satisfy. Load resolves
	// it relative to the fixture file.
	Schema string `yaml:"schema,omitempty"`

	// Items are the records to put. Each needs a non-empty "key".
	Items []Item `yaml:"items"`
}

// Item is one fixture record.
type Item struct {
	value.Object
}

// UnmarshalYAML converts a mapping node into an object.
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	v, err := fromNode(node)
	if err != nil {
		return err
	}
	obj, ok := v.(value.Object)
	if !ok {
		return fmt.Errorf("line %d: item must be a mapping, got %s", node.Line, value.Kind(v))
	}
	it.Object = obj
	return nil
}

func fromNode(n *yaml.Node) (value.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		obj := make(value.Object, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := fromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj[n.Content[i].Value] = v
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make(value.Array, len(n.Content))
		for i, elem := range n.Content {
			v, err := fromNode(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case yaml.ScalarNode:
		// Decoding into any leaves timestamps as strings.
		if n.ShortTag() == "!!timestamp" {
			var t time.Time
			if err := n.Decode(&t); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return value.NewTime(t), nil
		}
		var native any
		if err := n.Decode(&native); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		v, err := value.FromNative(native)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Schema != "" && !filepath.IsAbs(f.Schema) {
		f.Schema = filepath.Join(filepath.Dir(path), f.Schema)
	}
	return f, nil
}

// Parse parses fixture YAML. Unknown top-level fields are rejected.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("items list is required and must be non-empty")
	}
	return &f, nil
}

// Objects converts the items to values. Every item must carry a key and
// no key may repeat.
func (f *Fixture) Objects() ([]value.Object, error) {
	seen := make(map[string]int, len(f.Items))
	out := make([]value.Object, len(f.Items))
	for i, item := range f.Items {
		obj := item.Clone()
		key, err := store.ItemKey(obj)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("item %d: key %q already used by item %d", i, key, prev)
		}
		seen[key] = i
		out[i] = obj
	}
	return out, nil
}

// Apply puts every item into db and returns the number written.
func (f *Fixture) Apply(ctx context.Context, db *database.Database) (int, error) {
	items, err := f.Objects()
	if err != nil {
		return 0, err
	}
	records, err := db.PutMany(ctx, items)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

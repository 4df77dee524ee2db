package codec

import (
	"fmt"
	"sync"

	"github.com/roach88/basekit/internal/value"
)

// LoadFunc rebuilds a Loadable from its decoded payload.
type LoadFunc func(payload value.Object) (value.Loadable, error)

// Registry maps tags to loaders and symbol references.
//
// A Registry is populated at process start and then only read; it is safe
// for concurrent use either way. Each Codec owns its Registry, there is no
// process-wide table.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]LoadFunc
	refs    map[string]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[string]LoadFunc),
		refs:    make(map[string]any),
	}
}

// Register binds tag to a loader. Registering the same tag twice is an
// error: two loaders for one tag would make stored data ambiguous.
func (r *Registry) Register(tag string, load LoadFunc) error {
	if tag == "" {
		return fmt.Errorf("register: empty tag")
	}
	if load == nil {
		return fmt.Errorf("register %q: nil loader", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loaders[tag]; exists {
		return fmt.Errorf("register %q: tag already registered", tag)
	}
	r.loaders[tag] = load
	return nil
}

// RegisterRef binds tag to a symbol (usually a function value) that Ref
// values resolve to on decode.
func (r *Registry) RegisterRef(tag string, target any) error {
	if tag == "" {
		return fmt.Errorf("register ref: empty tag")
	}
	if target == nil {
		return fmt.Errorf("register ref %q: nil target", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.refs[tag]; exists {
		return fmt.Errorf("register ref %q: tag already registered", tag)
	}
	r.refs[tag] = target
	return nil
}

// MustRegister is Register for process start-up code. It panics on error.
func (r *Registry) MustRegister(tag string, load LoadFunc) {
	if err := r.Register(tag, load); err != nil {
		panic(err)
	}
}

// Loader returns the loader bound to tag.
func (r *Registry) Loader(tag string) (LoadFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	load, ok := r.loaders[tag]
	return load, ok
}

// Ref returns the symbol bound to tag.
func (r *Registry) Ref(tag string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.refs[tag]
	return target, ok
}

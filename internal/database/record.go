package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Record is one item of a Database, loaded on first access.
//
// The local copy of the fields is what the store returned on the last
// load. Every write outside a batched scope goes straight to the store
// and drops the local copy, so the next read fetches it again; the store
// is the source of truth and may merge partial updates in ways the
// record cannot see.
type Record struct {
	db     *Database
	key    string
	fields value.Object // decoded; nil until loaded
	scope  *store.Update
}

// Key returns the record's key.
func (r *Record) Key() string {
	return r.key
}

// Loaded reports whether the fields are held locally.
func (r *Record) Loaded() bool {
	return r.fields != nil
}

// Invalidate drops the local fields; the next access reloads them.
func (r *Record) Invalidate() {
	r.fields = nil
}

// Reload reads the record from the store now.
func (r *Record) Reload(ctx context.Context) error {
	r.fields = nil
	return r.load(ctx)
}

func (r *Record) load(ctx context.Context) error {
	if r.fields != nil {
		return nil
	}
	item, err := r.db.store.Get(ctx, r.key)
	if errors.Is(err, store.ErrNotFound) && r.db.autoCreate {
		r.fields = value.Object{}
		return nil
	}
	if err != nil {
		return err
	}
	r.fields = r.db.codec.DecodeFields(store.WithoutKey(item))
	return nil
}

func (r *Record) lookup(ctx context.Context, field string) (value.Value, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	v, ok := r.fields[field]
	if !ok {
		return nil, fieldErr(r.key, field, ErrFieldNotFound)
	}
	return v, nil
}

// Field returns a copy of a top-level field, or ErrFieldNotFound.
// Use Map and Seq for nested values that should persist their changes.
func (r *Record) Field(ctx context.Context, field string) (value.Value, error) {
	v, err := r.lookup(ctx, field)
	if err != nil {
		return nil, err
	}
	return value.Clone(v), nil
}

// Has reports whether the record has field.
func (r *Record) Has(ctx context.Context, field string) (bool, error) {
	if err := r.load(ctx); err != nil {
		return false, err
	}
	_, ok := r.fields[field]
	return ok, nil
}

// Map returns a bound view of an object field.
func (r *Record) Map(ctx context.Context, field string) (*BoundMap, error) {
	v, err := r.lookup(ctx, field)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(value.Object); !ok {
		return nil, fieldErr(r.key, field, fmt.Errorf("%w: %s", ErrNotContainer, value.Kind(v)))
	}
	return &BoundMap{r.bind(field, v)}, nil
}

// Seq returns a bound view of a list field.
func (r *Record) Seq(ctx context.Context, field string) (*BoundSeq, error) {
	v, err := r.lookup(ctx, field)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(value.Array); !ok {
		return nil, fieldErr(r.key, field, fmt.Errorf("%w: %s", ErrNotContainer, value.Kind(v)))
	}
	return &BoundSeq{r.bind(field, v)}, nil
}

// bind gives a view its own copy of the field, so views never alias the
// record's local fields.
func (r *Record) bind(field string, v value.Value) binding {
	return binding{
		rec:  r,
		root: value.Object{field: value.Clone(v)},
		path: field,
	}
}

// GetOrDefault returns field, or writes def to it and returns def when
// the field is absent.
func (r *Record) GetOrDefault(ctx context.Context, field string, def value.Value) (value.Value, error) {
	v, err := r.Field(ctx, field)
	if err == nil || !IsFieldNotFound(err) {
		return v, err
	}
	if err := r.Set(ctx, field, def); err != nil {
		return nil, err
	}
	return value.Clone(def), nil
}

// Data returns a copy of every field, without the key.
func (r *Record) Data(ctx context.Context) (value.Object, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.fields.Clone(), nil
}

// Set writes a top-level field.
func (r *Record) Set(ctx context.Context, field string, v value.Value) error {
	v = value.Clone(v)
	return r.change(ctx, func(u *store.Update) { u.SetField(field, v) })
}

// Delete removes a field from the stored item (it does not become null).
// It fails with ErrFieldNotFound when the field is absent.
func (r *Record) Delete(ctx context.Context, field string) error {
	if err := r.load(ctx); err != nil {
		return err
	}
	_, local := r.fields[field]
	_, pending := r.pendingSet(field)
	if !local && !pending {
		return fieldErr(r.key, field, ErrFieldNotFound)
	}
	if err := r.change(ctx, func(u *store.Update) { u.DeleteField(field) }); err != nil {
		return err
	}
	delete(r.fields, field)
	return nil
}

// Increment adds delta to a numeric field. A missing field counts as 0.
func (r *Record) Increment(ctx context.Context, field string, delta value.Value) error {
	if !value.IsNumber(delta) {
		return fieldErr(r.key, field, fmt.Errorf("%w: increment by %s", store.ErrInvalidUpdate, value.Kind(delta)))
	}
	return r.change(ctx, func(u *store.Update) { u.IncrementField(field, delta) })
}

// InScope reports whether a batched scope is open.
func (r *Record) InScope() bool {
	return r.scope != nil
}

// Batch runs fn with writes buffered. When fn returns nil the buffered
// writes go to the store as one update (none if nothing was written).
// When fn fails or panics they are discarded.
//
// Reads inside fn see the fields as loaded before the scope opened,
// except that deleted fields are already gone. When the writes are
// discarded, or the flush fails, the fields are put back as they were.
func (r *Record) Batch(ctx context.Context, fn func() error) error {
	if r.scope != nil {
		return fmt.Errorf("record %q: %w", r.key, ErrScopeActive)
	}
	r.scope = &store.Update{}
	snapshot := r.fields.Clone()
	flushed := false
	defer func() {
		r.scope = nil
		if !flushed {
			r.fields = snapshot
		}
	}()

	if err := fn(); err != nil {
		return err
	}
	pending := *r.scope
	r.scope = nil
	if !pending.IsEmpty() {
		r.db.logger.Debug("flushing batched writes", "key", r.key)
		if err := r.send(ctx, pending); err != nil {
			return err
		}
	}
	flushed = true
	return nil
}

func (r *Record) pendingSet(path string) (value.Value, bool) {
	if r.scope == nil {
		return nil, false
	}
	v, ok := r.scope.Set[path]
	return v, ok
}

// change records a write: buffered while a scope is open, sent at once
// otherwise.
func (r *Record) change(ctx context.Context, fn func(*store.Update)) error {
	if r.scope != nil {
		fn(r.scope)
		return nil
	}
	var upd store.Update
	fn(&upd)
	return r.send(ctx, upd)
}

func (r *Record) send(ctx context.Context, upd store.Update) error {
	err := r.db.Update(ctx, r.key, upd)
	if errors.Is(err, store.ErrKeyNotFound) && r.db.autoCreate {
		err = r.create(ctx, upd)
	}
	if err != nil {
		return err
	}
	r.fields = nil
	return nil
}

// create inserts the record as upd applied to nothing. If another writer
// created it in the meantime the update is applied to theirs instead.
func (r *Record) create(ctx context.Context, upd store.Update) error {
	data, err := store.ApplyUpdate(value.Object{}, upd)
	if err != nil {
		return store.KeyErr("update", r.key, err)
	}
	_, err = r.db.Insert(ctx, r.key, data)
	if errors.Is(err, store.ErrDuplicateKey) {
		return r.db.Update(ctx, r.key, upd)
	}
	if err == nil {
		r.db.logger.Debug("record created on first write", "key", r.key)
	}
	return err
}

package database

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// binding ties a view to its record and the dotted path it was read from.
// Views derived from one Record.Map or Record.Seq call share root, so a
// change made through a nested view is visible to its parents.
type binding struct {
	rec  *Record
	root value.Object
	path string
}

func (b binding) child(seg string) binding {
	return binding{rec: b.rec, root: b.root, path: b.path + "." + seg}
}

func (b binding) current() value.Value {
	v, _ := value.Lookup(b.root, b.path)
	return v
}

func (b binding) err(err error) error {
	return fieldErr(b.rec.key, b.path, err)
}

// save records v, the whole new container, as one set of the view's path
// and then writes it into the shared tree. A failed write leaves the tree
// as it was.
func (b binding) save(ctx context.Context, v value.Value) error {
	stored := value.Clone(v)
	if err := b.rec.change(ctx, func(u *store.Update) { u.SetField(b.path, stored) }); err != nil {
		return err
	}
	return b.commit(v)
}

func (b binding) commit(v value.Value) error {
	if err := value.SetPath(b.root, b.path, v); err != nil {
		return b.err(err)
	}
	return nil
}

func (b binding) view(seg string, v value.Value) (any, error) {
	c := b.child(seg)
	switch v.(type) {
	case value.Object:
		return &BoundMap{c}, nil
	case value.Array:
		return &BoundSeq{c}, nil
	default:
		return nil, c.err(fmt.Errorf("%w: %s", ErrNotContainer, value.Kind(v)))
	}
}

// BoundMap is a live view of an object field. Every mutation persists
// the full object at the view's path, or buffers it inside a batched
// scope.
type BoundMap struct {
	binding
}

// Path returns the dotted field path of the view.
func (m *BoundMap) Path() string {
	return m.path
}

func (m *BoundMap) obj() (value.Object, error) {
	obj, ok := m.current().(value.Object)
	if !ok {
		return nil, m.err(ErrNotContainer)
	}
	return obj, nil
}

// Len returns the number of keys.
func (m *BoundMap) Len() int {
	obj, _ := m.obj()
	return len(obj)
}

// Keys returns the keys in sorted order.
func (m *BoundMap) Keys() []string {
	obj, _ := m.obj()
	return obj.SortedKeys()
}

// Has reports whether k is present.
func (m *BoundMap) Has(k string) bool {
	obj, _ := m.obj()
	_, ok := obj[k]
	return ok
}

// Get returns a copy of the value at k, or ErrFieldNotFound.
func (m *BoundMap) Get(k string) (value.Value, error) {
	obj, err := m.obj()
	if err != nil {
		return nil, err
	}
	v, ok := obj[k]
	if !ok {
		return nil, m.child(k).err(ErrFieldNotFound)
	}
	return value.Clone(v), nil
}

// Map returns a bound view of the object at k.
func (m *BoundMap) Map(k string) (*BoundMap, error) {
	v, err := m.nested(k)
	if err != nil {
		return nil, err
	}
	bm, ok := v.(*BoundMap)
	if !ok {
		return nil, m.child(k).err(fmt.Errorf("%w: not an object", ErrNotContainer))
	}
	return bm, nil
}

// Seq returns a bound view of the list at k.
func (m *BoundMap) Seq(k string) (*BoundSeq, error) {
	v, err := m.nested(k)
	if err != nil {
		return nil, err
	}
	bs, ok := v.(*BoundSeq)
	if !ok {
		return nil, m.child(k).err(fmt.Errorf("%w: not a list", ErrNotContainer))
	}
	return bs, nil
}

func (m *BoundMap) nested(k string) (any, error) {
	obj, err := m.obj()
	if err != nil {
		return nil, err
	}
	v, ok := obj[k]
	if !ok {
		return nil, m.child(k).err(ErrFieldNotFound)
	}
	return m.view(k, v)
}

// Data returns a copy of the object.
func (m *BoundMap) Data() value.Object {
	obj, _ := m.obj()
	return obj.Clone()
}

// Set assigns v to k.
func (m *BoundMap) Set(ctx context.Context, k string, v value.Value) error {
	obj, err := m.obj()
	if err != nil {
		return err
	}
	next := obj.Clone()
	next[k] = value.Clone(v)
	return m.save(ctx, next)
}

// Delete removes k, or fails with ErrFieldNotFound.
func (m *BoundMap) Delete(ctx context.Context, k string) error {
	_, err := m.Pop(ctx, k)
	return err
}

// Pop removes k and returns its value.
func (m *BoundMap) Pop(ctx context.Context, k string) (value.Value, error) {
	obj, err := m.obj()
	if err != nil {
		return nil, err
	}
	v, ok := obj[k]
	if !ok {
		return nil, m.child(k).err(ErrFieldNotFound)
	}
	next := obj.Clone()
	delete(next, k)
	if err := m.save(ctx, next); err != nil {
		return nil, err
	}
	return v, nil
}

// SetDefault returns the value at k, first writing def when k is absent.
func (m *BoundMap) SetDefault(ctx context.Context, k string, def value.Value) (value.Value, error) {
	obj, err := m.obj()
	if err != nil {
		return nil, err
	}
	if v, ok := obj[k]; ok {
		return value.Clone(v), nil
	}
	next := obj.Clone()
	next[k] = value.Clone(def)
	if err := m.save(ctx, next); err != nil {
		return nil, err
	}
	return value.Clone(def), nil
}

// Merge assigns every field of fields, as one write.
func (m *BoundMap) Merge(ctx context.Context, fields value.Object) error {
	obj, err := m.obj()
	if err != nil {
		return err
	}
	next := obj.Clone()
	for k, v := range fields {
		next[k] = value.Clone(v)
	}
	return m.save(ctx, next)
}

// Clear removes every key.
func (m *BoundMap) Clear(ctx context.Context) error {
	if _, err := m.obj(); err != nil {
		return err
	}
	return m.save(ctx, value.Object{})
}

// BoundSeq is a live view of a list field. Append is sent as the store's
// append operation; every other mutation persists the full list at the
// view's path. Inside a batched scope every mutation buffers the full
// list.
type BoundSeq struct {
	binding
}

// Path returns the dotted field path of the view.
func (s *BoundSeq) Path() string {
	return s.path
}

func (s *BoundSeq) list() (value.Array, error) {
	arr, ok := s.current().(value.Array)
	if !ok {
		return nil, s.err(ErrNotContainer)
	}
	return arr, nil
}

// index resolves i against n elements; negative i counts from the end.
func (s *BoundSeq) index(i, n int) (int, error) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, s.child(strconv.Itoa(i)).err(ErrIndexOutOfRange)
	}
	return i, nil
}

// Len returns the number of elements.
func (s *BoundSeq) Len() int {
	arr, _ := s.list()
	return len(arr)
}

// At returns a copy of element i.
func (s *BoundSeq) At(i int) (value.Value, error) {
	arr, err := s.list()
	if err != nil {
		return nil, err
	}
	i, err = s.index(i, len(arr))
	if err != nil {
		return nil, err
	}
	return value.Clone(arr[i]), nil
}

// Map returns a bound view of the object at index i.
func (s *BoundSeq) Map(i int) (*BoundMap, error) {
	v, err := s.nested(i)
	if err != nil {
		return nil, err
	}
	bm, ok := v.(*BoundMap)
	if !ok {
		return nil, s.child(strconv.Itoa(i)).err(fmt.Errorf("%w: not an object", ErrNotContainer))
	}
	return bm, nil
}

// Seq returns a bound view of the list at index i.
func (s *BoundSeq) Seq(i int) (*BoundSeq, error) {
	v, err := s.nested(i)
	if err != nil {
		return nil, err
	}
	bs, ok := v.(*BoundSeq)
	if !ok {
		return nil, s.child(strconv.Itoa(i)).err(fmt.Errorf("%w: not a list", ErrNotContainer))
	}
	return bs, nil
}

func (s *BoundSeq) nested(i int) (any, error) {
	arr, err := s.list()
	if err != nil {
		return nil, err
	}
	i, err = s.index(i, len(arr))
	if err != nil {
		return nil, err
	}
	return s.view(strconv.Itoa(i), arr[i])
}

// Data returns a copy of the list.
func (s *BoundSeq) Data() value.Array {
	arr, _ := s.list()
	return arr.Clone()
}

// Append adds items at the end. Outside a batched scope only the new
// items are sent, so concurrent appends from other writers are kept.
func (s *BoundSeq) Append(ctx context.Context, items ...value.Value) error {
	arr, err := s.list()
	if err != nil {
		return err
	}
	added := value.Array(items).Clone()
	next := append(arr.Clone(), added...)
	if s.rec.InScope() {
		return s.save(ctx, next)
	}
	if err := s.rec.change(ctx, func(u *store.Update) { u.AppendField(s.path, added...) }); err != nil {
		return err
	}
	return s.commit(next)
}

// Extend adds items at the end, rewriting the whole list.
func (s *BoundSeq) Extend(ctx context.Context, items ...value.Value) error {
	arr, err := s.list()
	if err != nil {
		return err
	}
	return s.save(ctx, append(arr.Clone(), value.Array(items).Clone()...))
}

// Insert places v before index i. i may equal Len to insert at the end.
func (s *BoundSeq) Insert(ctx context.Context, i int, v value.Value) error {
	arr, err := s.list()
	if err != nil {
		return err
	}
	if i != len(arr) {
		if i, err = s.index(i, len(arr)); err != nil {
			return err
		}
	}
	return s.save(ctx, slices.Insert(arr.Clone(), i, value.Clone(v)))
}

// Set replaces element i.
func (s *BoundSeq) Set(ctx context.Context, i int, v value.Value) error {
	arr, err := s.list()
	if err != nil {
		return err
	}
	if i, err = s.index(i, len(arr)); err != nil {
		return err
	}
	next := arr.Clone()
	next[i] = value.Clone(v)
	return s.save(ctx, next)
}

// Pop removes and returns element i; -1 is the last element.
func (s *BoundSeq) Pop(ctx context.Context, i int) (value.Value, error) {
	arr, err := s.list()
	if err != nil {
		return nil, err
	}
	if i, err = s.index(i, len(arr)); err != nil {
		return nil, err
	}
	v := arr[i]
	if err := s.save(ctx, slices.Delete(arr.Clone(), i, i+1)); err != nil {
		return nil, err
	}
	return v, nil
}

// Remove deletes the first element equal to v and reports whether there
// was one. Nothing is written when there was not.
func (s *BoundSeq) Remove(ctx context.Context, v value.Value) (bool, error) {
	arr, err := s.list()
	if err != nil {
		return false, err
	}
	i := slices.IndexFunc(arr, func(elem value.Value) bool { return value.Equal(elem, v) })
	if i < 0 {
		return false, nil
	}
	if err := s.save(ctx, slices.Delete(arr.Clone(), i, i+1)); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every element.
func (s *BoundSeq) Clear(ctx context.Context) error {
	if _, err := s.list(); err != nil {
		return err
	}
	return s.save(ctx, value.Array{})
}

// Reverse reverses the list.
func (s *BoundSeq) Reverse(ctx context.Context) error {
	arr, err := s.list()
	if err != nil {
		return err
	}
	next := arr.Clone()
	slices.Reverse(next)
	return s.save(ctx, next)
}

// Sort sorts the list in ascending order. It fails without writing when
// two elements are not mutually ordered.
func (s *BoundSeq) Sort(ctx context.Context) error {
	arr, err := s.list()
	if err != nil {
		return err
	}
	next := arr.Clone()
	var cmpErr error
	slices.SortStableFunc(next, func(a, b value.Value) int {
		c, err := value.Compare(a, b)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return c
	})
	if cmpErr != nil {
		return s.err(cmpErr)
	}
	return s.save(ctx, next)
}

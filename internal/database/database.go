// Package database is the record facade over a store.Store.
//
// A Database encodes values on the way into the store and decodes them on
// the way out, so callers only ever see the in-memory model (timestamps,
// empty objects, tagged domain objects). Records load lazily; nested lists
// and objects are handed out as bound views whose mutations persist
// themselves.
//
// Records are not safe for concurrent use. A Database is, as long as its
// store is.
package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/basekit/internal/codec"
	"github.com/roach88/basekit/internal/ident"
	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Validator checks decoded record data before it is written.
// *schema.Schema implements it.
type Validator interface {
	Validate(data value.Object) error
}

// Database wraps one base.
type Database struct {
	store          store.Store
	codec          *codec.Codec
	logger         *slog.Logger
	keys           KeyGenerator
	schema         Validator
	putConcurrency int
	autoCreate     bool
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(db *Database) {
		db.logger = l
	}
}

// WithCodec sets the codec, typically one built over a populated
// codec.Registry.
func WithCodec(c *codec.Codec) Option {
	return func(db *Database) {
		db.codec = c
	}
}

// WithKeyGenerator sets the generator used for inserts without a key.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(db *Database) {
		db.keys = g
	}
}

// WithSchema validates data before Insert, Put and PutMany.
func WithSchema(v Validator) Option {
	return func(db *Database) {
		db.schema = v
	}
}

// WithPutConcurrency sets how many PutMany chunks may be in flight at
// once. The default is 1.
func WithPutConcurrency(n int) Option {
	return func(db *Database) {
		db.putConcurrency = n
	}
}

// WithAutoCreate makes writes to a record that does not exist create it
// instead of failing with store.ErrKeyNotFound.
func WithAutoCreate() Option {
	return func(db *Database) {
		db.autoCreate = true
	}
}

// New returns a Database over st.
func New(st store.Store, opts ...Option) *Database {
	db := &Database{store: st, putConcurrency: 1}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if db.codec == nil {
		db.codec = codec.New(codec.WithLogger(db.logger))
	}
	if db.keys == nil {
		db.keys = UUIDv7Generator{}
	}
	if db.putConcurrency < 1 {
		db.putConcurrency = 1
	}
	return db
}

// Store returns the underlying store.
func (db *Database) Store() store.Store {
	return db.store
}

// Codec returns the codec used for every read and write.
func (db *Database) Codec() *codec.Codec {
	return db.codec
}

// Record returns an unloaded record for key. Nothing is read until a
// field is accessed.
func (db *Database) Record(key string) *Record {
	return &Record{db: db, key: key}
}

// Lookup is Record for any identifier ident.Normalize accepts.
func (db *Database) Lookup(id any) (*Record, error) {
	key, err := ident.Normalize(id)
	if err != nil {
		return nil, err
	}
	return db.Record(key), nil
}

// Get reads key and returns the loaded record, or store.ErrNotFound.
func (db *Database) Get(ctx context.Context, key string) (*Record, error) {
	item, err := db.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return db.loaded(item), nil
}

// Insert creates a record, or fails with store.ErrDuplicateKey. An empty
// key is replaced by a generated one.
func (db *Database) Insert(ctx context.Context, key string, data value.Object) (*Record, error) {
	key = db.keyOrNew(key)
	if err := db.validate(key, data); err != nil {
		return nil, err
	}
	item, err := db.store.Insert(ctx, key, db.encode(data))
	if err != nil {
		return nil, err
	}
	db.logger.Debug("record inserted", "key", key)
	return db.loaded(item), nil
}

// Put creates or replaces a record. An empty key is replaced by a
// generated one.
func (db *Database) Put(ctx context.Context, key string, data value.Object) (*Record, error) {
	key = db.keyOrNew(key)
	if err := db.validate(key, data); err != nil {
		return nil, err
	}
	item, err := db.store.Put(ctx, key, db.encode(data))
	if err != nil {
		return nil, err
	}
	db.logger.Debug("record put", "key", key)
	return db.loaded(item), nil
}

// PutMany puts any number of items, each carrying its own key. Items are
// sent in chunks of store.MaxBatchSize; the records come back in input
// order.
//
// Every item is checked before anything is sent. A failed chunk does not
// roll back chunks that already succeeded.
func (db *Database) PutMany(ctx context.Context, items []value.Object) ([]*Record, error) {
	encoded := make([]value.Object, len(items))
	for i, item := range items {
		key, err := store.ItemKey(item)
		if err != nil {
			return nil, fmt.Errorf("put many: item %d: %w", i, err)
		}
		if err := db.validate(key, store.WithoutKey(item)); err != nil {
			return nil, err
		}
		encoded[i] = store.WithKey(key, db.encode(item))
	}

	out := make([]*Record, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.putConcurrency)
	for start := 0; start < len(encoded); start += store.MaxBatchSize {
		end := min(start+store.MaxBatchSize, len(encoded))
		g.Go(func() error {
			stored, err := db.store.PutMany(gctx, encoded[start:end])
			if err != nil {
				return fmt.Errorf("put many: items %d-%d: %w", start, end-1, err)
			}
			for i, item := range stored {
				out[start+i] = db.loaded(item)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	db.logger.Debug("records put", "count", len(items))
	return out, nil
}

// Page is one page of fetched records.
type Page struct {
	Records []*Record
	// Last is the cursor for the next page, empty on the final page.
	Last string
}

// Fetch returns one page of records matching q. Operands are encoded
// the same way stored values are, so a condition on a timestamp field
// compares against the stored marker string. Substring operands of
// contains are the exception; see query.Query.Wire.
func (db *Database) Fetch(ctx context.Context, q query.Query, opts store.FetchOptions) (Page, error) {
	page, err := db.store.Fetch(ctx, q.Wire(db.codec.Encode), opts)
	if err != nil {
		return Page{}, err
	}
	out := Page{Records: make([]*Record, len(page.Items)), Last: page.Last}
	for i, item := range page.Items {
		out.Records[i] = db.loaded(item)
	}
	return out, nil
}

// FetchAll follows the cursor until the last page and returns every
// matching record.
func (db *Database) FetchAll(ctx context.Context, q query.Query) ([]*Record, error) {
	var (
		all  []*Record
		opts = store.FetchOptions{Limit: store.DefaultPageLimit}
	)
	for {
		page, err := db.Fetch(ctx, q, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.Last == "" {
			return all, nil
		}
		if page.Last == opts.Last {
			return nil, fmt.Errorf("fetch all: cursor %q did not advance", page.Last)
		}
		opts.Last = page.Last
	}
}

// Update applies a partial update with encoded operands.
func (db *Database) Update(ctx context.Context, key string, upd store.Update) error {
	if upd.IsEmpty() {
		return nil
	}
	if err := db.store.Update(ctx, key, upd.Map(db.codec.Encode)); err != nil {
		return err
	}
	db.logger.Debug("record updated", "key", key)
	return nil
}

func (db *Database) keyOrNew(key string) string {
	if key == "" {
		return db.keys.Generate()
	}
	return key
}

func (db *Database) validate(key string, data value.Object) error {
	if db.schema == nil {
		return nil
	}
	if err := db.schema.Validate(store.WithoutKey(data)); err != nil {
		return fmt.Errorf("record %q: %w", key, err)
	}
	return nil
}

func (db *Database) encode(data value.Object) value.Object {
	return db.codec.EncodeFields(store.WithoutKey(data))
}

func (db *Database) loaded(item value.Object) *Record {
	key, _ := store.ItemKey(item)
	return &Record{db: db, key: key, fields: db.codec.DecodeFields(store.WithoutKey(item))}
}

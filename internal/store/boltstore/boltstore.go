// Package boltstore is a store.Store on a bbolt file.
//
// Each base is a top-level bucket, created on first write. Item data is
// msgpack-encoded with sorted map keys; the key lives only in the bucket
// key. Fetch walks a bucket in key order and filters in Go with the query
// package's predicates, so a field of the wrong type is an error here, as
// in memstore.
package boltstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Options configures Open.
type Options struct {
	// Timeout bounds the wait for the file lock. Zero waits one second.
	Timeout time.Duration
	// NoSync skips fsync after each commit. Only for tests.
	NoSync bool
}

// DB is an open bbolt file holding any number of bases.
type DB struct {
	bdb *bbolt.DB
}

// Open opens or creates the file at path.
func Open(path string, opt Options) (*DB, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = time.Second
	}
	bopt.NoSync = opt.NoSync

	bdb, err := bbolt.Open(path, 0o666, bopt)
	if err != nil {
		return nil, fmt.Errorf("boltstore: %w", err)
	}
	return &DB{bdb: bdb}, nil
}

// Close releases the file.
func (db *DB) Close() error {
	return db.bdb.Close()
}

// Base returns the store for the named base.
func (db *DB) Base(name string) *Store {
	return &Store{db: db, bucket: []byte(name)}
}

// Bases lists the bases that have been written to, in byte order.
func (db *DB) Bases() ([]string, error) {
	bases := []string{}
	err := db.bdb.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			bases = append(bases, string(name))
			return nil
		})
	})
	return bases, err
}

// Store is one base of a DB.
type Store struct {
	db     *DB
	bucket []byte
}

var _ store.Store = (*Store)(nil)

// errStop ends a cursor walk early.
var errStop = errors.New("stop")

func encodeData(data value.Object) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(value.ToNative(store.WithoutKey(data))); err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeItem(key, raw []byte) (value.Object, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)

	var native map[string]any
	if err := dec.Decode(&native); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	v, err := value.FromNative(native)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	obj, _ := v.(value.Object)
	if obj == nil {
		obj = value.Object{}
	}
	obj[store.KeyField] = value.String(key)
	return obj, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (value.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var item value.Object
	err := s.db.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return store.KeyErr("get", key, store.ErrNotFound)
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return store.KeyErr("get", key, store.ErrNotFound)
		}
		var err error
		item, err = decodeItem([]byte(key), raw)
		return err
	})
	return item, err
}

func (s *Store) write(ctx context.Context, fn func(b *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return fmt.Errorf("bucket %q: %w", s.bucket, err)
		}
		return fn(b)
	})
}

func putRaw(b *bbolt.Bucket, key string, data value.Object) error {
	raw, err := encodeData(data)
	if err != nil {
		return store.KeyErr("put", key, err)
	}
	return b.Put([]byte(key), raw)
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, key string, data value.Object) (value.Object, error) {
	err := s.write(ctx, func(b *bbolt.Bucket) error {
		if b.Get([]byte(key)) != nil {
			return store.KeyErr("insert", key, store.ErrDuplicateKey)
		}
		return putRaw(b, key, data)
	})
	if err != nil {
		return nil, err
	}
	return store.WithKey(key, data), nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, data value.Object) (value.Object, error) {
	if err := s.write(ctx, func(b *bbolt.Bucket) error { return putRaw(b, key, data) }); err != nil {
		return nil, err
	}
	return store.WithKey(key, data), nil
}

// PutMany implements store.Store. The batch commits in one transaction.
func (s *Store) PutMany(ctx context.Context, items []value.Object) ([]value.Object, error) {
	if err := store.CheckBatch(items); err != nil {
		return nil, err
	}
	out := make([]value.Object, len(items))
	err := s.write(ctx, func(b *bbolt.Bucket) error {
		for i, item := range items {
			key, _ := store.ItemKey(item)
			if err := putRaw(b, key, item); err != nil {
				return err
			}
			out[i] = store.WithKey(key, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, key string, upd store.Update) error {
	return s.write(ctx, func(b *bbolt.Bucket) error {
		raw := b.Get([]byte(key))
		if raw == nil {
			return store.KeyErr("update", key, store.ErrKeyNotFound)
		}
		item, err := decodeItem([]byte(key), raw)
		if err != nil {
			return err
		}
		next, err := store.ApplyUpdate(store.WithoutKey(item), upd)
		if err != nil {
			return store.KeyErr("update", key, err)
		}
		return putRaw(b, key, next)
	})
}

// Fetch implements store.Store. Items come back in key order; the cursor
// resumes at the first key greater than opts.Last.
func (s *Store) Fetch(ctx context.Context, filter query.Wire, opts store.FetchOptions) (store.Page, error) {
	if err := ctx.Err(); err != nil {
		return store.Page{}, err
	}
	q, err := query.ParseWire(filter)
	if err != nil {
		return store.Page{}, err
	}
	pred, err := q.Compile()
	if err != nil {
		return store.Page{}, err
	}

	page := store.Page{Items: []value.Object{}}
	err = s.db.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()

		k, v := c.First()
		if opts.Last != "" {
			k, v = c.Seek([]byte(opts.Last))
			if k != nil && string(k) == opts.Last {
				k, v = c.Next()
			}
		}

		for ; k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := decodeItem(k, v)
			if err != nil {
				return err
			}
			ok, err := pred(item)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if opts.Limit > 0 && len(page.Items) == opts.Limit {
				page.Last, _ = store.ItemKey(page.Items[len(page.Items)-1])
				return errStop
			}
			page.Items = append(page.Items, item)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return store.Page{}, err
	}
	return page, nil
}

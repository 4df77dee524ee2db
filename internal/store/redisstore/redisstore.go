// Package redisstore is a store.Store on Redis.
//
// Each base is one hash, "<prefix><base>", mapping item keys to their data
// as JSON. Fetch reads the whole hash, sorts the keys and filters in Go,
// so it suits small bases and tests more than large production sets.
// Updates use WATCH/MULTI so concurrent writers never interleave.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// DefaultPrefix namespaces the hashes.
const DefaultPrefix = "basekit:"

// maxUpdateRetries bounds optimistic retries when a watched hash changes.
const maxUpdateRetries = 10

// Config holds what is needed to connect.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// NewClient connects and pings the server.
func NewClient(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return client, nil
}

// Store is one base held in a Redis hash.
type Store struct {
	client redis.UniversalClient
	hash   string
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.hash = prefix + s.hash[len(DefaultPrefix):] }
}

// New returns the store for base on client.
func New(client redis.UniversalClient, base string, opts ...Option) *Store {
	s := &Store{client: client, hash: DefaultPrefix + base}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hash returns the Redis key of the base.
func (s *Store) Hash() string {
	return s.hash
}

func marshalData(key string, data value.Object) (string, error) {
	b, err := value.Marshal(store.WithoutKey(data))
	if err != nil {
		return "", store.KeyErr("put", key, err)
	}
	return string(b), nil
}

func unmarshalItem(key, text string) (value.Object, error) {
	v, err := value.Unmarshal([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %q: %w", key, err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("unmarshal %q: data is a %s", key, value.Kind(v))
	}
	obj[store.KeyField] = value.String(key)
	return obj, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (value.Object, error) {
	text, err := s.client.HGet(ctx, s.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.KeyErr("get", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return unmarshalItem(key, text)
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, key string, data value.Object) (value.Object, error) {
	text, err := marshalData(key, data)
	if err != nil {
		return nil, err
	}
	created, err := s.client.HSetNX(ctx, s.hash, key, text).Result()
	if err != nil {
		return nil, fmt.Errorf("insert %q: %w", key, err)
	}
	if !created {
		return nil, store.KeyErr("insert", key, store.ErrDuplicateKey)
	}
	return store.WithKey(key, data), nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, data value.Object) (value.Object, error) {
	text, err := marshalData(key, data)
	if err != nil {
		return nil, err
	}
	if err := s.client.HSet(ctx, s.hash, key, text).Err(); err != nil {
		return nil, fmt.Errorf("put %q: %w", key, err)
	}
	return store.WithKey(key, data), nil
}

// PutMany implements store.Store. The batch is one MULTI/EXEC.
func (s *Store) PutMany(ctx context.Context, items []value.Object) ([]value.Object, error) {
	if err := store.CheckBatch(items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []value.Object{}, nil
	}

	out := make([]value.Object, len(items))
	fields := make([]any, 0, 2*len(items))
	for i, item := range items {
		key, _ := store.ItemKey(item)
		text, err := marshalData(key, item)
		if err != nil {
			return nil, err
		}
		fields = append(fields, key, text)
		out[i] = store.WithKey(key, item)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hash, fields...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("put many: %w", err)
	}
	return out, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, key string, upd store.Update) error {
	apply := func(tx *redis.Tx) error {
		text, err := tx.HGet(ctx, s.hash, key).Result()
		if errors.Is(err, redis.Nil) {
			return store.KeyErr("update", key, store.ErrKeyNotFound)
		}
		if err != nil {
			return fmt.Errorf("update %q: %w", key, err)
		}
		item, err := unmarshalItem(key, text)
		if err != nil {
			return err
		}
		next, err := store.ApplyUpdate(store.WithoutKey(item), upd)
		if err != nil {
			return store.KeyErr("update", key, err)
		}
		nextText, err := marshalData(key, next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.hash, key, nextText)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, apply, s.hash)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update %q: too much contention", key)
}

// Fetch implements store.Store. Items come back in key order; the cursor
// resumes at the first key greater than opts.Last.
func (s *Store) Fetch(ctx context.Context, filter query.Wire, opts store.FetchOptions) (store.Page, error) {
	q, err := query.ParseWire(filter)
	if err != nil {
		return store.Page{}, err
	}
	pred, err := q.Compile()
	if err != nil {
		return store.Page{}, err
	}

	all, err := s.client.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return store.Page{}, fmt.Errorf("fetch: %w", err)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		if opts.Last == "" || k > opts.Last {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := store.Page{Items: []value.Object{}}
	for _, k := range keys {
		item, err := unmarshalItem(k, all[k])
		if err != nil {
			return store.Page{}, err
		}
		ok, err := pred(item)
		if err != nil {
			return store.Page{}, err
		}
		if !ok {
			continue
		}
		if opts.Limit > 0 && len(page.Items) == opts.Limit {
			page.Last, _ = store.ItemKey(page.Items[len(page.Items)-1])
			break
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

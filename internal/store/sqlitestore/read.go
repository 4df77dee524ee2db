package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/querysql"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Store is one base of a DB. It implements store.Store.
type Store struct {
	db   *DB
	base string
}

var _ store.Store = (*Store)(nil)

// Name returns the base name.
func (s *Store) Name() string {
	return s.base
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (value.Object, error) {
	item, err := getItem(ctx, s.db.db, s.base, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.KeyErr("get", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return item, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItem(ctx context.Context, q querier, base, key string) (value.Object, error) {
	var text string
	err := q.QueryRowContext(ctx, `
		SELECT data FROM items WHERE base = ? AND key = ?
	`, base, key).Scan(&text)
	if err != nil {
		return nil, err
	}
	return unmarshalItem(key, text)
}

// Fetch implements store.Store. Items come back ordered by key.
func (s *Store) Fetch(ctx context.Context, filter query.Wire, opts store.FetchOptions) (store.Page, error) {
	q, err := query.ParseWire(filter)
	if err != nil {
		return store.Page{}, err
	}

	// One extra row tells whether another page follows.
	limit := 0
	if opts.Limit > 0 {
		limit = opts.Limit + 1
	}
	stmt, params, err := s.db.compiler.CompileFetch(querysql.Fetch{
		Base:  s.base,
		Query: q,
		After: opts.Last,
		Limit: limit,
	})
	if err != nil {
		return store.Page{}, err
	}

	rows, err := s.db.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return store.Page{}, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []value.Object{}
	for rows.Next() {
		var key, text string
		if err := rows.Scan(&key, &text); err != nil {
			return store.Page{}, fmt.Errorf("scan item: %w", err)
		}
		item, err := unmarshalItem(key, text)
		if err != nil {
			return store.Page{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return store.Page{}, fmt.Errorf("iterate items: %w", err)
	}

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
		last, _ := store.ItemKey(items[len(items)-1])
		return store.Page{Items: items, Last: last}, nil
	}
	return store.Page{Items: items}, nil
}

package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert implements store.Store. Uses ON CONFLICT DO NOTHING and reports
// a conflict as store.ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, key string, data value.Object) (value.Object, error) {
	text, err := marshalData(data)
	if err != nil {
		return nil, store.KeyErr("insert", key, err)
	}

	result, err := s.db.db.ExecContext(ctx, `
		INSERT INTO items (base, key, data)
		VALUES (?, ?, ?)
		ON CONFLICT(base, key) DO NOTHING
	`, s.base, key, text)
	if err != nil {
		return nil, fmt.Errorf("insert %q: %w", key, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert %q: rows affected: %w", key, err)
	}
	if n == 0 {
		return nil, store.KeyErr("insert", key, store.ErrDuplicateKey)
	}
	return store.WithKey(key, data), nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, data value.Object) (value.Object, error) {
	if err := putItem(ctx, s.db.db, s.base, key, data); err != nil {
		return nil, err
	}
	return store.WithKey(key, data), nil
}

func putItem(ctx context.Context, ex execer, base, key string, data value.Object) error {
	text, err := marshalData(data)
	if err != nil {
		return store.KeyErr("put", key, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO items (base, key, data)
		VALUES (?, ?, ?)
		ON CONFLICT(base, key) DO UPDATE SET data = excluded.data
	`, base, key, text)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// PutMany implements store.Store. The batch is written in one
// transaction: either every item is stored or none is.
func (s *Store) PutMany(ctx context.Context, items []value.Object) ([]value.Object, error) {
	if err := store.CheckBatch(items); err != nil {
		return nil, err
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put many: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	out := make([]value.Object, len(items))
	for i, item := range items {
		key, _ := store.ItemKey(item)
		if err := putItem(ctx, tx, s.base, key, item); err != nil {
			return nil, err
		}
		out[i] = store.WithKey(key, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put many: commit: %w", err)
	}
	return out, nil
}

// Update implements store.Store. The item is read, updated and written
// back in one transaction.
func (s *Store) Update(ctx context.Context, key string, upd store.Update) error {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %q: begin tx: %w", key, err)
	}
	defer tx.Rollback() // No-op if committed

	item, err := getItem(ctx, tx, s.base, key)
	if errors.Is(err, sql.ErrNoRows) {
		return store.KeyErr("update", key, store.ErrKeyNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %q: %w", key, err)
	}

	next, err := store.ApplyUpdate(store.WithoutKey(item), upd)
	if err != nil {
		return store.KeyErr("update", key, err)
	}
	if err := putItem(ctx, tx, s.base, key, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update %q: commit: %w", key, err)
	}
	return nil
}

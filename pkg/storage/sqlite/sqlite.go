// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlite stores provider records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/storage"
)

// compile-time check
var _ storage.Store = (*Store)(nil)

// Store is a SQLite-backed implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway store.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS provider_records (
			category TEXT NOT NULL,
			id TEXT NOT NULL,
			kind TEXT NOT NULL,
			hint TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL,
			revision TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (category, id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite create tables: %w", err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec *storage.Record) error {
	cfg, err := storage.MarshalConfig(rec.Config)
	if err != nil {
		return err
	}
	storage.Stamp(rec)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO provider_records (category, id, kind, hint, config, revision, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (category, id) DO UPDATE SET
		   kind = excluded.kind, hint = excluded.hint, config = excluded.config,
		   revision = excluded.revision, updated_at = excluded.updated_at`,
		rec.Category, rec.ID, rec.Kind, string(rec.Hint), cfg, rec.Revision,
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save record %s/%s: %w", rec.Category, rec.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, category, id string) (*storage.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT category, id, kind, hint, config, revision, updated_at
		 FROM provider_records WHERE category = ? AND id = ?`, category, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", category, id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, category, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_records WHERE category = ? AND id = ?`, category, id)
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", category, id, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, category string) ([]*storage.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, id, kind, hint, config, revision, updated_at
		 FROM provider_records WHERE category = ? ORDER BY id`, category)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*storage.Record, error) {
	var (
		rec                storage.Record
		hint, cfg, updated string
	)
	if err := row.Scan(&rec.Category, &rec.ID, &rec.Kind, &hint, &cfg, &rec.Revision, &updated); err != nil {
		return nil, err
	}
	rec.Hint = provider.Hint(hint)
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.UpdatedAt = t
	tree, err := storage.UnmarshalConfig(cfg)
	if err != nil {
		return nil, err
	}
	rec.Config = tree
	return &rec, nil
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlstyle serves style documents stored in a relational table,
// on PostgreSQL or MySQL.
package sqlstyle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/style"
)

// Kind names of the two dialects.
const (
	KindPostgres = "style-postgres"
	KindMySQL    = "style-mysql"
)

const defaultTable = "styles"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Params are the choice parameters of a SQL style table.
type Params struct {
	DSN         string `json:"dsn" jsonschema:"description=Database connection string"`
	Table       string `json:"table,omitempty" jsonschema:"description=Table with name/format/body columns"`
	CreateTable bool   `json:"create_table,omitempty" jsonschema:"description=Create the table when it does not exist"`
	Owned       bool   `json:"owned,omitempty" jsonschema:"description=Drop the table on purge"`
}

// Dialect captures the differences between the supported databases.
type Dialect struct {
	Kind   string
	Driver string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	CreateDDL   string
}

// Postgres is the PostgreSQL dialect over pgx.
var Postgres = Dialect{
	Kind:        KindPostgres,
	Driver:      "pgx",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	CreateDDL: `CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		format TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL
	)`,
}

// MySQL is the MySQL dialect over go-sql-driver.
var MySQL = Dialect{
	Kind:        KindMySQL,
	Driver:      "mysql",
	Placeholder: func(int) string { return "?" },
	CreateDDL: `CREATE TABLE IF NOT EXISTS %s (
		name VARCHAR(255) PRIMARY KEY,
		format VARCHAR(32) NOT NULL DEFAULT '',
		body MEDIUMTEXT NOT NULL
	)`,
}

// Opener opens a database handle.
type Opener func(driver, dsn string) (*sql.DB, error)

// compile-time check
var _ style.Source = (*Source)(nil)

// Source indexes the rows of one style table.
type Source struct {
	provider.Base
	dialect Dialect
	params  Params
	db      *sql.DB
}

// NewPostgresFactory returns the PostgreSQL style factory.
func NewPostgresFactory() style.Factory {
	return NewFactory(Postgres, sql.Open)
}

// NewMySQLFactory returns the MySQL style factory.
func NewMySQLFactory() style.Factory {
	return NewFactory(MySQL, sql.Open)
}

// NewFactory returns a factory for d that opens databases with open.
func NewFactory(d Dialect, open Opener) style.Factory {
	desc := provider.NewDescriptor(d.Kind, "SQL style table ("+d.Driver+")", &Params{}).
		WithDescription("Style documents stored as rows of a name/format/body table.")
	return provider.NewFactory(desc, provider.HintMatcher(d.Kind), func(ctx context.Context, id string, cfg *provider.ConfigTree) (style.Source, error) {
		return New(ctx, id, cfg, d, open)
	})
}

// New connects and indexes the table.
func New(ctx context.Context, id string, cfg *provider.ConfigTree, d Dialect, open Opener) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	if p.DSN == "" {
		return nil, fmt.Errorf("%s: dsn is required", d.Kind)
	}
	if p.Table == "" {
		p.Table = defaultTable
	}
	if !tableName.MatchString(p.Table) {
		return nil, fmt.Errorf("%s: invalid table name %q", d.Kind, p.Table)
	}
	if open == nil {
		open = sql.Open
	}

	db, err := open(d.Driver, p.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", d.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s ping: %w", d.Driver, err)
	}

	if p.CreateTable {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(d.CreateDDL, p.Table)); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s create table: %w", d.Kind, err)
		}
	}

	s := &Source{dialect: d, params: p, db: db}
	s.Init(id, d.Kind, cfg)
	if err := s.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Reload re-reads the style names.
func (s *Source) Reload(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name, format FROM "+s.params.Table+" ORDER BY name")
	if err != nil {
		return fmt.Errorf("%s list: %w", s.Kind(), err)
	}
	defer rows.Close()

	var handles []provider.Handle
	for rows.Next() {
		var name, format string
		if err := rows.Scan(&name, &format); err != nil {
			return fmt.Errorf("%s scan: %w", s.Kind(), err)
		}
		if format == "" {
			format = style.FormatOfName(name)
		}
		handles = append(handles, provider.Handle{
			Key:      name,
			Type:     format,
			Title:    name,
			Location: s.params.Table + "/" + name,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s rows: %w", s.Kind(), err)
	}
	s.Publish(handles)
	return nil
}

// Body fetches the document of key.
func (s *Source) Body(ctx context.Context, key string) ([]byte, error) {
	if _, ok := s.Get(key); !ok {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM "+s.params.Table+" WHERE name = "+s.dialect.Placeholder(1), key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s get %s: %w", s.Kind(), key, err)
	}
	return []byte(body), nil
}

// Ping checks the connection pool.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RemoveAll drops the table when the source owns it.
func (s *Source) RemoveAll(ctx context.Context) error {
	if !s.params.Owned {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.params.Table); err != nil {
		return fmt.Errorf("%s drop table: %w", s.Kind(), err)
	}
	return nil
}

// Dispose closes the connection pool.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(s.db.Close)
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package postgis serves the geometry tables of a PostGIS schema.
package postgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
)

// Kind is the backend kind name.
const Kind = "postgis"

const defaultSchema = "public"

// Params are the choice parameters of a PostGIS source.
type Params struct {
	DSN          string `json:"dsn" jsonschema:"description=PostgreSQL connection string"`
	Schema       string `json:"schema,omitempty" jsonschema:"description=Schema holding the geometry tables,default=public"`
	CreateSchema bool   `json:"create_schema,omitempty" jsonschema:"description=Create the schema when it does not exist"`
	Owned        bool   `json:"owned,omitempty" jsonschema:"description=Drop the schema on purge"`
	MaxConns     int    `json:"max_conns,omitempty" jsonschema:"minimum=1"`
}

// Opener opens a database handle for a DSN.
type Opener func(dsn string) (*sql.DB, error)

func openPgx(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// compile-time check
var _ layer.Source = (*Source)(nil)

// Source lists geometry_columns of one schema.
type Source struct {
	provider.Base
	params Params
	db     *sql.DB
}

// NewFactory returns the PostGIS factory.
func NewFactory() layer.Factory {
	return NewFactoryWithOpener(openPgx)
}

// NewFactoryWithOpener returns a PostGIS factory that opens databases
// with open.
func NewFactoryWithOpener(open Opener) layer.Factory {
	desc := provider.NewDescriptor(Kind, "PostGIS schema", &Params{}).
		WithDescription("Every table registered in geometry_columns of a PostGIS schema.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind, "postgresql"), func(ctx context.Context, id string, cfg *provider.ConfigTree) (layer.Source, error) {
		return New(ctx, id, cfg, open)
	})
}

// New connects to the database and indexes the schema. A nil open uses
// the pgx driver.
func New(ctx context.Context, id string, cfg *provider.ConfigTree, open Opener) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	if p.DSN == "" {
		return nil, errors.New("postgis: dsn is required")
	}
	if p.Schema == "" {
		p.Schema = defaultSchema
	}
	if p.Owned && p.Schema == defaultSchema {
		return nil, fmt.Errorf("postgis: schema %q cannot be owned", defaultSchema)
	}
	if open == nil {
		open = openPgx
	}

	db, err := open(p.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if p.MaxConns > 0 {
		db.SetMaxOpenConns(p.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &Source{params: p, db: db}
	s.Init(id, Kind, cfg)

	if p.CreateSchema {
		if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+s.schema()); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgis create schema: %w", err)
		}
	}
	if err := s.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) schema() string {
	return pgx.Identifier{s.params.Schema}.Sanitize()
}

// Reload re-reads geometry_columns. A table with several geometry
// columns is served through its first column.
func (s *Source) Reload(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT f_table_name, f_geometry_column, srid, type
		FROM geometry_columns
		WHERE f_table_schema = $1
		ORDER BY f_table_name, f_geometry_column`, s.params.Schema)
	if err != nil {
		return fmt.Errorf("postgis geometry_columns: %w", err)
	}
	defer rows.Close()

	var handles []provider.Handle
	for rows.Next() {
		var (
			table, column, geomType string
			srid                    int
		)
		if err := rows.Scan(&table, &column, &srid, &geomType); err != nil {
			return fmt.Errorf("postgis scan: %w", err)
		}
		handles = append(handles, provider.Handle{
			Key:      table,
			Type:     layer.TypeVector,
			Title:    table,
			Location: s.schema() + "." + pgx.Identifier{table}.Sanitize(),
			SRID:     srid,
			Attributes: map[string]string{
				"geometry_column": column,
				"geometry_type":   geomType,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgis rows: %w", err)
	}
	s.Publish(handles)
	return nil
}

// Extent is unknown without scanning the table; workers compute it.
func (s *Source) Extent(key string) (provider.Envelope, bool) {
	return layer.HandleExtent(s, key)
}

// Ping checks the connection pool.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RemoveAll drops the schema when the source owns it.
func (s *Source) RemoveAll(ctx context.Context) error {
	if !s.params.Owned {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+s.schema()+" CASCADE"); err != nil {
		return fmt.Errorf("postgis drop schema: %w", err)
	}
	return nil
}

// Dispose closes the connection pool.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(s.db.Close)
}

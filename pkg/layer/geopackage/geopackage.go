// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package geopackage serves the contents of an OGC GeoPackage file.
package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
)

// Kind is the backend kind name.
const Kind = "geopackage"

// applicationID is "GPKG" as a big-endian int32.
const applicationID = 0x47504B47

// Params are the choice parameters of a GeoPackage source.
type Params struct {
	Path   string `json:"path" jsonschema:"description=GeoPackage file"`
	Create bool   `json:"create,omitempty" jsonschema:"description=Initialize an empty GeoPackage when the file does not exist"`
	Owned  bool   `json:"owned,omitempty" jsonschema:"description=Delete the file on purge"`
}

// compile-time check
var _ layer.Source = (*Source)(nil)

// Source exposes each features or tiles table listed in gpkg_contents as
// a layer.
type Source struct {
	provider.Base
	params Params
	db     *sql.DB
}

// NewFactory returns the GeoPackage factory.
func NewFactory() layer.Factory {
	desc := provider.NewDescriptor(Kind, "GeoPackage", &Params{}).
		WithDescription("Feature and tile tables registered in gpkg_contents.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind, "gpkg"), func(ctx context.Context, id string, cfg *provider.ConfigTree) (layer.Source, error) {
		return New(ctx, id, cfg)
	})
}

// New opens the GeoPackage and indexes its contents.
func New(ctx context.Context, id string, cfg *provider.ConfigTree) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, errors.New("geopackage: path is required")
	}

	_, err := os.Stat(p.Path)
	missing := errors.Is(err, fs.ErrNotExist)
	if err != nil && !(missing && p.Create) {
		return nil, fmt.Errorf("stat %s: %w", p.Path, err)
	}

	db, err := sql.Open("sqlite", p.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// A file created here is removed again when the build fails.
	abort := func(err error) (*Source, error) {
		db.Close()
		if missing {
			if rmErr := removeFiles(p.Path); rmErr != nil {
				err = errors.Join(err, rmErr)
			}
		}
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return abort(fmt.Errorf("sqlite ping: %w", err))
	}

	if missing {
		if err := initialize(ctx, db); err != nil {
			return abort(err)
		}
	}

	s := &Source{params: p, db: db}
	s.Init(id, Kind, cfg)
	if err := s.Reload(ctx); err != nil {
		return abort(err)
	}
	return s, nil
}

// initialize writes the minimal GeoPackage metadata tables.
func initialize(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`PRAGMA application_id = %d`, applicationID),
		`PRAGMA user_version = 10400`,
		`CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES
			('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', NULL),
			('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', NULL),
			('WGS 84 geodetic', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]', NULL)`,
		`CREATE TABLE IF NOT EXISTS gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE,
			min_y DOUBLE,
			max_x DOUBLE,
			max_y DOUBLE,
			srs_id INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("geopackage init: %w", err)
		}
	}
	return nil
}

// Reload re-reads gpkg_contents.
func (s *Source) Reload(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'gpkg_contents'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("geopackage probe: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s is not a GeoPackage: no gpkg_contents table", s.params.Path)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT table_name, data_type, identifier,
		min_x, min_y, max_x, max_y, srs_id FROM gpkg_contents ORDER BY table_name`)
	if err != nil {
		return fmt.Errorf("geopackage contents: %w", err)
	}
	defer rows.Close()

	var handles []provider.Handle
	for rows.Next() {
		var (
			table, dataType        string
			identifier             sql.NullString
			minX, minY, maxX, maxY sql.NullFloat64
			srsID                  sql.NullInt64
		)
		if err := rows.Scan(&table, &dataType, &identifier, &minX, &minY, &maxX, &maxY, &srsID); err != nil {
			return fmt.Errorf("geopackage scan: %w", err)
		}
		typ, ok := layerType(dataType)
		if !ok {
			continue
		}
		h := provider.Handle{
			Key:      table,
			Type:     typ,
			Title:    identifier.String,
			Location: s.params.Path + "#" + table,
			SRID:     int(srsID.Int64),
			Attributes: map[string]string{
				"data_type": dataType,
			},
		}
		if minX.Valid && minY.Valid && maxX.Valid && maxY.Valid {
			h.Extent = &provider.Envelope{MinX: minX.Float64, MinY: minY.Float64, MaxX: maxX.Float64, MaxY: maxY.Float64}
		}
		if srsID.Valid {
			h.Attributes["srs_id"] = strconv.FormatInt(srsID.Int64, 10)
		}
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("geopackage rows: %w", err)
	}
	s.Publish(handles)
	return nil
}

func layerType(dataType string) (string, bool) {
	switch dataType {
	case "features":
		return layer.TypeVector, true
	case "tiles", "2d-gridded-coverage":
		return layer.TypeRaster, true
	default:
		return "", false
	}
}

// Extent returns the gpkg_contents bounding box of key.
func (s *Source) Extent(key string) (provider.Envelope, bool) {
	return layer.HandleExtent(s, key)
}

// Ping checks the database handle.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RemoveAll deletes the file when the source owns it.
func (s *Source) RemoveAll(_ context.Context) error {
	if !s.params.Owned {
		return nil
	}
	return removeFiles(s.params.Path)
}

// removeFiles deletes a database file and its SQLite side files.
func removeFiles(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path+suffix, err)
		}
	}
	return nil
}

// Dispose closes the database handle.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(s.db.Close)
}

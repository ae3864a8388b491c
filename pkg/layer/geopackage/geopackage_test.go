// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/provider/providertest"
)

func testConfig(params map[string]any) *provider.ConfigTree {
	return &provider.ConfigTree{Name: "gpkg", Choice: &provider.Group{Name: Kind, Params: params}}
}

// fixture creates a GeoPackage with a features table, a tiles table and
// an attributes table.
func fixture(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "city.gpkg")

	s, err := New(ctx, "setup", testConfig(map[string]any{"path": path, "create": true}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer s.Dispose(ctx)

	stmts := []string{
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
			VALUES ('buildings', 'features', 'Buildings', 2.2, 48.8, 2.5, 48.9, 4326)`,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id)
			VALUES ('ortho', 'tiles', 'Orthophoto', 4326)`,
		`INSERT INTO gpkg_contents (table_name, data_type) VALUES ('owners', 'attributes')`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return path
}

func TestGeoPackageConformance(t *testing.T) {
	path := fixture(t)
	providertest.RunConformanceTests(t,
		providertest.Fixture{ID: "city", Kind: Kind, Keys: []string{"buildings", "ortho"}},
		func(t *testing.T) provider.Instance {
			s, err := New(context.Background(), "city", testConfig(map[string]any{"path": path}))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			return s
		})
}

func TestGeoPackage_Contents(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, "city", testConfig(map[string]any{"path": fixture(t)}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Dispose(ctx)

	env, ok := s.Extent("buildings")
	if !ok || env.MinX != 2.2 || env.MaxY != 48.9 {
		t.Errorf("Extent(buildings) = %+v, %v", env, ok)
	}
	h, _ := s.Get("ortho")
	if h.Type != layer.TypeRaster || h.Title != "Orthophoto" || h.SRID != 4326 || h.Attributes["srs_id"] != "4326" {
		t.Errorf("ortho handle = %+v", h)
	}
	if _, ok := s.Extent("ortho"); ok {
		t.Error("ortho has no bbox")
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestGeoPackage_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.gpkg")
	_, err := New(context.Background(), "x", testConfig(map[string]any{"path": path}))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, fs.ErrNotExist) {
		t.Error("failed build left a file behind")
	}
}

func TestGeoPackage_FailedCreateRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.gpkg")
	// A directory where the rollback journal goes makes the first write fail.
	if err := os.Mkdir(path+"-journal", 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := New(context.Background(), "fresh", testConfig(map[string]any{"path": path, "create": true}))
	if err == nil {
		t.Fatal("expected initialization to fail")
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, fs.ErrNotExist) {
		t.Errorf("failed build left %s behind: %v", path, statErr)
	}
}

func TestGeoPackage_NotAGeoPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE t (x INTEGER)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := New(context.Background(), "x", testConfig(map[string]any{"path": path})); err == nil {
		t.Error("expected error for a plain SQLite file")
	}
}

func TestGeoPackage_OwnedRemoveAll(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scratch.gpkg")

	s, err := New(ctx, "scratch", testConfig(map[string]any{"path": path, "create": true, "owned": true}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Errorf("new GeoPackage has keys: %v", s.Keys())
	}
	if err := s.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if err := s.Dispose(ctx); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("owned file still present: %v", err)
	}
}

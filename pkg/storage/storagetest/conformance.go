// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package storagetest provides a shared conformance test suite for
// storage.Store implementations. Each backend should call
// RunConformanceTests from its own _test.go file.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/storage"
)

func makeRecord(category, id string) *storage.Record {
	return &storage.Record{
		Category: category,
		ID:       id,
		Kind:     "geopackage",
		Hint:     "gpkg",
		Config: &provider.ConfigTree{
			Name:   id,
			Params: map[string]any{"timeout": "5s"},
			Choice: &provider.Group{Name: "gpkg", Params: map[string]any{"path": "/data/" + id + ".gpkg"}},
		},
	}
}

// RunConformanceTests exercises a Store implementation against the shared
// contract. The newStore function is called once per sub-test to provide an
// isolated store instance.
func RunConformanceTests(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("SaveAndGet", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		rec := makeRecord("layer", "roads")
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if rec.Revision == "" || rec.UpdatedAt.IsZero() {
			t.Errorf("Save did not stamp the record: %+v", rec)
		}

		got, err := store.Get(ctx, "layer", "roads")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Kind != rec.Kind || got.Hint != rec.Hint || got.Revision != rec.Revision {
			t.Errorf("Get returned %+v, want %+v", got, rec)
		}
		if got.Config == nil || got.Config.Choice == nil || got.Config.Choice.Params["path"] != "/data/roads.gpkg" {
			t.Errorf("config did not round-trip: %+v", got.Config)
		}
		if got.Config.Params["timeout"] != "5s" {
			t.Errorf("tree params did not round-trip: %+v", got.Config.Params)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		rec := makeRecord("layer", "roads")
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
		first := rec.Revision

		rec.Kind = "postgis"
		rec.Hint = "postgis"
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if rec.Revision == first {
			t.Error("expected a new revision")
		}

		got, err := store.Get(ctx, "layer", "roads")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Kind != "postgis" || got.Revision != rec.Revision {
			t.Errorf("Get after replace = %+v", got)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		_, err := store.Get(context.Background(), "layer", "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListByCategory", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		for _, rec := range []*storage.Record{
			makeRecord("layer", "rivers"),
			makeRecord("layer", "admin"),
			makeRecord("style", "admin"),
		} {
			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}

		layers, err := store.List(ctx, "layer")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(layers) != 2 || layers[0].ID != "admin" || layers[1].ID != "rivers" {
			t.Errorf("List(layer) = %v", ids(layers))
		}
		styles, err := store.List(ctx, "style")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(styles) != 1 || styles[0].Category != "style" {
			t.Errorf("List(style) = %v", ids(styles))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.Save(ctx, makeRecord("layer", "roads")); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := store.Delete(ctx, "layer", "roads"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Get(ctx, "layer", "roads"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, "layer", "roads"); err != nil {
			t.Errorf("second Delete: %v", err)
		}
	})
}

func ids(recs []*storage.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

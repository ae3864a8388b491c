// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/storage"
	"github.com/leseb/ogc-gw/pkg/storage/memory"
	"github.com/leseb/ogc-gw/pkg/style"
)

// flakyStore fails Save and Delete while the matching flag is set.
type flakyStore struct {
	*memory.Store
	failSave   bool
	failDelete bool
	closed     bool
}

func (f *flakyStore) Save(ctx context.Context, rec *storage.Record) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, rec)
}

func (f *flakyStore) Delete(ctx context.Context, category, id string) error {
	if f.failDelete {
		return errors.New("db unreachable")
	}
	return f.Store.Delete(ctx, category, id)
}

func (f *flakyStore) Close() error {
	f.closed = true
	return f.Store.Close()
}

func layerConfig(name string, keys ...string) *provider.ConfigTree {
	var layers []any
	for _, k := range keys {
		layers = append(layers, map[string]any{"key": k, "type": "vector"})
	}
	return &provider.ConfigTree{
		Name:   name,
		Choice: &provider.Group{Name: "memory", Params: map[string]any{"layers": layers}},
	}
}

func newService(t *testing.T) (*Providers, *flakyStore) {
	t.Helper()
	store := &flakyStore{Store: memory.New()}
	svc := NewProviders(store, nil,
		NewLayerRegistry().Admin(),
		NewStyleRegistry().Admin(),
	)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc, store
}

func TestProviders_Categories(t *testing.T) {
	svc, _ := newService(t)
	got := svc.Categories()
	if len(got) != 2 || got[0] != layer.Category || got[1] != style.Category {
		t.Errorf("Categories() = %v", got)
	}
	if _, err := svc.List("tiles"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestProviders_BuiltinFactories(t *testing.T) {
	svc, _ := newService(t)

	layers, err := svc.Factories(layer.Category)
	if err != nil {
		t.Fatalf("Factories: %v", err)
	}
	want := map[string]bool{"memory": true, "shapefile": true, "geopackage": true, "postgis": true, "coverage-s3": true, "sensor-archive": true}
	if len(layers) != len(want) {
		t.Errorf("got %d layer factories, want %d", len(layers), len(want))
	}
	for _, f := range layers {
		if !want[f.Kind] {
			t.Errorf("unexpected layer factory %q", f.Kind)
		}
	}

	styles, err := svc.Factories(style.Category)
	if err != nil {
		t.Fatalf("Factories: %v", err)
	}
	if len(styles) != 5 {
		t.Errorf("got %d style factories, want 5", len(styles))
	}
}

func TestProviders_CreatePersists(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	info, err := svc.Create(ctx, layer.Category, "base", "", layerConfig("base", "roads", "rivers"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if info.Kind != "memory" || len(info.Keys) != 2 {
		t.Errorf("Create returned %+v", info)
	}

	rec, err := store.Get(ctx, layer.Category, "base")
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.Kind != "memory" || rec.Config.Hint() != "memory" {
		t.Errorf("record = %+v", rec)
	}

	h, err := svc.Lookup(layer.Category, "base", "roads")
	if err != nil || h.Key != "roads" {
		t.Errorf("Lookup = %+v, %v", h, err)
	}
	if _, err := svc.Lookup(layer.Category, "base", "lakes"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProviders_CreateRollsBackOnPersistFailure(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	store.failSave = true

	if _, err := svc.Create(ctx, layer.Category, "base", "", layerConfig("base", "roads")); err == nil {
		t.Fatal("expected persist error")
	}
	if _, err := svc.Describe(layer.Category, "base"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("instance survived failed persist: %v", err)
	}

	store.failSave = false
	if _, err := svc.Create(ctx, layer.Category, "base", "", layerConfig("base", "roads")); err != nil {
		t.Errorf("id not reusable after rollback: %v", err)
	}
}

func TestProviders_UpdatePersists(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, layer.Category, "base", "", layerConfig("base", "roads")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	info, err := svc.Update(ctx, layer.Category, "base", "", layerConfig("base", "roads", "rail"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(info.Keys) != 2 {
		t.Errorf("keys after update = %v", info.Keys)
	}
	rec, _ := store.Get(ctx, layer.Category, "base")
	if layers := rec.Config.Choice.Params["layers"].([]any); len(layers) != 2 {
		t.Errorf("record still holds the old config: %v", layers)
	}

	store.failSave = true
	if _, err := svc.Update(ctx, layer.Category, "base", "", layerConfig("base", "roads", "rail", "ferry")); err == nil {
		t.Fatal("expected persist error")
	}
	got, _ := svc.Describe(layer.Category, "base")
	if len(got.Keys) != 2 {
		t.Errorf("failed update was not rolled back: %v", got.Keys)
	}
}

func TestProviders_Remove(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := svc.Create(ctx, layer.Category, id, "", layerConfig(id, "roads")); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := svc.Remove(ctx, layer.Category, "a", false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := svc.Remove(ctx, layer.Category, "b", true); err != nil {
		t.Fatalf("Remove purge: %v", err)
	}
	recs, _ := store.List(ctx, layer.Category)
	if len(recs) != 0 {
		t.Errorf("records left after remove: %d", len(recs))
	}
	if err := svc.Remove(ctx, layer.Category, "a", false); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProviders_RemoveKeepsProviderWhenRecordSurvives(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	ctx := context.Background()
	svc := NewProviders(store, nil, NewLayerRegistry().Admin())
	defer svc.Shutdown(ctx)

	if _, err := svc.Create(ctx, layer.Category, "a", "", layerConfig("a", "roads")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.failDelete = true
	if err := svc.Remove(ctx, layer.Category, "a", false); err == nil {
		t.Fatal("expected record delete error")
	}
	if _, err := svc.Describe(layer.Category, "a"); err != nil {
		t.Errorf("provider unregistered although its record remains: %v", err)
	}

	restarted := NewProviders(store, nil, NewLayerRegistry().Admin())
	if err := restarted.Restore(ctx, nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := restarted.Describe(layer.Category, "a"); err != nil {
		t.Errorf("provider with a surviving record not restored: %v", err)
	}

	store.failDelete = false
	if err := svc.Remove(ctx, layer.Category, "a", false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	fresh := NewProviders(store, nil, NewLayerRegistry().Admin())
	if err := fresh.Restore(ctx, nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := fresh.Describe(layer.Category, "a"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("removed provider came back after Restore: %v", err)
	}
}

func TestProviders_Restore(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	ctx := context.Background()
	persisted := &storage.Record{
		Category: layer.Category,
		ID:       "base",
		Kind:     "memory",
		Config:   layerConfig("base", "roads", "rivers"),
	}
	if err := store.Save(ctx, persisted); err != nil {
		t.Fatalf("Save: %v", err)
	}

	svc := NewProviders(store, nil, NewLayerRegistry().Admin(), NewStyleRegistry().Admin())
	defer svc.Shutdown(ctx)

	err := svc.Restore(ctx, map[string][]provider.Declaration{
		layer.Category: {
			{ID: "base", Config: layerConfig("base", "shadowed")},
			{ID: "extra", Config: layerConfig("extra", "parcels")},
			{ID: "broken", Config: &provider.ConfigTree{
				Name:   "broken",
				Choice: &provider.Group{Name: "memory", Params: map[string]any{"layers": []any{map[string]any{"type": "vector"}}}},
			}},
		},
	})
	var cf *provider.ConstructionFailedError
	if !errors.As(err, &cf) || cf.ID != "broken" {
		t.Fatalf("expected joined construction failure for broken, got %v", err)
	}

	infos, _ := svc.List(layer.Category)
	if len(infos) != 2 {
		t.Fatalf("restored %d providers, want 2", len(infos))
	}
	if base, _ := svc.Describe(layer.Category, "base"); len(base.Keys) != 2 {
		t.Errorf("record did not win over declaration: %v", base.Keys)
	}
	failures, _ := svc.Failures(layer.Category)
	if len(failures) != 1 || failures[0].ID != "broken" {
		t.Errorf("Failures = %+v", failures)
	}
	recs, _ := store.List(ctx, layer.Category)
	if len(recs) != 1 {
		t.Errorf("declared providers must not be persisted, got %d records", len(recs))
	}
}

func TestProviders_RestoreUnknownCategory(t *testing.T) {
	svc, _ := newService(t)
	err := svc.Restore(context.Background(), map[string][]provider.Declaration{"tiles": nil})
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestProviders_Shutdown(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	svc := NewProviders(store, nil, NewLayerRegistry().Admin())
	ctx := context.Background()

	if _, err := svc.Create(ctx, layer.Category, "base", "", layerConfig("base", "roads")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !store.closed {
		t.Error("record store not closed")
	}
	if _, err := svc.Create(ctx, layer.Category, "late", "", layerConfig("late", "roads")); !errors.Is(err, provider.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

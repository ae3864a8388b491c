// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"

	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/storage"
	"github.com/leseb/ogc-gw/pkg/storage/storagetest"
)

func TestMemoryConformance(t *testing.T) {
	storagetest.RunConformanceTests(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &storage.Record{
		Category: "style",
		ID:       "default",
		Kind:     "memory",
		Config:   &provider.ConfigTree{Name: "default", Choice: &provider.Group{Name: "memory"}},
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.Config.Choice.Name = "changed"

	got, err := s.Get(ctx, "style", "default")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Config.Choice.Name != "memory" {
		t.Errorf("stored record aliases the caller's config: %q", got.Config.Choice.Name)
	}
	got.Kind = "other"
	again, _ := s.Get(ctx, "style", "default")
	if again.Kind != "memory" {
		t.Errorf("Get result aliases the stored record")
	}
}

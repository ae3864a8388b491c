// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package providertest provides a shared conformance test suite for
// provider.Instance implementations. Each backend should call
// RunConformanceTests from its own _test.go file.
package providertest

import (
	"context"
	"slices"
	"testing"

	"github.com/leseb/ogc-gw/pkg/provider"
)

// Fixture describes what a freshly built instance must report.
type Fixture struct {
	ID   string
	Kind string
	// Keys is the sorted key set discovered from the prepared backing store.
	Keys []string
}

// RunConformanceTests exercises an Instance implementation against the
// shared contract. newInstance is called once per sub-test and must return
// an instance built over identical backing data.
func RunConformanceTests(t *testing.T, fx Fixture, newInstance func(t *testing.T) provider.Instance) {
	t.Helper()

	t.Run("Identity", func(t *testing.T) {
		inst := newInstance(t)
		defer inst.Dispose(context.Background())

		if inst.ID() != fx.ID || inst.Kind() != fx.Kind {
			t.Errorf("identity = (%q, %q), want (%q, %q)", inst.ID(), inst.Kind(), fx.ID, fx.Kind)
		}
		cfg := inst.Config()
		if cfg == nil || cfg.Choice == nil {
			t.Fatal("Config() returned no choice group")
		}
		cfg.Choice.Name = "mutated"
		if inst.Config().Choice.Name == "mutated" {
			t.Error("Config() exposes the retained tree")
		}
	})

	t.Run("Keys", func(t *testing.T) {
		inst := newInstance(t)
		defer inst.Dispose(context.Background())

		keys := inst.Keys()
		if !slices.Equal(keys, fx.Keys) {
			t.Fatalf("Keys() = %v, want %v", keys, fx.Keys)
		}
		for _, k := range keys {
			h, ok := inst.Get(k)
			if !ok {
				t.Errorf("Get(%q) missed a listed key", k)
				continue
			}
			if h.Key != k {
				t.Errorf("Get(%q) returned handle for %q", k, h.Key)
			}
		}
	})

	t.Run("UnknownKey", func(t *testing.T) {
		inst := newInstance(t)
		defer inst.Dispose(context.Background())

		if _, ok := inst.Get("no-such-key"); ok {
			t.Error("Get resolved an unknown key")
		}
	})

	t.Run("ReloadIdempotent", func(t *testing.T) {
		inst := newInstance(t)
		defer inst.Dispose(context.Background())
		ctx := context.Background()

		if err := inst.Reload(ctx); err != nil {
			t.Fatalf("Reload: %v", err)
		}
		first := inst.Keys()
		if err := inst.Reload(ctx); err != nil {
			t.Fatalf("Reload: %v", err)
		}
		if second := inst.Keys(); !slices.Equal(first, second) {
			t.Errorf("keys changed across reloads: %v then %v", first, second)
		}
		if !slices.Equal(first, fx.Keys) {
			t.Errorf("Keys() after reload = %v, want %v", first, fx.Keys)
		}
	})

	t.Run("DisposeIdempotent", func(t *testing.T) {
		inst := newInstance(t)
		ctx := context.Background()

		if err := inst.Dispose(ctx); err != nil {
			t.Fatalf("Dispose: %v", err)
		}
		if err := inst.Dispose(ctx); err != nil {
			t.Errorf("second Dispose: %v", err)
		}
	})
}

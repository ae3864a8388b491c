// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"testing"
)

func TestBase_Publish(t *testing.T) {
	var b Base
	b.Init("roads", "memory", &ConfigTree{Name: "roads", Choice: &Group{Name: "memory"}})

	if keys := b.Keys(); len(keys) != 0 {
		t.Errorf("fresh instance has keys: %v", keys)
	}
	b.Publish([]Handle{{Key: "b"}, {Key: "a", Title: "first"}, {Key: "a", Title: "dup"}})

	keys := b.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v", keys)
	}
	if h, ok := b.Get("a"); !ok || h.Title != "first" {
		t.Errorf("Get(a) = %+v, %v", h, ok)
	}
	if _, ok := b.Get("c"); ok {
		t.Error("unknown key resolved")
	}

	keys[0] = "mutated"
	if b.Keys()[0] != "a" {
		t.Error("Keys() exposes internal slice")
	}
	cfg := b.Config()
	cfg.Name = "mutated"
	if b.Config().Name != "roads" {
		t.Error("Config() exposes internal tree")
	}
}

func TestBase_DisposeOnce(t *testing.T) {
	var b Base
	calls := 0
	release := func() error {
		calls++
		return errors.New("close failed")
	}
	if err := b.DisposeOnce(release); err == nil {
		t.Error("first dispose should report release error")
	}
	if err := b.DisposeOnce(release); err != nil {
		t.Errorf("second dispose = %v, want nil", err)
	}
	if calls != 1 || !b.Disposed() {
		t.Errorf("calls=%d disposed=%v", calls, b.Disposed())
	}
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"sort"
	"sync"
	"sync/atomic"
)

// generation is one immutable key index of an instance.
type generation struct {
	keys    []string
	handles map[string]Handle
}

// Base carries the identity and key index shared by every backend.
// Backends embed it, call Init once, call Publish after each discovery
// pass, and wrap their release logic in DisposeOnce.
type Base struct {
	id   string
	kind string
	cfg  *ConfigTree

	gen atomic.Pointer[generation]

	disposeOnce sync.Once
	disposeErr  error
	disposed    atomic.Bool
}

// Init sets the immutable identity. The key index starts empty.
func (b *Base) Init(id, kind string, cfg *ConfigTree) {
	b.id = id
	b.kind = kind
	b.cfg = cfg.Clone()
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Kind() string { return b.kind }

// Config returns a copy of the configuration.
func (b *Base) Config() *ConfigTree { return b.cfg.Clone() }

// Keys returns the sorted keys of the current generation.
func (b *Base) Keys() []string {
	g := b.gen.Load()
	if g == nil {
		return []string{}
	}
	return append([]string(nil), g.keys...)
}

// Get resolves a key in the current generation.
func (b *Base) Get(key string) (Handle, bool) {
	g := b.gen.Load()
	if g == nil {
		return Handle{}, false
	}
	h, ok := g.handles[key]
	return h, ok
}

// Publish atomically replaces the key index.
func (b *Base) Publish(handles []Handle) {
	g := &generation{
		keys:    make([]string, 0, len(handles)),
		handles: make(map[string]Handle, len(handles)),
	}
	for _, h := range handles {
		if _, dup := g.handles[h.Key]; dup {
			continue
		}
		g.handles[h.Key] = h
		g.keys = append(g.keys, h.Key)
	}
	sort.Strings(g.keys)
	b.gen.Store(g)
}

// DisposeOnce runs release the first time it is called and returns nil on
// every later call.
func (b *Base) DisposeOnce(release func() error) error {
	ran := false
	b.disposeOnce.Do(func() {
		ran = true
		b.disposed.Store(true)
		if release != nil {
			b.disposeErr = release()
		}
	})
	if !ran {
		return nil
	}
	return b.disposeErr
}

// Disposed reports whether DisposeOnce has run.
func (b *Base) Disposed() bool {
	return b.disposed.Load()
}

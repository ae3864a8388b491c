// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
)

// Kind is the backend kind name.
const Kind = "memory"

// LayerSpec declares one in-memory layer.
type LayerSpec struct {
	Key    string    `json:"key" jsonschema:"description=Layer key"`
	Title  string    `json:"title,omitempty"`
	Type   string    `json:"type,omitempty" jsonschema:"enum=vector,enum=raster,enum=observations"`
	SRID   int       `json:"srid,omitempty"`
	Extent []float64 `json:"extent,omitempty" jsonschema:"minItems=4,maxItems=4"`
}

// Params are the choice parameters of a memory layer source.
type Params struct {
	Layers []LayerSpec `json:"layers,omitempty" jsonschema:"description=Layers served by the source"`
}

// compile-time check
var _ layer.Source = (*Source)(nil)

// Source is an in-memory layer source. Layers added with Put become
// visible on the next Reload.
type Source struct {
	provider.Base

	mu     sync.RWMutex
	layers map[string]LayerSpec
}

// NewFactory returns the memory layer factory.
func NewFactory() layer.Factory {
	desc := provider.NewDescriptor(Kind, "In-memory layers", &Params{}).
		WithDescription("Layers declared inline in the configuration; used for tests and fixtures.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind), func(_ context.Context, id string, cfg *provider.ConfigTree) (layer.Source, error) {
		return New(id, cfg)
	})
}

// New creates an in-memory source from cfg.
func New(id string, cfg *provider.ConfigTree) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	s := &Source{layers: make(map[string]LayerSpec, len(p.Layers))}
	s.Init(id, Kind, cfg)
	for _, l := range p.Layers {
		if l.Key == "" {
			return nil, fmt.Errorf("memory layer without key")
		}
		s.layers[l.Key] = l
	}
	s.publish()
	return s, nil
}

// Put adds or replaces a layer.
func (s *Source) Put(spec LayerSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[spec.Key] = spec
}

// Delete drops a layer.
func (s *Source) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers, key)
}

func (s *Source) publish() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := make([]provider.Handle, 0, len(s.layers))
	for _, l := range s.layers {
		typ := l.Type
		if typ == "" {
			typ = layer.TypeVector
		}
		handles = append(handles, provider.Handle{
			Key:      l.Key,
			Type:     typ,
			Title:    l.Title,
			Location: "memory://" + s.ID() + "/" + l.Key,
			SRID:     l.SRID,
			Extent:   layer.EnvelopeOf(l.Extent),
		})
	}
	s.Publish(handles)
}

// Extent returns the declared extent of key.
func (s *Source) Extent(key string) (provider.Envelope, bool) {
	return layer.HandleExtent(s, key)
}

// Reload republishes the current layer set.
func (s *Source) Reload(_ context.Context) error {
	s.publish()
	return nil
}

// RemoveAll forgets every layer; the source owns all of its data.
func (s *Source) RemoveAll(_ context.Context) error {
	s.mu.Lock()
	clear(s.layers)
	s.mu.Unlock()
	s.publish()
	return nil
}

// Dispose is a no-op beyond marking the source disposed.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(nil)
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/style"
)

// Kind is the backend kind name.
const Kind = "memory"

// StyleSpec declares one in-memory style.
type StyleSpec struct {
	Key    string `json:"key"`
	Title  string `json:"title,omitempty"`
	Format string `json:"format,omitempty" jsonschema:"enum=sld,enum=mapbox"`
	Body   string `json:"body"`
}

// Params are the choice parameters of a memory style source.
type Params struct {
	Styles []StyleSpec `json:"styles,omitempty"`
}

// compile-time check
var _ style.Source = (*Source)(nil)

// Source is an in-memory style repository. Styles added with Put become
// visible on the next Reload.
type Source struct {
	provider.Base

	mu     sync.RWMutex
	styles map[string]StyleSpec
}

// NewFactory returns the memory style factory.
func NewFactory() style.Factory {
	desc := provider.NewDescriptor(Kind, "In-memory styles", &Params{})
	return provider.NewFactory(desc, provider.HintMatcher(Kind), func(_ context.Context, id string, cfg *provider.ConfigTree) (style.Source, error) {
		return New(id, cfg)
	})
}

// New creates an in-memory style source from cfg.
func New(id string, cfg *provider.ConfigTree) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	s := &Source{styles: make(map[string]StyleSpec, len(p.Styles))}
	s.Init(id, Kind, cfg)
	for _, st := range p.Styles {
		if st.Key == "" {
			return nil, fmt.Errorf("memory style without key")
		}
		s.styles[st.Key] = st
	}
	s.publish()
	return s, nil
}

// Put adds or replaces a style.
func (s *Source) Put(spec StyleSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.styles[spec.Key] = spec
}

func (s *Source) publish() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := make([]provider.Handle, 0, len(s.styles))
	for _, st := range s.styles {
		format := st.Format
		if format == "" {
			format = style.FormatOfBody([]byte(st.Body))
		}
		handles = append(handles, provider.Handle{
			Key:      st.Key,
			Type:     format,
			Title:    st.Title,
			Location: "memory://" + s.ID() + "/" + st.Key,
		})
	}
	s.Publish(handles)
}

// Body returns the style document of key.
func (s *Source) Body(_ context.Context, key string) ([]byte, error) {
	if _, ok := s.Get(key); !ok {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.styles[key]
	if !ok {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	return []byte(st.Body), nil
}

// Reload republishes the current style set.
func (s *Source) Reload(_ context.Context) error {
	s.publish()
	return nil
}

// RemoveAll forgets every style.
func (s *Source) RemoveAll(_ context.Context) error {
	s.mu.Lock()
	clear(s.styles)
	s.mu.Unlock()
	s.publish()
	return nil
}

// Dispose marks the source disposed.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(nil)
}

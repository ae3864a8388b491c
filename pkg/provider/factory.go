// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"strings"
)

// Factory knows how to recognise and construct one backend kind.
type Factory[P Instance] interface {
	// Kind is the stable name of the backend kind.
	Kind() string
	// Matches reports whether a configuration with this hint belongs to
	// the factory. It must be pure.
	Matches(hint Hint) bool
	// ParameterSchema describes the choice parameters Build accepts.
	ParameterSchema() *Descriptor
	// Build constructs a live instance. On error it returns no instance
	// and holds no resources.
	Build(ctx context.Context, id string, cfg *ConfigTree) (P, error)
}

// BuildFunc constructs an instance from a configuration.
type BuildFunc[P Instance] func(ctx context.Context, id string, cfg *ConfigTree) (P, error)

// Matcher is a capability-matching predicate.
type Matcher func(hint Hint) bool

// HintMatcher matches any of the given hints, ignoring case.
func HintMatcher(hints ...string) Matcher {
	set := make(map[string]struct{}, len(hints))
	for _, h := range hints {
		set[strings.ToLower(h)] = struct{}{}
	}
	return func(hint Hint) bool {
		_, ok := set[strings.ToLower(string(hint))]
		return ok
	}
}

// FactoryInfo is the administrative view of a registered factory.
type FactoryInfo struct {
	Kind       string      `json:"kind"`
	Descriptor *Descriptor `json:"descriptor"`
}

type funcFactory[P Instance] struct {
	kind  string
	desc  *Descriptor
	match Matcher
	build BuildFunc[P]
}

// NewFactory assembles a Factory from its parts.
func NewFactory[P Instance](desc *Descriptor, match Matcher, build BuildFunc[P]) Factory[P] {
	return &funcFactory[P]{kind: desc.Kind, desc: desc, match: match, build: build}
}

func (f *funcFactory[P]) Kind() string                 { return f.kind }
func (f *funcFactory[P]) Matches(hint Hint) bool       { return f.match(hint) }
func (f *funcFactory[P]) ParameterSchema() *Descriptor { return f.desc }

func (f *funcFactory[P]) Build(ctx context.Context, id string, cfg *ConfigTree) (P, error) {
	return f.build(ctx, id, cfg)
}

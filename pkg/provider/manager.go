// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import "context"

// Manager is the category-agnostic administrative view of a Registry.
type Manager interface {
	Category() string
	Factories() []FactoryInfo
	Infos() []Info
	Describe(id string) (Info, bool)
	Lookup(id, key string) (Handle, bool)
	Failures() []Failure
	Ping(ctx context.Context, id string) error

	Create(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (Info, error)
	Update(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (Info, error)
	Remove(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Reload(ctx context.Context, id string) error
	LoadAll(ctx context.Context, decls []Declaration) error
	DisposeAll(ctx context.Context) error
}

type admin[P Instance] struct {
	*Registry[P]
}

// Admin returns the Manager view of r.
func (r *Registry[P]) Admin() Manager {
	return admin[P]{r}
}

func (a admin[P]) Create(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (Info, error) {
	if _, err := a.Registry.Create(ctx, id, hint, cfg); err != nil {
		return Info{}, err
	}
	return a.described(id)
}

func (a admin[P]) Update(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (Info, error) {
	if _, err := a.Registry.Update(ctx, id, hint, cfg); err != nil {
		return Info{}, err
	}
	return a.described(id)
}

// described reads back id after a successful mutation. A concurrent
// Remove may already have dropped it.
func (a admin[P]) described(id string) (Info, error) {
	info, ok := a.Describe(id)
	if !ok {
		return Info{}, notFound(a.category, id)
	}
	return info, nil
}

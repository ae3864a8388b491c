// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/leseb/ogc-gw/pkg/observability/logging"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/storage"
)

// ErrUnknownCategory is returned for a category no registry serves.
var ErrUnknownCategory = errors.New("unknown category")

// Providers is the administrative service over every category registry.
// Mutations that succeed on a registry are persisted to the record store
// so that Restore can rebuild them after a restart.
type Providers struct {
	managers map[string]provider.Manager
	records  storage.Store
	logger   *logging.Logger
}

// NewProviders creates a Providers service. A nil logger discards output.
func NewProviders(records storage.Store, logger *logging.Logger, managers ...provider.Manager) *Providers {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Providers{
		managers: make(map[string]provider.Manager, len(managers)),
		records:  records,
		logger:   logger,
	}
	for _, m := range managers {
		s.managers[m.Category()] = m
	}
	return s
}

// Categories lists the served categories in order.
func (s *Providers) Categories() []string {
	out := make([]string, 0, len(s.managers))
	for c := range s.managers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Manager returns the registry of category.
func (s *Providers) Manager(category string) (provider.Manager, error) {
	m, ok := s.managers[category]
	if !ok {
		return nil, fmt.Errorf("%q: %w", category, ErrUnknownCategory)
	}
	return m, nil
}

// Create registers a provider and persists it. When the record cannot be
// written the new instance is removed again.
func (s *Providers) Create(ctx context.Context, category, id string, hint provider.Hint, cfg *provider.ConfigTree) (provider.Info, error) {
	m, err := s.Manager(category)
	if err != nil {
		return provider.Info{}, err
	}
	info, err := m.Create(ctx, id, hint, cfg)
	if err != nil {
		return provider.Info{}, err
	}
	if err := s.save(ctx, info); err != nil {
		if rbErr := m.Remove(ctx, id); rbErr != nil {
			s.logger.Error("rollback after failed persist", "category", category, "id", id, "error", rbErr)
		}
		return provider.Info{}, err
	}
	s.logger.Info("provider created", "category", category, "id", id, "kind", info.Kind)
	return info, nil
}

// Update replaces the configuration of a provider and persists it. When
// the record cannot be written the previous configuration is rebuilt.
func (s *Providers) Update(ctx context.Context, category, id string, hint provider.Hint, cfg *provider.ConfigTree) (provider.Info, error) {
	m, err := s.Manager(category)
	if err != nil {
		return provider.Info{}, err
	}
	prev, _ := m.Describe(id)
	info, err := m.Update(ctx, id, hint, cfg)
	if err != nil {
		return provider.Info{}, err
	}
	if err := s.save(ctx, info); err != nil {
		if _, rbErr := m.Update(ctx, id, prev.Hint, prev.Config); rbErr != nil {
			s.logger.Error("rollback after failed persist", "category", category, "id", id, "error", rbErr)
		}
		return provider.Info{}, err
	}
	s.logger.Info("provider updated", "category", category, "id", id, "kind", info.Kind)
	return info, nil
}

// Remove deletes the record of a provider and then unregisters it. A
// record that cannot be deleted leaves the provider registered, so it is
// never restored after a removal was reported. With purge the provider's
// owned backing data is dropped as well.
func (s *Providers) Remove(ctx context.Context, category, id string, purge bool) error {
	m, err := s.Manager(category)
	if err != nil {
		return err
	}
	if _, ok := m.Describe(id); !ok {
		return fmt.Errorf("%s %q: %w", category, id, provider.ErrNotFound)
	}
	if err := s.records.Delete(ctx, category, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if purge {
		err = m.Purge(ctx, id)
	} else {
		err = m.Remove(ctx, id)
	}
	if err != nil {
		return err
	}
	s.logger.Info("provider removed", "category", category, "id", id, "purge", purge)
	return nil
}

// Restart rebuilds a provider from its retained configuration.
func (s *Providers) Restart(ctx context.Context, category, id string) error {
	m, err := s.Manager(category)
	if err != nil {
		return err
	}
	return m.Restart(ctx, id)
}

// Reload refreshes the key index of a provider.
func (s *Providers) Reload(ctx context.Context, category, id string) error {
	m, err := s.Manager(category)
	if err != nil {
		return err
	}
	return m.Reload(ctx, id)
}

// Ping probes the backing store of a provider.
func (s *Providers) Ping(ctx context.Context, category, id string) error {
	m, err := s.Manager(category)
	if err != nil {
		return err
	}
	return m.Ping(ctx, id)
}

// Factories describes the backends registered for category.
func (s *Providers) Factories(category string) ([]provider.FactoryInfo, error) {
	m, err := s.Manager(category)
	if err != nil {
		return nil, err
	}
	return m.Factories(), nil
}

// List describes the live providers of category.
func (s *Providers) List(category string) ([]provider.Info, error) {
	m, err := s.Manager(category)
	if err != nil {
		return nil, err
	}
	return m.Infos(), nil
}

// Describe returns one live provider.
func (s *Providers) Describe(category, id string) (provider.Info, error) {
	m, err := s.Manager(category)
	if err != nil {
		return provider.Info{}, err
	}
	info, ok := m.Describe(id)
	if !ok {
		return provider.Info{}, fmt.Errorf("%s %q: %w", category, id, provider.ErrNotFound)
	}
	return info, nil
}

// Lookup resolves key inside provider id.
func (s *Providers) Lookup(category, id, key string) (provider.Handle, error) {
	m, err := s.Manager(category)
	if err != nil {
		return provider.Handle{}, err
	}
	h, ok := m.Lookup(id, key)
	if !ok {
		return provider.Handle{}, fmt.Errorf("%s %q key %q: %w", category, id, key, provider.ErrNotFound)
	}
	return h, nil
}

// Failures lists the declarations of category that could not be built.
func (s *Providers) Failures(category string) ([]provider.Failure, error) {
	m, err := s.Manager(category)
	if err != nil {
		return nil, err
	}
	return m.Failures(), nil
}

// Restore loads the persisted records of every category together with the
// declarations from configuration. A persisted record wins over a declared
// provider with the same id. Failing providers are recorded by their
// registry and reported in the joined error.
func (s *Providers) Restore(ctx context.Context, declared map[string][]provider.Declaration) error {
	for c := range declared {
		if _, ok := s.managers[c]; !ok {
			return fmt.Errorf("declarations for %q: %w", c, ErrUnknownCategory)
		}
	}

	var errs []error
	for _, category := range s.Categories() {
		recs, err := s.records.List(ctx, category)
		if err != nil {
			return fmt.Errorf("list %s records: %w", category, err)
		}

		seen := make(map[string]bool, len(recs))
		decls := make([]provider.Declaration, 0, len(recs)+len(declared[category]))
		for _, rec := range recs {
			seen[rec.ID] = true
			decls = append(decls, rec.Declaration())
		}
		for _, d := range declared[category] {
			if seen[d.ID] {
				s.logger.Debug("declared provider shadowed by record", "category", category, "id", d.ID)
				continue
			}
			decls = append(decls, d)
		}

		if err := s.managers[category].LoadAll(ctx, decls); err != nil {
			errs = append(errs, err)
		}
		s.logger.Info("providers restored", "category", category,
			"records", len(recs), "declared", len(declared[category]))
	}
	return errors.Join(errs...)
}

// Shutdown disposes every registry and closes the record store.
func (s *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, category := range s.Categories() {
		if err := s.managers[category].DisposeAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.records.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close records: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Providers) save(ctx context.Context, info provider.Info) error {
	rec := &storage.Record{
		Category: info.Category,
		ID:       info.ID,
		Kind:     info.Kind,
		Hint:     info.Hint,
		Config:   info.Config,
	}
	if err := s.records.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist %s/%s: %w", info.Category, info.ID, err)
	}
	return nil
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leseb/ogc-gw/pkg/storage"
)

// compile-time check
var _ storage.Store = (*Store)(nil)

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]*storage.Record
}

// New creates a new in-memory store
func New() *Store {
	return &Store{records: make(map[string]map[string]*storage.Record)}
}

// Save inserts or replaces a record
func (s *Store) Save(ctx context.Context, rec *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	storage.Stamp(rec)
	byID, ok := s.records[rec.Category]
	if !ok {
		byID = make(map[string]*storage.Record)
		s.records[rec.Category] = byID
	}
	byID[rec.ID] = clone(rec)
	return nil
}

// Get retrieves a record
func (s *Store) Get(ctx context.Context, category, id string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[category][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", category, id, storage.ErrNotFound)
	}
	return clone(rec), nil
}

// Delete deletes a record
func (s *Store) Delete(ctx context.Context, category, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[category], id)
	return nil
}

// List returns the records of a category
func (s *Store) List(ctx context.Context, category string) ([]*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Record, 0, len(s.records[category]))
	for _, rec := range s.records[category] {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func clone(rec *storage.Record) *storage.Record {
	c := *rec
	c.Config = rec.Config.Clone()
	return &c
}

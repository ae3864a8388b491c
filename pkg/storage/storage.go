// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists provider registrations so that a restarted
// gateway can rebuild the same registries.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leseb/ogc-gw/pkg/provider"
)

// ErrNotFound is returned by Get for an unknown (category, id) pair.
var ErrNotFound = errors.New("record not found")

// Record is the durable form of one registered provider.
type Record struct {
	Category  string               `json:"category"`
	ID        string               `json:"id"`
	Kind      string               `json:"kind"`
	Hint      provider.Hint        `json:"hint,omitempty"`
	Config    *provider.ConfigTree `json:"config"`
	Revision  string               `json:"revision"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Store is implemented by every record backend.
type Store interface {
	// Save inserts or replaces the record and stamps a new revision.
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, category, id string) (*Record, error)
	// Delete is a no-op for unknown records.
	Delete(ctx context.Context, category, id string) error
	// List returns the records of one category ordered by id.
	List(ctx context.Context, category string) ([]*Record, error)
	Close() error
}

// Stamp assigns a fresh revision and modification time.
func Stamp(rec *Record) {
	rec.Revision = uuid.NewString()
	rec.UpdatedAt = time.Now().UTC()
}

// Declaration converts the record back into a registry declaration.
func (r *Record) Declaration() provider.Declaration {
	return provider.Declaration{ID: r.ID, Hint: r.Hint, Config: r.Config.Clone()}
}

// MarshalConfig encodes a configuration tree for a text column.
func MarshalConfig(cfg *provider.ConfigTree) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}

// UnmarshalConfig decodes a configuration tree read from a text column.
func UnmarshalConfig(data string) (*provider.ConfigTree, error) {
	var cfg provider.ConfigTree
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import "context"

// Envelope is an axis-aligned bounding box in the handle's SRID.
type Envelope struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Handle resolves one data key of a provider. Protocol workers use it to
// locate the backing data; the registry treats it as opaque.
type Handle struct {
	Key        string            `json:"key"`
	Type       string            `json:"type"`
	Title      string            `json:"title,omitempty"`
	Location   string            `json:"location,omitempty"`
	SRID       int               `json:"srid,omitempty"`
	Extent     *Envelope         `json:"extent,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Instance is a live data source bound to one identifier and configuration.
type Instance interface {
	ID() string
	Kind() string
	// Config returns the configuration the instance was built from.
	Config() *ConfigTree

	// Keys lists the data keys currently served, as discovered from the
	// backing store.
	Keys() []string
	// Get resolves a key without touching the backing store connection.
	Get(key string) (Handle, bool)

	// Reload re-derives the key index from the backing store. Concurrent
	// readers see either the previous or the new generation.
	Reload(ctx context.Context) error
	// RemoveAll drops data the instance exclusively owns in its backing
	// store. It is a no-op for shared backing stores.
	RemoveAll(ctx context.Context) error
	// Dispose releases connections and handles. Repeated calls return nil.
	Dispose(ctx context.Context) error
}

// Pinger is implemented by instances that can probe their backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package layer defines the layer category: data sources serving vector
// feature collections and raster coverages to the OGC protocol workers.
package layer

import (
	"github.com/leseb/ogc-gw/pkg/provider"
)

// Category is the registry category name for layers.
const Category = "layer"

// Handle types reported by layer backends.
const (
	TypeVector       = "vector"
	TypeRaster       = "raster"
	TypeObservations = "observations"
)

// Source is a live layer data source.
type Source interface {
	provider.Instance
	// Extent returns the bounding box of key when the backend knows it.
	Extent(key string) (provider.Envelope, bool)
}

// Factory builds layer sources.
type Factory = provider.Factory[Source]

// Registry holds the live layer sources.
type Registry = provider.Registry[Source]

// NewRegistry creates an empty layer registry.
func NewRegistry(opts ...provider.Option) *Registry {
	return provider.NewRegistry[Source](Category, opts...)
}

// HandleExtent returns the extent recorded in the handle of key.
func HandleExtent(inst provider.Instance, key string) (provider.Envelope, bool) {
	h, ok := inst.Get(key)
	if !ok || h.Extent == nil {
		return provider.Envelope{}, false
	}
	return *h.Extent, true
}

// EnvelopeOf converts a [minx, miny, maxx, maxy] slice.
func EnvelopeOf(bbox []float64) *provider.Envelope {
	if len(bbox) != 4 {
		return nil
	}
	return &provider.Envelope{MinX: bbox[0], MinY: bbox[1], MaxX: bbox[2], MaxY: bbox[3]}
}

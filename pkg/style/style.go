// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package style defines the style category: repositories of SLD and
// Mapbox GL style documents rendered by the map workers.
package style

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"

	"github.com/leseb/ogc-gw/pkg/provider"
)

// Category is the registry category name for styles.
const Category = "style"

// Style formats.
const (
	FormatSLD     = "sld"
	FormatMapbox  = "mapbox"
	FormatUnknown = "unknown"
)

// ErrStyleNotFound is returned by Body for an unknown key.
var ErrStyleNotFound = errors.New("style not found")

// Source is a live style repository.
type Source interface {
	provider.Instance
	// Body returns the style document of key.
	Body(ctx context.Context, key string) ([]byte, error)
}

// Factory builds style sources.
type Factory = provider.Factory[Source]

// Registry holds the live style sources.
type Registry = provider.Registry[Source]

// NewRegistry creates an empty style registry.
func NewRegistry(opts ...provider.Option) *Registry {
	return provider.NewRegistry[Source](Category, opts...)
}

// FormatOfName infers the format from a file extension.
func FormatOfName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".sld", ".xml":
		return FormatSLD
	case ".json":
		return FormatMapbox
	default:
		return FormatUnknown
	}
}

// FormatOfBody infers the format from the document itself.
func FormatOfBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	switch {
	case bytes.HasPrefix(trimmed, []byte("<")):
		return FormatSLD
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatMapbox
	default:
		return FormatUnknown
	}
}

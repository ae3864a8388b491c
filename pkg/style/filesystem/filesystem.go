// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package filesystem serves SLD and Mapbox GL documents from a directory.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/style"
)

// Kind is the backend kind name.
const Kind = "sld-directory"

const defaultPattern = "**/*.{sld,json}"

// Params are the choice parameters of a style directory.
type Params struct {
	Path    string `json:"path" jsonschema:"description=Directory holding the style documents"`
	Pattern string `json:"pattern,omitempty" jsonschema:"description=Glob relative to path"`
	Create  bool   `json:"create,omitempty" jsonschema:"description=Create the directory when it does not exist"`
	Owned   bool   `json:"owned,omitempty" jsonschema:"description=Delete the directory on purge"`
}

// compile-time check
var _ style.Source = (*Source)(nil)

// Source serves the documents below one directory.
//
// Layout:
//
//	<path>/<dir>/<name>.sld   -> key "<dir>.<name>"
//	<path>/<name>.json        -> key "<name>"
type Source struct {
	provider.Base
	params Params
	fsys   fs.FS
}

// NewFactory returns the style directory factory.
func NewFactory() style.Factory {
	desc := provider.NewDescriptor(Kind, "Style directory", &Params{}).
		WithDescription("SLD and Mapbox GL documents matching a glob under a local directory.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind, "sld"), func(ctx context.Context, id string, cfg *provider.ConfigTree) (style.Source, error) {
		return New(ctx, id, cfg)
	})
}

// New scans the configured directory and returns the source.
func New(ctx context.Context, id string, cfg *provider.ConfigTree) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, errors.New("sld-directory: path is required")
	}
	if p.Pattern == "" {
		p.Pattern = defaultPattern
	}
	if !doublestar.ValidatePattern(p.Pattern) {
		return nil, fmt.Errorf("sld-directory: invalid pattern %q", p.Pattern)
	}

	info, err := os.Stat(p.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && p.Create:
		if err := os.MkdirAll(p.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", p.Path, err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", p.Path, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%s is not a directory", p.Path)
	}

	s := &Source{params: p, fsys: os.DirFS(p.Path)}
	s.Init(id, Kind, cfg)
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rescans the directory.
func (s *Source) Reload(_ context.Context) error {
	matches, err := doublestar.Glob(s.fsys, s.params.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("glob %s: %w", s.params.Pattern, err)
	}
	handles := make([]provider.Handle, 0, len(matches))
	for _, rel := range matches {
		stem := strings.TrimSuffix(rel, path.Ext(rel))
		handles = append(handles, provider.Handle{
			Key:      strings.ReplaceAll(stem, "/", "."),
			Type:     style.FormatOfName(rel),
			Title:    path.Base(stem),
			Location: rel,
		})
	}
	s.Publish(handles)
	return nil
}

// Body reads the document of key from disk.
func (s *Source) Body(_ context.Context, key string) ([]byte, error) {
	h, ok := s.Get(key)
	if !ok {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	data, err := fs.ReadFile(s.fsys, h.Location)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Join(s.params.Path, h.Location), err)
	}
	return data, nil
}

// Ping checks that the directory is still reachable.
func (s *Source) Ping(_ context.Context) error {
	_, err := fs.Stat(s.fsys, ".")
	return err
}

// RemoveAll deletes the directory when the source owns it.
func (s *Source) RemoveAll(_ context.Context) error {
	if !s.params.Owned {
		return nil
	}
	if err := os.RemoveAll(s.params.Path); err != nil {
		return fmt.Errorf("remove %s: %w", s.params.Path, err)
	}
	return nil
}

// Dispose releases nothing; files are opened per read.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(nil)
}

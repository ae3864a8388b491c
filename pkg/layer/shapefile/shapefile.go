// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package shapefile serves every ESRI shapefile found under a directory
// as one vector layer.
package shapefile

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
)

// Kind is the backend kind name.
const Kind = "shapefile"

const (
	defaultPattern = "**/*.shp"
	headerSize     = 100
	fileCode       = 9994
)

// Params are the choice parameters of a shapefile directory.
type Params struct {
	Path    string `json:"path" jsonschema:"description=Directory holding the shapefiles"`
	Pattern string `json:"pattern,omitempty" jsonschema:"description=Glob relative to path,default=**/*.shp"`
	SRID    int    `json:"srid,omitempty" jsonschema:"description=SRID used when a layer has no .prj sidecar"`
	Create  bool   `json:"create,omitempty" jsonschema:"description=Create the directory when it does not exist"`
	Owned   bool   `json:"owned,omitempty" jsonschema:"description=Delete the directory on purge"`
}

// compile-time check
var _ layer.Source = (*Source)(nil)

// Source serves the shapefiles below one directory.
//
// Layout:
//
//	<path>/<dir>/<name>.shp  -> key "<dir>.<name>"
type Source struct {
	provider.Base
	params Params
	fsys   fs.FS
}

// NewFactory returns the shapefile factory.
func NewFactory() layer.Factory {
	desc := provider.NewDescriptor(Kind, "Shapefile directory", &Params{}).
		WithDescription("Every shapefile matching a glob under a local directory becomes a vector layer.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind, "file"), func(ctx context.Context, id string, cfg *provider.ConfigTree) (layer.Source, error) {
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
		return nil, errors.New("shapefile: path is required")
	}
	if p.Pattern == "" {
		p.Pattern = defaultPattern
	}
	if !doublestar.ValidatePattern(p.Pattern) {
		return nil, fmt.Errorf("shapefile: invalid pattern %q", p.Pattern)
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
func (s *Source) Reload(ctx context.Context) error {
	matches, err := doublestar.Glob(s.fsys, s.params.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("glob %s: %w", s.params.Pattern, err)
	}

	handles := make([]provider.Handle, 0, len(matches))
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !strings.EqualFold(path.Ext(rel), ".shp") {
			continue
		}
		h, err := s.describe(rel)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		handles = append(handles, h)
	}
	s.Publish(handles)
	return nil
}

func (s *Source) describe(rel string) (provider.Handle, error) {
	hdr, err := readHeader(s.fsys, rel)
	if err != nil {
		return provider.Handle{}, err
	}
	stem := strings.TrimSuffix(rel, path.Ext(rel))
	h := provider.Handle{
		Key:      strings.ReplaceAll(stem, "/", "."),
		Type:     layer.TypeVector,
		Title:    path.Base(stem),
		Location: "file://" + path.Join(s.params.Path, rel),
		SRID:     s.params.SRID,
		Attributes: map[string]string{
			"shape_type": strconv.Itoa(int(hdr.shapeType)),
		},
	}
	if !hdr.empty() {
		h.Extent = &provider.Envelope{MinX: hdr.bbox[0], MinY: hdr.bbox[1], MaxX: hdr.bbox[2], MaxY: hdr.bbox[3]}
	}
	if _, err := fs.Stat(s.fsys, stem+".prj"); err == nil {
		h.Attributes["prj"] = path.Base(stem) + ".prj"
	}
	return h, nil
}

type header struct {
	shapeType int32
	bbox      [4]float64
}

// empty reports a null-shape file, whose bbox is all zeros or NaN.
func (h header) empty() bool {
	for _, v := range h.bbox {
		if v != 0 && !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// readHeader decodes the fixed 100-byte main file header.
func readHeader(fsys fs.FS, name string) (header, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return header{}, err
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return header{}, fmt.Errorf("short header: %w", err)
	}
	if code := binary.BigEndian.Uint32(buf[0:4]); code != fileCode {
		return header{}, fmt.Errorf("not a shapefile (file code %d)", code)
	}
	var h header
	h.shapeType = int32(binary.LittleEndian.Uint32(buf[32:36]))
	for i := range h.bbox {
		h.bbox[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[36+8*i:]))
	}
	return h, nil
}

// Extent returns the header bounding box of key.
func (s *Source) Extent(key string) (provider.Envelope, bool) {
	return layer.HandleExtent(s, key)
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

// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package coverage serves raster coverages stored as GeoTIFFs in an S3
// bucket (or MinIO).
package coverage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
)

// Kind is the backend kind name.
const Kind = "coverage-s3"

const (
	defaultPattern  = "*.{tif,tiff,TIF,TIFF}"
	deleteBatchSize = 1000
)

// Params are the choice parameters of an S3 coverage store.
type Params struct {
	Bucket   string `json:"bucket" jsonschema:"description=Bucket name"`
	Prefix   string `json:"prefix,omitempty" jsonschema:"description=Key prefix of the coverage store"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" jsonschema:"description=Custom endpoint for MinIO compatibility"`
	Pattern  string `json:"pattern,omitempty" jsonschema:"description=Glob selecting standalone rasters"`
	SRID     int    `json:"srid,omitempty"`
	Owned    bool   `json:"owned,omitempty" jsonschema:"description=Delete every object under the prefix on purge"`
}

// API is the subset of the S3 client used by the store.
type API interface {
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// compile-time check
var _ layer.Source = (*Source)(nil)

// Source indexes one coverage store.
//
// Object layout:
//
//	<prefix><mosaic>/...      -> key "<mosaic>" (granules of an image mosaic)
//	<prefix><name>.tif        -> key "<name>"   (single GeoTIFF)
type Source struct {
	provider.Base
	params Params
	client API
}

// NewFactory returns the S3 coverage factory.
func NewFactory() layer.Factory {
	desc := provider.NewDescriptor(Kind, "S3 coverage store", &Params{}).
		WithDescription("GeoTIFFs and image mosaics under an S3 prefix.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind, "s3"), func(ctx context.Context, id string, cfg *provider.ConfigTree) (layer.Source, error) {
		return New(ctx, id, cfg)
	})
}

// New creates an S3 client from the default AWS configuration chain and
// indexes the store.
func New(ctx context.Context, id string, cfg *provider.ConfigTree) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}

	optFns := []func(*awsconfig.LoadOptions) error{}
	if p.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(p.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if p.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(p.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewWithClient(ctx, id, cfg, s3.NewFromConfig(awsCfg, s3Opts...))
}

// NewWithClient indexes the store through an existing client.
func NewWithClient(ctx context.Context, id string, cfg *provider.ConfigTree, client API) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	if p.Bucket == "" {
		return nil, errors.New("coverage: bucket is required")
	}
	if p.Prefix != "" && !strings.HasSuffix(p.Prefix, "/") {
		p.Prefix += "/"
	}
	if p.Owned && p.Prefix == "" {
		return nil, errors.New("coverage: an owned store needs a prefix")
	}
	if p.Pattern == "" {
		p.Pattern = defaultPattern
	}
	if !doublestar.ValidatePattern(p.Pattern) {
		return nil, fmt.Errorf("coverage: invalid pattern %q", p.Pattern)
	}

	s := &Source{params: p, client: client}
	s.Init(id, Kind, cfg)
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload lists the top level of the prefix.
func (s *Source) Reload(ctx context.Context) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.params.Bucket),
		Prefix:    aws.String(s.params.Prefix),
		Delimiter: aws.String("/"),
	})

	var handles []provider.Handle
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			dir := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.params.Prefix), "/")
			if dir == "" {
				continue
			}
			handles = append(handles, s.handle(dir, aws.ToString(cp.Prefix), "mosaic"))
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.params.Prefix)
			if ok, _ := doublestar.Match(s.params.Pattern, name); !ok {
				continue
			}
			key := strings.TrimSuffix(name, path.Ext(name))
			handles = append(handles, s.handle(key, aws.ToString(obj.Key), "single"))
		}
	}
	s.Publish(handles)
	return nil
}

func (s *Source) handle(key, objectKey, layout string) provider.Handle {
	return provider.Handle{
		Key:      key,
		Type:     layer.TypeRaster,
		Title:    key,
		Location: "s3://" + s.params.Bucket + "/" + objectKey,
		SRID:     s.params.SRID,
		Attributes: map[string]string{
			"layout": layout,
		},
	}
}

// Extent is read from the raster headers by the coverage workers.
func (s *Source) Extent(key string) (provider.Envelope, bool) {
	return layer.HandleExtent(s, key)
}

// Ping checks that the bucket is reachable.
func (s *Source) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.params.Bucket)})
	return err
}

// RemoveAll deletes every object under the prefix when the store owns it.
func (s *Source) RemoveAll(ctx context.Context) error {
	if !s.params.Owned {
		return nil
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.params.Bucket),
		Prefix: aws.String(s.params.Prefix),
	})

	var batch []s3types.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.params.Bucket),
			Delete: &s3types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = nil
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
		return nil
	}

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			batch = append(batch, s3types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == deleteBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// Dispose is a no-op for the S3 client.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(nil)
}

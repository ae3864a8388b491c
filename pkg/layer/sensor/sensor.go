// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensor serves observation collections of a MongoDB sensor
// archive, one layer per collection.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
)

// Kind is the backend kind name.
const Kind = "sensor-archive"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPattern        = "*"
	appName               = "ogc-gw-sensor-archive"
)

// Params are the choice parameters of a sensor archive.
type Params struct {
	URI            string `json:"uri" jsonschema:"description=MongoDB connection string"`
	Database       string `json:"database" jsonschema:"description=Database holding the observation collections"`
	Collections    string `json:"collections,omitempty" jsonschema:"description=Glob selecting observation collections"`
	ConnectTimeout string `json:"connect_timeout,omitempty" jsonschema:"description=Go duration"`
	MaxPoolSize    int    `json:"max_pool_size,omitempty" jsonschema:"minimum=1"`
	Owned          bool   `json:"owned,omitempty" jsonschema:"description=Drop the database on purge"`
}

// Database is the subset of *mongo.Database used by the archive.
type Database interface {
	ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptions) ([]string, error)
	Drop(ctx context.Context) error
}

// compile-time checks
var (
	_ layer.Source = (*Source)(nil)
	_ Database     = (*mongo.Database)(nil)
)

// Source indexes the collections of one database.
type Source struct {
	provider.Base
	params Params
	db     Database
	ping   func(ctx context.Context) error
	close  func(ctx context.Context) error
}

// NewFactory returns the sensor archive factory.
func NewFactory() layer.Factory {
	desc := provider.NewDescriptor(Kind, "MongoDB sensor archive", &Params{}).
		WithDescription("Observation collections of a MongoDB database.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind, "sos"), func(ctx context.Context, id string, cfg *provider.ConfigTree) (layer.Source, error) {
		return New(ctx, id, cfg)
	})
}

// New connects to MongoDB and indexes the archive.
func New(ctx context.Context, id string, cfg *provider.ConfigTree) (*Source, error) {
	p, err := decode(cfg)
	if err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, errors.New("sensor: uri is required")
	}

	connectTimeout := defaultConnectTimeout
	if p.ConnectTimeout != "" {
		d, err := time.ParseDuration(p.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("sensor: connect_timeout: %w", err)
		}
		connectTimeout = d
	}

	clientOpts := options.Client().ApplyURI(p.URI).
		SetAppName(appName).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout).
		SetRetryReads(true)
	if p.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(uint64(p.MaxPoolSize))
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	ping := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	s, err := NewWithDatabase(ctx, id, cfg, client.Database(p.Database), ping, client.Disconnect)
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// NewWithDatabase indexes an archive through an existing database handle.
// closeFn releases the underlying client and may be nil.
func NewWithDatabase(ctx context.Context, id string, cfg *provider.ConfigTree, db Database, ping, closeFn func(context.Context) error) (*Source, error) {
	p, err := decode(cfg)
	if err != nil {
		return nil, err
	}
	s := &Source{params: p, db: db, ping: ping, close: closeFn}
	s.Init(id, Kind, cfg)
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func decode(cfg *provider.ConfigTree) (Params, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return p, err
	}
	if p.Database == "" {
		return p, errors.New("sensor: database is required")
	}
	if p.Collections == "" {
		p.Collections = defaultPattern
	}
	if !doublestar.ValidatePattern(p.Collections) {
		return p, fmt.Errorf("sensor: invalid collections pattern %q", p.Collections)
	}
	return p, nil
}

// Reload lists the collections of the database.
func (s *Source) Reload(ctx context.Context) error {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	handles := make([]provider.Handle, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "system.") {
			continue
		}
		if ok, _ := doublestar.Match(s.params.Collections, name); !ok {
			continue
		}
		handles = append(handles, provider.Handle{
			Key:      name,
			Type:     layer.TypeObservations,
			Title:    name,
			Location: "mongodb:///" + s.params.Database + "/" + name,
			SRID:     4326,
		})
	}
	s.Publish(handles)
	return nil
}

// Extent is not tracked for observation collections.
func (s *Source) Extent(key string) (provider.Envelope, bool) {
	return layer.HandleExtent(s, key)
}

// Ping checks the primary.
func (s *Source) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// RemoveAll drops the database when the archive owns it.
func (s *Source) RemoveAll(ctx context.Context) error {
	if !s.params.Owned {
		return nil
	}
	if err := s.db.Drop(ctx); err != nil {
		return fmt.Errorf("drop database %s: %w", s.params.Database, err)
	}
	return nil
}

// Dispose disconnects the client.
func (s *Source) Dispose(ctx context.Context) error {
	return s.DisposeOnce(func() error {
		if s.close == nil {
			return nil
		}
		return s.close(ctx)
	})
}

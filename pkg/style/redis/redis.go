// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package redis serves style documents stored in a Redis hash, one field
// per style.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/style"
)

// Kind is the backend kind name.
const Kind = "style-redis"

const defaultHash = "ogcgw:styles"

// Params are the choice parameters of a Redis style repository.
type Params struct {
	URL   string `json:"url" jsonschema:"description=Redis URL such as redis://host:6379/0"`
	Hash  string `json:"hash,omitempty" jsonschema:"description=Hash key holding the styles"`
	Owned bool   `json:"owned,omitempty" jsonschema:"description=Delete the hash on purge"`
}

// compile-time check
var _ style.Source = (*Source)(nil)

// Source indexes the fields of one hash.
type Source struct {
	provider.Base
	params Params
	client *redis.Client
}

// NewFactory returns the Redis style factory.
func NewFactory() style.Factory {
	desc := provider.NewDescriptor(Kind, "Redis style repository", &Params{}).
		WithDescription("Style documents stored as the fields of a Redis hash.")
	return provider.NewFactory(desc, provider.HintMatcher(Kind, "redis"), func(ctx context.Context, id string, cfg *provider.ConfigTree) (style.Source, error) {
		return New(ctx, id, cfg)
	})
}

// New connects to Redis and indexes the hash.
func New(ctx context.Context, id string, cfg *provider.ConfigTree) (*Source, error) {
	var p Params
	if err := cfg.Choice.Decode(&p); err != nil {
		return nil, err
	}
	if p.URL == "" {
		return nil, errors.New("style-redis: url is required")
	}
	if p.Hash == "" {
		p.Hash = defaultHash
	}
	opts, err := redis.ParseURL(p.URL)
	if err != nil {
		return nil, fmt.Errorf("style-redis: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := &Source{params: p, client: client}
	s.Init(id, Kind, cfg)
	if err := s.Reload(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// Reload lists the hash fields.
func (s *Source) Reload(ctx context.Context) error {
	fields, err := s.client.HKeys(ctx, s.params.Hash).Result()
	if err != nil {
		return fmt.Errorf("hkeys %s: %w", s.params.Hash, err)
	}
	handles := make([]provider.Handle, 0, len(fields))
	for _, f := range fields {
		handles = append(handles, provider.Handle{
			Key:      f,
			Type:     style.FormatOfName(f),
			Title:    f,
			Location: "redis:" + s.params.Hash + "#" + f,
		})
	}
	s.Publish(handles)
	return nil
}

// Body fetches the document of key.
func (s *Source) Body(ctx context.Context, key string) ([]byte, error) {
	if _, ok := s.Get(key); !ok {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	body, err := s.client.HGet(ctx, s.params.Hash, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("style %s: %w", key, style.ErrStyleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s: %w", key, err)
	}
	return body, nil
}

// Ping checks the connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RemoveAll deletes the hash when the repository owns it.
func (s *Source) RemoveAll(ctx context.Context) error {
	if !s.params.Owned {
		return nil
	}
	if err := s.client.Del(ctx, s.params.Hash).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.params.Hash, err)
	}
	return nil
}

// Dispose closes the client.
func (s *Source) Dispose(_ context.Context) error {
	return s.DisposeOnce(s.client.Close)
}

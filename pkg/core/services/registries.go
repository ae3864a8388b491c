// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/layer/coverage"
	"github.com/leseb/ogc-gw/pkg/layer/geopackage"
	layermemory "github.com/leseb/ogc-gw/pkg/layer/memory"
	"github.com/leseb/ogc-gw/pkg/layer/postgis"
	"github.com/leseb/ogc-gw/pkg/layer/sensor"
	"github.com/leseb/ogc-gw/pkg/layer/shapefile"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/style"
	"github.com/leseb/ogc-gw/pkg/style/filesystem"
	stylememory "github.com/leseb/ogc-gw/pkg/style/memory"
	"github.com/leseb/ogc-gw/pkg/style/redis"
	"github.com/leseb/ogc-gw/pkg/style/sqlstyle"
)

// NewLayerRegistry returns a layer registry with every built-in backend
// registered.
func NewLayerRegistry(opts ...provider.Option) *layer.Registry {
	r := layer.NewRegistry(opts...)
	r.MustRegisterFactory(layermemory.NewFactory())
	r.MustRegisterFactory(shapefile.NewFactory())
	r.MustRegisterFactory(geopackage.NewFactory())
	r.MustRegisterFactory(postgis.NewFactory())
	r.MustRegisterFactory(coverage.NewFactory())
	r.MustRegisterFactory(sensor.NewFactory())
	return r
}

// NewStyleRegistry returns a style registry with every built-in backend
// registered.
func NewStyleRegistry(opts ...provider.Option) *style.Registry {
	r := style.NewRegistry(opts...)
	r.MustRegisterFactory(stylememory.NewFactory())
	r.MustRegisterFactory(filesystem.NewFactory())
	r.MustRegisterFactory(redis.NewFactory())
	r.MustRegisterFactory(sqlstyle.NewPostgresFactory())
	r.MustRegisterFactory(sqlstyle.NewMySQLFactory())
	return r
}

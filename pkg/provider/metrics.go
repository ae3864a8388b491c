// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registry collectors. One Metrics value is shared by
// every category registry of a process; a nil *Metrics records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	instances       *prometheus.GaugeVec
	cleanupFailures *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogcgw_provider_operations_total",
				Help: "Provider lifecycle operations by category, operation and outcome",
			},
			[]string{"category", "op", "outcome"},
		),
		instances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ogcgw_provider_instances",
				Help: "Live provider instances by category",
			},
			[]string{"category"},
		),
		cleanupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogcgw_provider_cleanup_failures_total",
				Help: "Backing-store cleanup failures after index removal",
			},
			[]string{"category", "op"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ogcgw_provider_build_duration_seconds",
				Help:    "Duration of backend construction",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category", "kind"},
		),
	}
	reg.MustRegister(m.operations, m.instances, m.cleanupFailures, m.buildDuration)
	return m
}

func (m *Metrics) op(category, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(category, op, outcome).Inc()
}

func (m *Metrics) setInstances(category string, n int) {
	if m == nil {
		return
	}
	m.instances.WithLabelValues(category).Set(float64(n))
}

func (m *Metrics) cleanupFailed(category, op string) {
	if m == nil {
		return
	}
	m.cleanupFailures.WithLabelValues(category, op).Inc()
}

func (m *Metrics) observeBuild(category, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.buildDuration.WithLabelValues(category, kind).Observe(d.Seconds())
}

// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics holds the factory's Prometheus collectors.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "psfactory"

	// ResultOK and ResultError label outcomes.
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing,
// so callers that don't care about metrics can pass nil.
type Metrics struct {
	FramesWritten     prometheus.Counter
	RectsWritten      prometheus.Counter
	ReorderDepthMax   prometheus.Gauge
	Conversions       *prometheus.CounterVec
	ConversionSeconds prometheus.Histogram
	Builds            *prometheus.CounterVec

	reorderMax atomic.Int64
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_written_total",
			Help:      "Frames written to codec streams",
		}),
		RectsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rects_written_total",
			Help:      "Rectangles written to codec streams, excluding markers",
		}),
		ReorderDepthMax: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reorder_depth_max",
			Help:      "Largest number of frames held back waiting for an earlier frame",
		}),
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Finished conversions by result",
		}, []string{"result"}),
		ConversionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_seconds",
			Help:      "Wall time of a conversion",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), //nolint:gomnd // 1s to ~1h.
		}),
		Builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Archive builds by result",
		}, []string{"result"}),
	}
}

// FrameWritten records one written frame with n rectangles.
func (m *Metrics) FrameWritten(n int) {
	if m == nil {
		return
	}

	m.FramesWritten.Inc()
	m.RectsWritten.Add(float64(n))
}

// ReorderDepth records depth if it's the largest seen so far.
func (m *Metrics) ReorderDepth(depth int) {
	if m == nil {
		return
	}

	for {
		cur := m.reorderMax.Load()
		if int64(depth) <= cur {
			return
		}

		if m.reorderMax.CompareAndSwap(cur, int64(depth)) {
			m.ReorderDepthMax.Set(float64(depth))

			return
		}
	}
}

// ConversionDone records the outcome of a conversion.
func (m *Metrics) ConversionDone(err error, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.Conversions.WithLabelValues(result(err)).Inc()
	m.ConversionSeconds.Observe(elapsed.Seconds())
}

// BuildDone records the outcome of an archive build.
func (m *Metrics) BuildDone(err error) {
	if m == nil {
		return
	}

	m.Builds.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}

	return ResultOK
}

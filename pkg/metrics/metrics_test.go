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

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.FrameWritten(3)
	m.FrameWritten(0)
	require.InDelta(t, 2, testutil.ToFloat64(m.FramesWritten), 0)
	require.InDelta(t, 3, testutil.ToFloat64(m.RectsWritten), 0)

	m.ReorderDepth(4)
	m.ReorderDepth(2)
	require.InDelta(t, 4, testutil.ToFloat64(m.ReorderDepthMax), 0)

	m.ConversionDone(nil, time.Second)
	m.ConversionDone(errors.New("mock"), time.Second)
	m.ConversionDone(nil, time.Second)
	require.InDelta(t, 2, testutil.ToFloat64(m.Conversions.WithLabelValues(ResultOK)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Conversions.WithLabelValues(ResultError)), 0)

	m.BuildDone(errors.New("mock"))
	require.InDelta(t, 1, testutil.ToFloat64(m.Builds.WithLabelValues(ResultError)), 0)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.FrameWritten(1)
		m.ReorderDepth(1)
		m.ConversionDone(nil, 0)
		m.BuildDone(nil)
	})
}

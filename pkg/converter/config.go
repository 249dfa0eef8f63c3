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

package converter

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/TurbineOne/pixel-shell/pkg/rect"
)

// Config configures the conversion pipeline.
type Config struct { //nolint:govet // Don't care about alignment.
	Workers          int           `yaml:"workers" env:"CONVERTER_WORKERS" doc:"Extraction workers. 0 means one per physical core"`
	QueueSize        int           `yaml:"queueSize" env:"CONVERTER_QUEUE_SIZE" doc:"Bound shared by the frame, result and recycle queues"`
	ReorderLimit     int           `yaml:"reorderLimit" env:"CONVERTER_REORDER_LIMIT" doc:"Out-of-order frames held before the reader is stalled. 0 means queueSize"`
	Threshold        uint8         `yaml:"threshold" env:"CONVERTER_THRESHOLD" doc:"Luminance at or above which a pixel is active"`
	ProgressInterval time.Duration `yaml:"progressInterval" env:"CONVERTER_PROGRESS_INTERVAL" doc:"Longest gap between progress updates"`
	ProgressFrames   int           `yaml:"progressFrames" env:"CONVERTER_PROGRESS_FRAMES" doc:"Frames between progress updates"`
	WriteBufferSize  int           `yaml:"writeBufferSize" env:"CONVERTER_WRITE_BUFFER_SIZE" doc:"Output buffer size in bytes"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		Workers:          0,
		QueueSize:        64,
		ReorderLimit:     0,
		Threshold:        rect.DefaultThreshold,
		ProgressInterval: 100 * time.Millisecond,
		ProgressFrames:   30,
		WriteBufferSize:  4 << 20,
	}
}

// workerCount resolves the configured number of workers.
func (c *Config) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}

	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}

	return runtime.NumCPU()
}

func (c *Config) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}

	return ConfigDefault().QueueSize
}

func (c *Config) reorderLimit() int {
	if c.ReorderLimit > 0 {
		return c.ReorderLimit
	}

	return c.queueSize()
}

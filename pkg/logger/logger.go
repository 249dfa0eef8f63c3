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

// Package logger builds the zerolog logger shared by every package.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

func init() {
	// Users of our logging will always adhere to these global settings:
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldInteger = false
	zerolog.DurationFieldUnit = time.Second
}

// Config configures the logger.
type Config struct { //nolint:govet // Don't care about alignment.
	Level   string `yaml:"level" env:"LOG_LEVEL" doc:"Log level. One of: trace, debug, info, warn, error, fatal, panic"`
	Console bool   `yaml:"console" env:"LOG_CONSOLE" doc:"Logging includes terminal colors"`
	Caller  bool   `yaml:"caller" env:"LOG_CALLER" doc:"Log the file and line of each message"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		Level:   zerolog.InfoLevel.String(),
		Console: false,
		Caller:  true,
	}
}

// termOut returns a ConsoleWriter if we detect a tty or console config,
// otherwise returns out for JSON lines.
// Logs go to stderr so stdout stays free for command output.
func termOut(c *Config, out *os.File) io.Writer {
	if c.Console || isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000000", // Omitting timezone on console.
		}
	}

	return out
}

// New returns a new logger writing to stderr as described by the config.
// Panics in case of an invalid configuration.
func New(c *Config) zerolog.Logger {
	return NewWriter(c, termOut(c, os.Stderr))
}

// NewWriter returns a new logger writing to w as described by the config.
// Panics in case of an invalid configuration.
func NewWriter(c *Config, w io.Writer) zerolog.Logger {
	zLevel, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		panic(err.Error())
	}

	ctx := zerolog.New(w).Level(zLevel).With().Timestamp()
	if c.Caller {
		ctx = ctx.Caller()
	}

	return ctx.Logger()
}

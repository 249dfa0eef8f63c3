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

// Package ffmpeg runs the external decoder and prober processes.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	lArgs     = "args"
	lBin      = "bin"
	lFile     = "file"
	lFPS      = "fps"
	lFrames   = "frames"
	lPID      = "pid"
	lSquelch  = "squelch count"
	lExitCode = "exitCode"
)

var log zerolog.Logger //nolint:gochecknoglobals // Package logger, set by New.

// Config configures the decoder and prober.
type Config struct { //nolint:govet // Don't care about alignment.
	FFmpegBin   string        `yaml:"ffmpegBin" env:"FFMPEG_BIN" doc:"Path or name of the ffmpeg binary"`
	FFprobeBin  string        `yaml:"ffprobeBin" env:"FFPROBE_BIN" doc:"Path or name of the ffprobe binary"`
	HWAccel     string        `yaml:"hwAccel" env:"FFMPEG_HWACCEL" doc:"Value passed to -hwaccel when GPU decoding is requested"`
	LogLevel    string        `yaml:"logLevel" env:"FFMPEG_LOG_LEVEL" doc:"ffmpeg -loglevel. One of: quiet, panic, fatal, error, warning, info, verbose, debug"`
	StopTimeout time.Duration `yaml:"stopTimeout" env:"FFMPEG_STOP_TIMEOUT" doc:"Grace period between interrupt and kill"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		FFmpegBin:   "ffmpeg",
		FFprobeBin:  "ffprobe",
		HWAccel:     "cuda",
		LogLevel:    "error",
		StopTimeout: time.Second,
	}
}

// commandFunc creates the command for a process. Replaced in tests.
type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// FFmpeg starts decoder and prober processes.
type FFmpeg struct {
	config  *Config
	command commandFunc
}

// New returns an FFmpeg using the binaries named in config.
func New(config *Config, logger *zerolog.Logger) *FFmpeg {
	log = logger.With().Str("pkg", "ffmpeg").Logger()

	return &FFmpeg{
		config:  config,
		command: exec.CommandContext,
	}
}

// newCmd creates a command that is interrupted, then killed, when ctx ends.
func (f *FFmpeg) newCmd(ctx context.Context, bin string, args ...string) *exec.Cmd {
	cmd := f.command(ctx, bin, args...)

	// Killing outright can leave ffmpeg's output half written; give it a
	// chance to exit on its own first.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = f.config.StopTimeout

	return cmd
}

// FrameJob describes the grayscale frames to decode from a video.
type FrameJob struct {
	Input  string
	Width  int
	Height int
	GPU    bool
}

// Filter returns the video filter chain that produces high-contrast
// grayscale frames at the job's size.
func (j FrameJob) Filter() string {
	return "scale=" + strconv.Itoa(j.Width) + ":" + strconv.Itoa(j.Height) +
		",format=gray,gblur=sigma=1.0:steps=1,eq=contrast=1000:saturation=0"
}

// FrameArgs returns the ffmpeg arguments that write raw gray frames to stdout.
func (f *FFmpeg) FrameArgs(j FrameJob) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", f.config.LogLevel}

	if j.GPU && f.config.HWAccel != "" {
		args = append(args, "-hwaccel", f.config.HWAccel)
	}

	return append(args,
		"-i", j.Input,
		"-vf", j.Filter(),
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-",
	)
}

// ExitError wraps a failed process exit with the tail of its stderr.
type ExitError struct {
	Bin    string
	Err    error
	Stderr []string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Bin, e.Err)
	if len(e.Stderr) > 0 {
		msg += ": " + e.Stderr[len(e.Stderr)-1]
	}

	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

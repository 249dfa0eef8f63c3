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

package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknown is returned when the prober has no answer for a file.
var ErrUnknown = errors.New("unknown")

// ParseError is returned when prober output can't be parsed.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("can't parse %s %q", e.Field, e.Value)
}

// probe runs ffprobe for a single entry and returns its trimmed value.
func (f *FFmpeg) probe(ctx context.Context, path string, args ...string) (string, error) {
	args = append([]string{"-v", "error"}, args...)
	args = append(args, "-of", "default=noprint_wrappers=1:nokey=1", path)

	cmd := f.newCmd(ctx, f.config.FFprobeBin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &ExitError{
			Bin:    f.config.FFprobeBin,
			Err:    err,
			Stderr: strings.Split(strings.TrimSpace(stderr.String()), "\n"),
		}
	}

	// Multi-stream files can list several values; the first one wins.
	out := strings.TrimSpace(stdout.String())
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = strings.TrimSpace(out[:i])
	}

	return out, nil
}

// FPS returns the frame rate of the first video stream, rounded to the
// nearest integer.
func (f *FFmpeg) FPS(ctx context.Context, path string) (uint16, error) {
	out, err := f.probe(ctx, path,
		"-select_streams", "v:0", "-show_entries", "stream=r_frame_rate")
	if err != nil {
		return 0, err
	}

	fps, err := parseRate(out)
	if err != nil {
		return 0, err
	}

	log.Debug().Str(lFile, path).Uint16(lFPS, fps).Msg("probed frame rate")

	return fps, nil
}

// FrameCount returns the number of frames in the first video stream.
// Containers that don't record it are estimated from duration and rate.
func (f *FFmpeg) FrameCount(ctx context.Context, path string) (uint64, error) {
	out, err := f.probe(ctx, path,
		"-select_streams", "v:0", "-show_entries", "stream=nb_frames")
	if err != nil {
		return 0, err
	}

	if n, err := strconv.ParseUint(out, 10, 64); err == nil {
		log.Debug().Str(lFile, path).Uint64(lFrames, n).Msg("probed frame count")

		return n, nil
	}

	out, err = f.probe(ctx, path, "-show_entries", "format=duration")
	if err != nil {
		return 0, err
	}

	duration, err := parseDuration(out)
	if err != nil {
		return 0, err
	}

	fps, err := f.FPS(ctx, path)
	if err != nil {
		return 0, err
	}

	n := uint64(math.Round(duration * float64(fps)))

	log.Debug().Str(lFile, path).Uint64(lFrames, n).Msg("estimated frame count")

	return n, nil
}

// parseRate parses "num/den" or a plain number into a rounded rate.
func parseRate(s string) (uint16, error) {
	if s == "" || s == "N/A" {
		return 0, ErrUnknown
	}

	var rate float64

	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)

		if err1 != nil || err2 != nil {
			return 0, &ParseError{Field: "frame rate", Value: s}
		}

		if d == 0 {
			return 0, ErrUnknown
		}

		rate = n / d
	} else {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &ParseError{Field: "frame rate", Value: s}
		}

		rate = r
	}

	rate = math.Round(rate)
	if rate <= 0 || rate > math.MaxUint16 || math.IsNaN(rate) {
		return 0, &ParseError{Field: "frame rate", Value: s}
	}

	return uint16(rate), nil
}

func parseDuration(s string) (float64, error) {
	if s == "" || s == "N/A" {
		return 0, ErrUnknown
	}

	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, &ParseError{Field: "duration", Value: s}
	}

	return d, nil
}

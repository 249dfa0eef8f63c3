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

package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/TurbineOne/pixel-shell/pkg/codec"
	"github.com/TurbineOne/pixel-shell/pkg/mimer"
)

// Size assumed for codec streams that aren't inside an archive.
const (
	RawWidth  = 1920
	RawHeight = 1080
)

// Report describes a file that's either an archive or a bare codec stream.
type Report struct {
	Path      string
	Archive   bool
	Footer    Footer // Zero unless Archive.
	HostType  string // Sniffed media type of the host, if Archive.
	AudioType string
	Width     uint16
	Height    uint16
	Stats     codec.Stats
}

// Inspect reads path and summarizes it. Files without a footer are read as
// codec streams of RawWidth x RawHeight.
func Inspect(path string) (*Report, error) {
	a, err := Open(path)

	switch {
	case err == nil:
		defer a.Close()

		return inspectArchive(path, a)
	case errors.Is(err, ErrNotArchive), errors.Is(err, ErrUnpatched):
		return inspectRaw(path)
	default:
		return nil, err
	}
}

func inspectArchive(path string, a *Archive) (*Report, error) {
	r := &Report{
		Path:    path,
		Archive: true,
		Footer:  a.Footer,
		Width:   a.Width,
		Height:  a.Height,
	}

	r.HostType, _ = mimer.GetContentTypeFromReader(a.Host())
	r.AudioType, _ = mimer.GetContentTypeFromReader(a.Audio())

	stats, err := codec.ReadStats(a.Video())
	if err != nil {
		return nil, fmt.Errorf("reading video payload failed: %w", err)
	}

	r.Stats = stats

	return r, nil
}

func inspectRaw(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already has the path.
	}
	defer f.Close() //nolint:errcheck // Read only.

	stats, err := codec.ReadStats(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Report{
		Path:   path,
		Width:  RawWidth,
		Height: RawHeight,
		Stats:  stats,
	}, nil
}

// Video is a codec stream and the frame size to render it at.
type Video struct {
	io.Reader
	io.Closer
	Width  uint16
	Height uint16
}

// OpenVideo opens the codec stream in path, whether it's an archive or a
// bare stream.
func OpenVideo(path string) (*Video, error) {
	a, err := Open(path)
	if err == nil {
		return &Video{Reader: a.Video(), Closer: a, Width: a.Width, Height: a.Height}, nil
	}

	if !errors.Is(err, ErrNotArchive) && !errors.Is(err, ErrUnpatched) {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already has the path.
	}

	return &Video{Reader: f, Closer: f, Width: RawWidth, Height: RawHeight}, nil
}

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

// Package rect turns thresholded grayscale frames into run-length
// rectangles and back.
package rect

import (
	"fmt"
)

// DefaultThreshold is the luminance at or above which a pixel is active.
const DefaultThreshold uint8 = 127

// noRun marks a scratch column that has no open rectangle.
const noRun = -1

// Rect is a horizontal run of active pixels, possibly extended downward
// over identical runs in following rows.
type Rect struct {
	X uint16
	Y uint16
	W uint16
	H uint16
}

// Marker terminates a frame in a codec stream. Runs always have a width
// of at least one, so a real rectangle never looks like a marker.
var Marker = Rect{} //nolint:gochecknoglobals // Sentinel.

// IsMarker reports whether r is the end-of-frame marker.
func (r Rect) IsMarker() bool {
	return r.W == 0 && r.H == 0
}

// FrameSizeError indicates a frame buffer that doesn't match its geometry.
type FrameSizeError struct {
	Got, Want int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("frame buffer is %d bytes, want %d", e.Got, e.Want)
}

// ScratchSizeError indicates a scratch array narrower than the frame.
type ScratchSizeError struct {
	Got, Want int
}

func (e *ScratchSizeError) Error() string {
	return fmt.Sprintf("scratch array has %d entries, want %d", e.Got, e.Want)
}

// NewScratch allocates a scratch array for frames of the given width.
func NewScratch(width int) []int32 {
	scratch := make([]int32, width)
	for i := range scratch {
		scratch[i] = noRun
	}

	return scratch
}

// ExtractFrame validates its arguments and then calls Extract.
func ExtractFrame(dst []Rect, frame []byte, width, height int, threshold uint8,
	scratch []int32,
) ([]Rect, error) {
	if want := width * height; len(frame) < want {
		return dst, &FrameSizeError{Got: len(frame), Want: want}
	}

	if len(scratch) < width {
		return dst, &ScratchSizeError{Got: len(scratch), Want: width}
	}

	return Extract(dst, frame, width, height, threshold, scratch), nil
}

// Extract appends the rectangles of one frame to dst and returns the
// extended slice. The frame is width*height bytes, row-major, one byte
// per pixel. Pixels >= threshold are active.
//
// scratch maps a column to the index (within the rectangles appended by
// this call) of the rectangle whose run starts there, and is reset on
// entry. It must hold at least width entries and is owned by the caller
// so it can be reused across frames.
//
// A run only extends the rectangle recorded at its own start column, and
// only when that rectangle ends on the previous row with the same x and
// width. Shifted or resized runs start a new rectangle. Callers depend
// on this exact fragmentation.
func Extract(dst []Rect, frame []byte, width, height int, threshold uint8,
	scratch []int32,
) []Rect {
	scratch = scratch[:width]
	for i := range scratch {
		scratch[i] = noRun
	}

	base := len(dst)

	for y := 0; y < height; y++ {
		row := frame[y*width : (y+1)*width]
		x := 0

		for x < width {
			if row[x] < threshold {
				scratch[x] = noRun
				x++

				continue
			}

			start := x
			for x < width && row[x] >= threshold {
				x++
			}

			runW := uint16(x - start)
			merged := false

			// Stale or foreign indices simply fail the checks below.
			if idx := int(scratch[start]); idx != noRun && idx >= 0 && base+idx < len(dst) {
				r := &dst[base+idx]
				if int(r.Y)+int(r.H) == y && int(r.X) == start && r.W == runW {
					r.H++
					merged = true
				}
			}

			if !merged {
				scratch[start] = int32(len(dst) - base)
				dst = append(dst, Rect{X: uint16(start), Y: uint16(y), W: runW, H: 1})
			}
		}
	}

	return dst
}

// Rasterize paints rects onto dst as 255, clipping anything outside the
// width x height frame. dst is not cleared first.
func Rasterize(dst []byte, width, height int, rects []Rect) {
	for _, r := range rects {
		if r.IsMarker() {
			continue
		}

		x0, y0 := int(r.X), int(r.Y)
		if x0 >= width || y0 >= height {
			continue
		}

		x1 := min(x0+int(r.W), width)
		y1 := min(y0+int(r.H), height)

		for y := y0; y < y1; y++ {
			row := dst[y*width : (y+1)*width]
			for x := x0; x < x1; x++ {
				row[x] = 255
			}
		}
	}
}

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

// Package codec reads and writes codec streams.
//
// A codec stream is:
//
//	fps    uint16
//	frames []frame
//
//	frame {
//	  rects  []rect   // 8 bytes each: x, y, w, h uint16
//	  marker rect     // w == 0 && h == 0
//	}
//
// All integers are little-endian. The stream carries no frame count;
// readers consume frames until EOF.
package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/TurbineOne/pixel-shell/pkg/rect"
)

const (
	// HeaderSize is the size of the fps header.
	HeaderSize = 2
	// RecordSize is the marshaled size of one rectangle.
	RecordSize = 8

	// DefaultFPS is assumed when the source frame rate is unknown.
	DefaultFPS = 30
)

// ErrTruncatedFrame is returned when the stream ends inside a frame.
// Frames read before it are intact.
var ErrTruncatedFrame = errors.New("codec stream ends inside a frame")

// PutRect marshals r into the first RecordSize bytes of b.
func PutRect(b []byte, r rect.Rect) {
	binary.LittleEndian.PutUint16(b[0:2], r.X)
	binary.LittleEndian.PutUint16(b[2:4], r.Y)
	binary.LittleEndian.PutUint16(b[4:6], r.W)
	binary.LittleEndian.PutUint16(b[6:8], r.H)
}

// Rect unmarshals a rectangle from the first RecordSize bytes of b.
func Rect(b []byte) rect.Rect {
	return rect.Rect{
		X: binary.LittleEndian.Uint16(b[0:2]),
		Y: binary.LittleEndian.Uint16(b[2:4]),
		W: binary.LittleEndian.Uint16(b[4:6]),
		H: binary.LittleEndian.Uint16(b[6:8]),
	}
}

// Writer writes a codec stream.
type Writer struct {
	out *bufio.Writer
	buf []byte

	Frames int
	Rects  int
}

// NewWriter writes the fps header to out and returns a Writer.
// Frames are buffered; call Flush when done.
func NewWriter(out io.Writer, fps uint16) (*Writer, error) {
	return newWriter(bufio.NewWriter(out), fps)
}

// NewWriterSize is like NewWriter with an explicit buffer size.
func NewWriterSize(out io.Writer, fps uint16, size int) (*Writer, error) {
	return newWriter(bufio.NewWriterSize(out, size), fps)
}

func newWriter(out *bufio.Writer, fps uint16) (*Writer, error) {
	w := &Writer{
		out: out,
		buf: make([]byte, RecordSize*64), //nolint:gomnd // Batch size.
	}

	binary.LittleEndian.PutUint16(w.buf[:HeaderSize], fps)

	if _, err := w.out.Write(w.buf[:HeaderSize]); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	return w, nil
}

// WriteFrame writes rects followed by the end-of-frame marker.
func (w *Writer) WriteFrame(rects []rect.Rect) error {
	n := 0

	for _, r := range rects {
		PutRect(w.buf[n:], r)
		n += RecordSize

		if n == len(w.buf) {
			if _, err := w.out.Write(w.buf[:n]); err != nil {
				return err
			}

			n = 0
		}
	}

	PutRect(w.buf[n:], rect.Marker)
	n += RecordSize

	if _, err := w.out.Write(w.buf[:n]); err != nil {
		return err
	}

	w.Frames++
	w.Rects += len(rects)

	return nil
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.out.Flush()
}

// Reader reads frames from a codec stream.
type Reader struct {
	in  *bufio.Reader
	buf [RecordSize]byte
	fps uint16
}

// NewReader reads the fps header and returns a Reader positioned at the
// first frame.
func NewReader(in io.Reader) (*Reader, error) {
	r := &Reader{in: bufio.NewReader(in)}

	if _, err := io.ReadFull(r.in, r.buf[:HeaderSize]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	r.fps = binary.LittleEndian.Uint16(r.buf[:HeaderSize])

	return r, nil
}

// FPS returns the frame rate from the stream header.
func (r *Reader) FPS() uint16 {
	return r.fps
}

// NextFrame appends the next frame's rectangles to dst[:0] and returns it.
// It returns io.EOF when the stream ends cleanly on a frame boundary and
// ErrTruncatedFrame when it ends inside a frame.
func (r *Reader) NextFrame(dst []rect.Rect) ([]rect.Rect, error) {
	dst = dst[:0]
	inFrame := false

	for {
		if _, err := io.ReadFull(r.in, r.buf[:]); err != nil {
			if errors.Is(err, io.EOF) && !inFrame {
				return dst, io.EOF
			}

			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return dst, ErrTruncatedFrame
			}

			return dst, err
		}

		re := Rect(r.buf[:])
		if re.IsMarker() {
			return dst, nil
		}

		inFrame = true
		dst = append(dst, re)
	}
}

// ReadAll reads every complete frame in a stream. A truncated final frame
// is dropped, not reported.
func ReadAll(in io.Reader) (uint16, [][]rect.Rect, error) {
	r, err := NewReader(in)
	if err != nil {
		return 0, nil, err
	}

	var frames [][]rect.Rect

	for {
		frame, err := r.NextFrame(nil)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrTruncatedFrame) {
				return r.fps, frames, nil
			}

			return r.fps, frames, err
		}

		frames = append(frames, frame)
	}
}

// Stats summarizes a codec stream.
type Stats struct {
	FPS       uint16
	Frames    int
	Rects     int
	MaxRects  int
	Truncated bool
}

// ReadStats scans a stream without keeping its frames.
func ReadStats(in io.Reader) (Stats, error) {
	r, err := NewReader(in)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{FPS: r.fps}

	var frame []rect.Rect

	for {
		frame, err = r.NextFrame(frame)
		if err != nil {
			if errors.Is(err, ErrTruncatedFrame) {
				s.Truncated = true

				return s, nil
			}

			if errors.Is(err, io.EOF) {
				return s, nil
			}

			return s, err
		}

		s.Frames++
		s.Rects += len(frame)
		s.MaxRects = max(s.MaxRects, len(frame))
	}
}

// SeekFrame skips n frames, leaving r positioned at frame n.
func (r *Reader) SeekFrame(n int) error {
	var scratch []rect.Rect

	for i := 0; i < n; i++ {
		var err error
		if scratch, err = r.NextFrame(scratch); err != nil {
			return fmt.Errorf("skip to frame %d: %w", n, err)
		}
	}

	return nil
}

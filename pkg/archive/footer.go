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

// Package archive appends payloads to a host executable and finds them again.
//
// An archive is laid out as
//
//	host | video | audio | footer
//
// where the fixed-size footer at the very end of the file records where the
// video and audio payloads start and how long they are.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FooterSize is the size of an encoded Footer.
const FooterSize = 44

// Magic identifies a footer. It's the last field, so the last 8 bytes of
// every archive.
var Magic = [8]byte{'P', 'S', '_', 'P', 'A', 'T', 'C', 'H'} //nolint:gochecknoglobals // Constant.

var (
	// ErrNotArchive is returned for files too small to hold a footer.
	ErrNotArchive = errors.New("file too small to be an archive")
	// ErrUnpatched is returned for files without a footer.
	ErrUnpatched = errors.New("no payload footer")
	// ErrCorruptFooter is returned for a footer whose ranges don't fit the file.
	ErrCorruptFooter = errors.New("corrupt payload footer")
)

// Footer locates the payloads of an archive.
type Footer struct {
	VideoOffset uint64
	VideoLen    uint64
	AudioOffset uint64
	AudioLen    uint64
	Width       uint16
	Height      uint16
}

// NewFooter returns the footer for payloads appended to a host of hostLen bytes.
func NewFooter(hostLen, videoLen, audioLen uint64, width, height uint16) Footer {
	return Footer{
		VideoOffset: hostLen,
		VideoLen:    videoLen,
		AudioOffset: hostLen + videoLen,
		AudioLen:    audioLen,
		Width:       width,
		Height:      height,
	}
}

// Marshal encodes f, little-endian with no padding, magic last.
func (f Footer) Marshal() []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(b[0:], f.VideoOffset)
	binary.LittleEndian.PutUint64(b[8:], f.VideoLen)
	binary.LittleEndian.PutUint64(b[16:], f.AudioOffset)
	binary.LittleEndian.PutUint64(b[24:], f.AudioLen)
	binary.LittleEndian.PutUint16(b[32:], f.Width)
	binary.LittleEndian.PutUint16(b[34:], f.Height)
	copy(b[36:], Magic[:])

	return b
}

// UnmarshalFooter decodes a footer from exactly FooterSize bytes.
func UnmarshalFooter(b []byte) (Footer, error) {
	if len(b) != FooterSize {
		return Footer{}, ErrNotArchive
	}

	if [8]byte(b[36:]) != Magic {
		return Footer{}, ErrUnpatched
	}

	return Footer{
		VideoOffset: binary.LittleEndian.Uint64(b[0:]),
		VideoLen:    binary.LittleEndian.Uint64(b[8:]),
		AudioOffset: binary.LittleEndian.Uint64(b[16:]),
		AudioLen:    binary.LittleEndian.Uint64(b[24:]),
		Width:       binary.LittleEndian.Uint16(b[32:]),
		Height:      binary.LittleEndian.Uint16(b[34:]),
	}, nil
}

// ReadFooter reads and checks the footer at the end of r, which is size bytes.
func ReadFooter(r io.ReaderAt, size int64) (Footer, error) {
	if size < FooterSize {
		return Footer{}, ErrNotArchive
	}

	b := make([]byte, FooterSize)
	if _, err := r.ReadAt(b, size-FooterSize); err != nil {
		return Footer{}, fmt.Errorf("reading footer failed: %w", err)
	}

	f, err := UnmarshalFooter(b)
	if err != nil {
		return Footer{}, err
	}

	if err := f.check(uint64(size - FooterSize)); err != nil {
		return Footer{}, err
	}

	return f, nil
}

// check makes sure both payloads end at or before limit.
func (f Footer) check(limit uint64) error {
	fits := func(offset, n uint64) bool {
		return offset <= limit && n <= limit-offset
	}

	if !fits(f.VideoOffset, f.VideoLen) {
		return fmt.Errorf("%w: video [%d, +%d) past %d", ErrCorruptFooter, f.VideoOffset, f.VideoLen, limit)
	}

	if !fits(f.AudioOffset, f.AudioLen) {
		return fmt.Errorf("%w: audio [%d, +%d) past %d", ErrCorruptFooter, f.AudioOffset, f.AudioLen, limit)
	}

	return nil
}

// HostLen returns the length of the host that precedes the payloads.
func (f Footer) HostLen() uint64 {
	return f.VideoOffset
}

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
	"fmt"
	"io"
	"os"
)

// Archive is an open archive file. Payloads are read on demand.
type Archive struct {
	Footer

	file *os.File
	size int64
}

// Open opens the archive at path and reads its footer.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already has the path.
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("stat %s failed: %w", path, err)
	}

	footer, err := ReadFooter(f, info.Size())
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Archive{Footer: footer, file: f, size: info.Size()}, nil
}

// Self opens the running executable as an archive.
func Self() (*Archive, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("finding executable failed: %w", err)
	}

	return Open(path)
}

// Size returns the size of the whole archive file.
func (a *Archive) Size() int64 {
	return a.size
}

// Host returns a reader over the host executable.
func (a *Archive) Host() *io.SectionReader {
	return io.NewSectionReader(a.file, 0, int64(a.HostLen()))
}

// Video returns a reader over the video payload, a codec stream.
func (a *Archive) Video() *io.SectionReader {
	return io.NewSectionReader(a.file, int64(a.VideoOffset), int64(a.VideoLen))
}

// Audio returns a reader over the audio payload.
func (a *Archive) Audio() *io.SectionReader {
	return io.NewSectionReader(a.file, int64(a.AudioOffset), int64(a.AudioLen))
}

// Close closes the underlying file.
func (a *Archive) Close() error {
	return a.file.Close() //nolint:wrapcheck // Don't care.
}

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

// Package mimer determines the media type of the payloads that go into an
// archive: host executables, audio tracks and the archives themselves.
package mimer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aofei/mimesniffer"
)

// Media types sniffed by this package.
const (
	MediaTypeELF   = "application/x-elf"
	MediaTypePE    = "application/vnd.microsoft.portable-executable"
	MediaTypeMachO = "application/x-mach-binary"
	MediaTypeOgg   = "audio/ogg"

	UnknownMediaType = "application/octet-stream"
)

// fingerprintSize is how much of a payload is used to sniff it.
const fingerprintSize = 512

// executableTypes includes names other sniffers use for the same formats.
var executableTypes = map[string]struct{}{ //nolint:gochecknoglobals // Static.
	MediaTypeELF:                         {},
	MediaTypePE:                          {},
	MediaTypeMachO:                       {},
	"application/x-executable":           {},
	"application/x-msdownload":           {},
	"application/x-dosexec":              {},
	"application/x-mach-o-executable":    {},
	"application/vnd.microsoft.portable": {},
}

var oggTypes = map[string]struct{}{ //nolint:gochecknoglobals // Static.
	MediaTypeOgg:      {},
	"application/ogg": {},
	"video/ogg":       {},
}

func isELFSignature(buffer []byte) bool {
	return bytes.HasPrefix(buffer, []byte("\x7fELF"))
}

// isPESignature returns true for a DOS stub. If the buffer reaches the PE
// header named by e_lfanew, that header must be there too.
func isPESignature(buffer []byte) bool {
	const lfanewOffset = 0x3c

	if !bytes.HasPrefix(buffer, []byte("MZ")) {
		return false
	}

	if len(buffer) < lfanewOffset+4 {
		return true
	}

	peOffset := int(binary.LittleEndian.Uint32(buffer[lfanewOffset:]))
	if peOffset < 0 || peOffset+4 > len(buffer) {
		return true
	}

	return bytes.Equal(buffer[peOffset:peOffset+4], []byte("PE\x00\x00"))
}

// isMachOSignature matches thin Mach-O binaries of either word size or
// byte order.
func isMachOSignature(buffer []byte) bool {
	if len(buffer) < 4 {
		return false
	}

	switch binary.BigEndian.Uint32(buffer) {
	case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe:
		return true
	default:
		return false
	}
}

func isOggSignature(buffer []byte) bool {
	return bytes.HasPrefix(buffer, []byte("OggS"))
}

// init registers this package's sniffers.
func init() {
	mimesniffer.Register(MediaTypeELF, isELFSignature)
	mimesniffer.Register(MediaTypePE, isPESignature)
	mimesniffer.Register(MediaTypeMachO, isMachOSignature)
	mimesniffer.Register(MediaTypeOgg, isOggSignature)
}

// GetContentTypeFromReader returns the content type of the data at the
// start of reader.
func GetContentTypeFromReader(reader io.Reader) (string, error) {
	// Only the first 512 bytes are used to sniff the content type.
	buffer := make([]byte, fingerprintSize)

	n, err := io.ReadFull(reader, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return UnknownMediaType, fmt.Errorf("mime check failed read: %w", err)
	}

	return mimesniffer.Sniff(buffer[:n]), nil
}

// GetContentType returns the content type of the file at sourcePath.
func GetContentType(sourcePath string) string {
	f, err := os.Open(sourcePath)
	if err != nil {
		return UnknownMediaType
	}

	defer func() {
		_ = f.Close()
	}()

	mimeType, _ := GetContentTypeFromReader(f)

	return mimeType
}

// IsExecutable returns true if mediaType names an executable format.
func IsExecutable(mediaType string) bool {
	_, ok := executableTypes[mediaType]

	return ok
}

// IsOgg returns true if mediaType names an Ogg container.
func IsOgg(mediaType string) bool {
	_, ok := oggTypes[mediaType]

	return ok
}

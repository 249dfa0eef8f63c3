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
	"context"
)

// bufPool recycles frame buffers between the writer and the reader.
// It starts full, so at most its capacity of frames are ever in flight.
type bufPool struct {
	c chan []byte
}

func newBufPool(count, size int) *bufPool {
	p := &bufPool{c: make(chan []byte, count)}

	for i := 0; i < count; i++ {
		p.c <- make([]byte, size)
	}

	return p
}

// get blocks until a buffer is free or ctx is done.
func (p *bufPool) get(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-p.c:
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// put returns a buffer. Buffers beyond capacity are dropped.
func (p *bufPool) put(buf []byte) {
	select {
	case p.c <- buf:
	default:
	}
}

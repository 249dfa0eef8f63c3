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
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TurbineOne/pixel-shell/pkg/codec"
	"github.com/TurbineOne/pixel-shell/pkg/metrics"
	"github.com/TurbineOne/pixel-shell/pkg/rect"
)

// ErrInvalidSize is returned for frame sizes a codec stream can't describe.
var ErrInvalidSize = errors.New("frame width and height must be in [1, 65535]")

// extractFunc matches rect.ExtractFrame.
type extractFunc func(dst []rect.Rect, frame []byte, width, height int, threshold uint8,
	scratch []int32) ([]rect.Rect, error)

// frame is a raw frame on its way to a worker.
type frame struct {
	id  uint64
	buf []byte
}

// result is an extracted frame on its way to the writer. buf travels along
// so the writer decides when it can be reused.
type result struct {
	id    uint64
	rects []rect.Rect
	buf   []byte
}

// Pipeline turns a stream of raw grayscale frames into a codec stream,
// extracting frames in parallel and writing them in input order.
type Pipeline struct {
	config  *Config
	width   int
	height  int
	metrics *metrics.Metrics
	extract extractFunc
}

// NewPipeline returns a Pipeline for frames of the given size.
// m may be nil.
func NewPipeline(config *Config, width, height int, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		config:  config,
		width:   width,
		height:  height,
		metrics: m,
		extract: rect.ExtractFrame,
	}
}

// Run reads frames from src until EOF or a short read, and writes them to
// dst, which is flushed on success. total is the expected frame count for
// progress updates, 0 if unknown. Returns the number of frames written.
// Reads from src don't watch ctx, so src must unblock once ctx is done.
func (p *Pipeline) Run(ctx context.Context, src io.Reader, dst *codec.Writer, total uint64,
	observer Observer,
) (uint64, error) {
	if p.width <= 0 || p.height <= 0 || p.width > math.MaxUint16 || p.height > math.MaxUint16 {
		return 0, ErrInvalidSize
	}

	size := p.config.queueSize()
	workers := p.config.workerCount()
	pool := newBufPool(size, p.width*p.height)
	raw := make(chan frame, size)
	processed := make(chan result, size)

	w := &writer{
		dst:      dst,
		pool:     pool,
		limit:    p.config.reorderLimit(),
		total:    total,
		observer: observer,
		metrics:  p.metrics,
		every:    uint64(max(p.config.ProgressFrames, 1)),
		interval: p.config.ProgressInterval,
		pending:  make(map[uint64]result, size),
	}

	log.Debug().Int(lWorkers, workers).Int(lQueueSize, size).Int(lReorderLimit, w.limit).
		Int(lWidth, p.width).Int(lHeight, p.height).Msg("pipeline starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.read(ctx, src, pool, raw)
	})

	g.Go(func() error {
		var wg errgroup.Group

		for i := 0; i < workers; i++ {
			wg.Go(func() error {
				return p.work(ctx, raw, processed)
			})
		}

		if err := wg.Wait(); err != nil {
			return err
		}

		close(processed)

		return nil
	})

	g.Go(func() error {
		return w.run(ctx, processed)
	})

	err := g.Wait()

	return w.next, err
}

// read fills free buffers with frames and hands them to the workers.
// raw is closed only when input ends cleanly.
func (p *Pipeline) read(ctx context.Context, src io.Reader, pool *bufPool, raw chan<- frame) error {
	for id := uint64(0); ; id++ {
		buf, err := pool.get(ctx)
		if err != nil {
			return err
		}

		if n, err := io.ReadFull(src, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if n > 0 {
					log.Debug().Uint64(lFrame, id).Int(lBytes, n).Msg("dropping partial frame")
				}

				close(raw)

				return nil
			}

			return fmt.Errorf("reading frame %d failed: %w", id, err)
		}

		select {
		case raw <- frame{id: id, buf: buf}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// work extracts rectangles from frames. Each worker owns its scratch.
func (p *Pipeline) work(ctx context.Context, raw <-chan frame, processed chan<- result) error {
	var scratch []int32

	for {
		var (
			f  frame
			ok bool
		)

		select {
		case f, ok = <-raw:
		case <-ctx.Done():
			return ctx.Err()
		}

		if !ok {
			return nil
		}

		if scratch == nil {
			scratch = rect.NewScratch(p.width)
		}

		rects, err := p.extract(nil, f.buf, p.width, p.height, p.config.Threshold, scratch)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.id, err)
		}

		select {
		case processed <- result{id: f.id, rects: rects, buf: f.buf}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writer puts results back in order and writes them out.
type writer struct {
	dst      *codec.Writer
	pool     *bufPool
	limit    int
	total    uint64
	observer Observer
	metrics  *metrics.Metrics
	every    uint64
	interval time.Duration

	pending map[uint64]result
	next    uint64

	start        time.Time
	lastProgress time.Time
	lastFrame    uint64
}

func (w *writer) run(ctx context.Context, processed <-chan result) error {
	w.start = time.Now()
	w.lastProgress = w.start

	for {
		var (
			r  result
			ok bool
		)

		select {
		case r, ok = <-processed:
		case <-ctx.Done():
			return ctx.Err()
		}

		if !ok {
			break
		}

		// Past the limit, an out-of-order frame keeps its buffer until it's
		// written. The pool drains and the reader stalls until the frame
		// everyone's waiting for shows up.
		if len(w.pending) < w.limit {
			w.pool.put(r.buf)
			r.buf = nil
		}

		w.pending[r.id] = r
		w.metrics.ReorderDepth(len(w.pending))

		if err := w.flush(); err != nil {
			return err
		}
	}

	if len(w.pending) > 0 {
		return fmt.Errorf("input ended with %d frames after missing frame %d", //nolint:goerr113 // Internal.
			len(w.pending), w.next)
	}

	if err := w.dst.Flush(); err != nil {
		return fmt.Errorf("flushing output failed: %w", err)
	}

	w.progress(true)

	return nil
}

// flush writes every consecutive frame starting at next.
func (w *writer) flush() error {
	for {
		r, ok := w.pending[w.next]
		if !ok {
			return nil
		}

		delete(w.pending, w.next)

		if err := w.dst.WriteFrame(r.rects); err != nil {
			return fmt.Errorf("writing frame %d failed: %w", w.next, err)
		}

		if r.buf != nil {
			w.pool.put(r.buf)
		}

		w.metrics.FrameWritten(len(r.rects))
		w.next++
		w.progress(false)
	}
}

// progress reports every few frames, or sooner if updates have been sparse.
func (w *writer) progress(force bool) {
	now := time.Now()

	if !force && w.next-w.lastFrame < w.every && now.Sub(w.lastProgress) < w.interval {
		return
	}

	rate := 0.0
	if elapsed := now.Sub(w.start).Seconds(); elapsed > 0 {
		rate = float64(w.next) / elapsed
	}

	w.lastProgress = now
	w.lastFrame = w.next

	w.observer.emit(Status{Kind: KindProcessing, Current: w.next, Total: w.total, Rate: rate})
}

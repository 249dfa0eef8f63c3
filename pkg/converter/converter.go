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

// Package converter turns videos into codec streams.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/TurbineOne/pixel-shell/pkg/codec"
	"github.com/TurbineOne/pixel-shell/pkg/ffmpeg"
	"github.com/TurbineOne/pixel-shell/pkg/metrics"
)

const (
	lBytes        = "bytes"
	lElapsed      = "elapsed"
	lFPS          = "fps"
	lFrame        = "frame"
	lFrames       = "frames"
	lHeight       = "height"
	lInput        = "input"
	lOutput       = "output"
	lQueueSize    = "queueSize"
	lReorderLimit = "reorderLimit"
	lTotal        = "total"
	lWidth        = "width"
	lWorkers      = "workers"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log = zerolog.Nop()

// outputMode is the mode of finished codec streams.
const outputMode = 0o644

// ErrInvalidJob is returned for jobs missing an input or output.
var ErrInvalidJob = errors.New("job needs an input and an output path")

// FrameSource is a running decoder.
type FrameSource interface {
	io.Reader
	Wait() error
	Close() error
}

// Decoder starts decoders and answers questions about their inputs.
type Decoder interface {
	StartFrames(ctx context.Context, j ffmpeg.FrameJob) (FrameSource, error)
	FPS(ctx context.Context, path string) (uint16, error)
	FrameCount(ctx context.Context, path string) (uint64, error)
}

// ffmpegDecoder adapts *ffmpeg.FFmpeg to Decoder.
type ffmpegDecoder struct {
	*ffmpeg.FFmpeg
}

func (d ffmpegDecoder) StartFrames(ctx context.Context, j ffmpeg.FrameJob) (FrameSource, error) {
	s, err := d.FFmpeg.StartFrames(ctx, j)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Job describes one conversion.
type Job struct {
	Input  string
	Output string
	Width  int
	Height int
	FPS    uint16 // 0 means probe the input.
	GPU    bool
}

// Result is the outcome of one job in a batch.
type Result struct {
	Job    Job
	Frames uint64
	Err    error
}

// Converter runs conversion jobs.
type Converter struct {
	config  *Config
	decoder Decoder
	metrics *metrics.Metrics
}

// New returns a Converter that decodes with ff. m may be nil.
func New(config *Config, ff *ffmpeg.FFmpeg, m *metrics.Metrics, logger *zerolog.Logger) *Converter {
	return NewWithDecoder(config, ffmpegDecoder{ff}, m, logger)
}

// NewWithDecoder returns a Converter using the given decoder.
func NewWithDecoder(config *Config, d Decoder, m *metrics.Metrics, logger *zerolog.Logger) *Converter {
	log = logger.With().Str("pkg", "converter").Logger()

	return &Converter{
		config:  config,
		decoder: d,
		metrics: m,
	}
}

// Convert decodes job.Input and writes its codec stream to job.Output.
// A failed conversion leaves job.Output as it was.
func (c *Converter) Convert(ctx context.Context, job Job, observer Observer) (uint64, error) {
	start := time.Now()

	frames, err := c.convert(ctx, job, observer)

	c.metrics.ConversionDone(err, time.Since(start))

	if err != nil {
		log.Error().Err(err).Str(lInput, job.Input).Msg("conversion failed")
		observer.emit(Status{Kind: KindError, Message: err.Error(), Current: frames})

		return frames, err
	}

	log.Info().Str(lInput, job.Input).Str(lOutput, job.Output).Uint64(lFrames, frames).
		Dur(lElapsed, time.Since(start)).Msg("conversion finished")
	observer.emit(Status{Kind: KindFinished, Message: job.Output, Current: frames, Total: frames})

	return frames, nil
}

func (c *Converter) convert(ctx context.Context, job Job, observer Observer) (uint64, error) {
	if job.Input == "" || job.Output == "" {
		return 0, ErrInvalidJob
	}

	if job.Width <= 0 || job.Height <= 0 || job.Width > math.MaxUint16 || job.Height > math.MaxUint16 {
		return 0, ErrInvalidSize
	}

	observer.emit(Status{Kind: KindStarting, Message: job.Input})

	if _, err := os.Stat(job.Input); err != nil {
		return 0, fmt.Errorf("input: %w", err)
	}

	observer.emit(Status{Kind: KindAnalyzing, Message: job.Input})

	fps := job.FPS
	if fps == 0 {
		probed, err := c.decoder.FPS(ctx, job.Input)
		if err != nil {
			log.Warn().Err(err).Str(lInput, job.Input).Msg("can't probe frame rate, using default")

			probed = codec.DefaultFPS
		}

		fps = probed
	}

	total, err := c.decoder.FrameCount(ctx, job.Input)
	if err != nil {
		log.Warn().Err(err).Str(lInput, job.Input).Msg("can't estimate frame count")

		total = 0
	}

	log.Info().Str(lInput, job.Input).Str(lOutput, job.Output).Int(lWidth, job.Width).
		Int(lHeight, job.Height).Uint16(lFPS, fps).Uint64(lTotal, total).Msg("converting")

	// The stream is written next to the output and renamed into place, so a
	// failed run leaves any previous output untouched.
	tmp, err := os.CreateTemp(filepath.Dir(job.Output), "."+filepath.Base(job.Output)+".*")
	if err != nil {
		return 0, fmt.Errorf("creating output failed: %w", err)
	}

	frames, err := c.run(ctx, job, fps, total, tmp, observer)

	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing output failed: %w", closeErr)
	}

	if err == nil {
		err = publish(tmp.Name(), job.Output)
	}

	if err != nil {
		_ = os.Remove(tmp.Name())
	}

	return frames, err
}

// publish gives the finished stream at tmp its final mode and name.
func publish(tmp, path string) error {
	if err := os.Chmod(tmp, outputMode); err != nil {
		return fmt.Errorf("chmod output failed: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming output failed: %w", err)
	}

	return nil
}

func (c *Converter) run(ctx context.Context, job Job, fps uint16, total uint64, out io.Writer,
	observer Observer,
) (uint64, error) {
	dst, err := codec.NewWriterSize(out, fps, c.config.WriteBufferSize)
	if err != nil {
		return 0, fmt.Errorf("writing header failed: %w", err)
	}

	src, err := c.decoder.StartFrames(ctx, ffmpeg.FrameJob{
		Input:  job.Input,
		Width:  job.Width,
		Height: job.Height,
		GPU:    job.GPU,
	})
	if err != nil {
		return 0, err
	}

	p := NewPipeline(c.config, job.Width, job.Height, c.metrics)

	frames, err := p.Run(ctx, src, dst, total, observer)
	if err != nil {
		_ = src.Close()

		return frames, err
	}

	// The decoder's exit status decides whether EOF meant the end of the video.
	if err := src.Wait(); err != nil {
		return frames, err
	}

	if ctx.Err() != nil {
		return frames, ctx.Err()
	}

	return frames, nil
}

// ConvertAll runs jobs one after another. A failed job doesn't stop the
// batch; only cancellation does, leaving the remaining jobs unrun.
func (c *Converter) ConvertAll(ctx context.Context, jobs []Job, observer func(Job, Status)) []Result {
	results := make([]Result, 0, len(jobs))

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		var o Observer
		if observer != nil {
			o = func(s Status) { observer(job, s) }
		}

		frames, err := c.Convert(ctx, job, o)
		results = append(results, Result{Job: job, Frames: frames, Err: err})
	}

	return results
}

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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/TurbineOne/pixel-shell/pkg/metrics"
	"github.com/TurbineOne/pixel-shell/pkg/mimer"
)

const (
	lAudio      = "audio"
	lHost       = "host"
	lMediaType  = "mediaType"
	lOutput     = "output"
	lProject    = "project"
	lResolution = "resolution"
	lTargets    = "targets"
	lVideo      = "video"
)

//nolint:gochecknoglobals // allows logging from non-method funcs
var log = zerolog.Nop()

var (
	// ErrInvalidTarget is returned for targets without a project or resolution.
	ErrInvalidTarget = errors.New("target needs a project and a resolution")
	// ErrNoAudio is returned for targets without an audio track.
	ErrNoAudio = errors.New("no audio track found")
)

// Config configures the builder.
type Config struct { //nolint:govet // Don't care about alignment.
	Ext string `yaml:"ext" env:"BUILDER_EXT" doc:"Extension of built executables, without the dot. Empty for none"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		Ext: "exe",
	}
}

// Target is one archive to build: a codec stream at one resolution plus
// the project's audio track.
type Target struct {
	Project    string
	Resolution string
	Width      uint16
	Height     uint16
	VideoPath  string
	AudioPath  string
}

// FileName returns the name of the archive built for t.
func (t Target) FileName(ext string) string {
	name := t.Project + "_" + t.Resolution
	if ext != "" {
		name += "." + ext
	}

	return name
}

// BuildKind is the stage a build reports.
type BuildKind string

// Build stages.
const (
	BuildStarting BuildKind = "starting"
	BuildBuilding BuildKind = "building"
	BuildFinished BuildKind = "finished"
	BuildError    BuildKind = "error"
)

// BuildStatus is a progress update from a batch of builds.
type BuildStatus struct {
	Kind       BuildKind
	Target     Target
	OutputPath string
	Message    string
}

// BuildResult is the outcome of one target in a batch.
type BuildResult struct {
	Target     Target
	OutputPath string
	Err        error
}

// Builder writes archives.
type Builder struct {
	config  *Config
	metrics *metrics.Metrics
}

// New returns a Builder. m may be nil.
func New(config *Config, m *metrics.Metrics, logger *zerolog.Logger) *Builder {
	log = logger.With().Str("pkg", "archive").Logger()

	return &Builder{
		config:  config,
		metrics: m,
	}
}

// Build writes the archive for t into outDir, creating it if needed, and
// returns its path. The archive appears only once it's complete.
func (b *Builder) Build(t Target, hostPath, outDir string) (string, error) {
	path, err := b.build(t, hostPath, outDir)

	b.metrics.BuildDone(err)

	return path, err
}

func (b *Builder) build(t Target, hostPath, outDir string) (string, error) {
	if t.Project == "" || t.Resolution == "" {
		return "", ErrInvalidTarget
	}

	host, err := os.ReadFile(hostPath)
	if err != nil {
		return "", fmt.Errorf("reading host failed: %w", err)
	}

	video, err := os.ReadFile(t.VideoPath)
	if err != nil {
		return "", fmt.Errorf("reading video failed: %w", err)
	}

	if t.AudioPath == "" {
		return "", fmt.Errorf("%s: %w", t.FileName(""), ErrNoAudio)
	}

	audio, err := os.ReadFile(t.AudioPath)
	if err != nil {
		return "", fmt.Errorf("reading audio failed: %w", err)
	}

	checkPayloads(hostPath, host, t.AudioPath, audio)

	footer := NewFooter(uint64(len(host)), uint64(len(video)), uint64(len(audio)), t.Width, t.Height)

	if err := os.MkdirAll(outDir, 0o755); err != nil { //nolint:gosec // Output is meant to be shared.
		return "", fmt.Errorf("creating output dir failed: %w", err)
	}

	outPath := filepath.Join(outDir, t.FileName(b.config.Ext))

	if err := writeAtomic(outPath, host, video, audio, footer.Marshal()); err != nil {
		return "", err
	}

	log.Info().Str(lProject, t.Project).Str(lResolution, t.Resolution).Str(lOutput, outPath).
		Int(lHost, len(host)).Int(lVideo, len(video)).Int(lAudio, len(audio)).Msg("archive built")

	return outPath, nil
}

// writeAtomic writes parts to a temporary file next to path, then renames
// it into place.
func writeAtomic(path string, parts ...[]byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating output failed: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	for _, part := range parts {
		if _, err := tmp.Write(part); err != nil {
			return fmt.Errorf("writing output failed: %w", err)
		}
	}

	if err := tmp.Chmod(0o755); err != nil { //nolint:gosec // It's an executable.
		return fmt.Errorf("chmod output failed: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing output failed: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming output failed: %w", err)
	}

	return nil
}

// checkPayloads warns about payloads that don't look like what they should.
// Warnings never fail a build.
func checkPayloads(hostPath string, host []byte, audioPath string, audio []byte) {
	if mediaType, _ := mimer.GetContentTypeFromReader(bytes.NewReader(host)); !mimer.IsExecutable(mediaType) {
		log.Warn().Str(lHost, hostPath).Str(lMediaType, mediaType).Msg("host doesn't look like an executable")
	}

	if len(host) >= FooterSize {
		if _, err := UnmarshalFooter(host[len(host)-FooterSize:]); err == nil {
			log.Warn().Str(lHost, hostPath).Msg("host is already an archive, its payloads will be unreachable")
		}
	}

	if mediaType, _ := mimer.GetContentTypeFromReader(bytes.NewReader(audio)); !mimer.IsOgg(mediaType) {
		log.Warn().Str(lAudio, audioPath).Str(lMediaType, mediaType).Msg("audio doesn't look like Ogg")
	}
}

// BuildAll builds every target into outDir. A failed target is reported
// and skipped; only cancellation stops the batch.
func (b *Builder) BuildAll(ctx context.Context, targets []Target, hostPath, outDir string,
	observer func(BuildStatus),
) []BuildResult {
	emit := func(s BuildStatus) {
		if observer != nil {
			observer(s)
		}
	}

	log.Info().Int(lTargets, len(targets)).Str(lHost, hostPath).Str(lOutput, outDir).Msg("building")
	emit(BuildStatus{Kind: BuildStarting, Message: fmt.Sprintf("%d targets", len(targets))})

	results := make([]BuildResult, 0, len(targets))

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}

		emit(BuildStatus{Kind: BuildBuilding, Target: t, Message: t.FileName(b.config.Ext)})

		path, err := b.Build(t, hostPath, outDir)
		results = append(results, BuildResult{Target: t, OutputPath: path, Err: err})

		if err != nil {
			log.Error().Err(err).Str(lProject, t.Project).Str(lResolution, t.Resolution).Msg("build failed")
			emit(BuildStatus{Kind: BuildError, Target: t, Message: err.Error()})

			continue
		}

		emit(BuildStatus{Kind: BuildFinished, Target: t, OutputPath: path})
	}

	return results
}

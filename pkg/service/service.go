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

// Package service exposes the factory over gRPC on a Unix socket.
//
//nolint:wrapcheck // gRPC calls should return status.Error.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/converter"
	"github.com/TurbineOne/pixel-shell/pkg/project"
)

const (
	lFile    = "file"
	lJob     = "job"
	lInput   = "input"
	lOutput  = "output"
	lTargets = "targets"
)

// SocketName is the name of the service socket in Config.ServiceSocketRoot.
const SocketName = "psfactory.sock"

const grpcErrorFormat = "%s"

//nolint:gochecknoglobals // allows logging from non-method funcs
var log = zerolog.Nop()

// Config configures the service.
type Config struct { //nolint:govet // Don't care about alignment.
	ServiceSocketRoot string `yaml:"serviceSocketRoot" env:"SERVICE_SOCKET_ROOT" doc:"Directory holding the gRPC socket"`
	MetricsAddr       string `yaml:"metricsAddr" env:"METRICS_ADDR" doc:"Address to serve Prometheus metrics on, e.g. :9090. Empty disables"`
	Template          string `yaml:"template" env:"TEMPLATE" doc:"Host executable used when a Build request doesn't name one"`
	ProjectsDir       string `yaml:"projectsDir" env:"PROJECTS_DIR" doc:"Projects directory used when a Build request doesn't name one"`
	OutputDir         string `yaml:"outputDir" env:"OUTPUT_DIR" doc:"Output directory used when a Build request doesn't name one"`
}

// ConfigDefault returns the default values for a Config.
func ConfigDefault() Config {
	return Config{
		ServiceSocketRoot: "/tmp",
		MetricsAddr:       "",
		Template:          "ps-runner.exe",
		ProjectsDir:       "assets",
		OutputDir:         "dist",
	}
}

// Factory implements FactoryServer.
type Factory struct {
	config    *Config
	converter *converter.Converter
	builder   *archive.Builder
}

// New returns a Factory running jobs on conv and b.
func New(config *Config, conv *converter.Converter, b *archive.Builder, logger *zerolog.Logger) *Factory {
	log = logger.With().Str("pkg", "service").Logger()

	return &Factory{
		config:    config,
		converter: conv,
		builder:   b,
	}
}

// NewServer returns a gRPC server with f and a health service registered.
// Call Shutdown on the returned health.Server before stopping.
func NewServer(f *Factory, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(opts...)
	Register(s, f)

	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, h)

	return s, h
}

// rewriteError changes errors to be more appropriate for a gRPC client.
func rewriteError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	// This is normal for a client cancellation.
	if ctx.Err() != nil {
		return nil //nolint:nilerr // Intentional.
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Aborted

	switch {
	case errors.Is(err, converter.ErrInvalidJob),
		errors.Is(err, converter.ErrInvalidSize),
		errors.Is(err, project.ErrUnknownResolution),
		errors.Is(err, archive.ErrInvalidTarget):
		code = codes.InvalidArgument
	case errors.Is(err, os.ErrNotExist),
		errors.Is(err, project.ErrNoSourceVideo),
		errors.Is(err, archive.ErrNotArchive),
		errors.Is(err, archive.ErrUnpatched):
		code = codes.NotFound
	}

	return status.Errorf(code, grpcErrorFormat, err.Error())
}

// Convert runs one conversion.
//
// Request: {input, output: string; width, height, fps: number; gpu: bool}.
// Either width and height or resolution ("1080p") are required; fps 0 or
// absent means probe. Responses: {job, kind, message, current, total, rate}.
func (f *Factory) Convert(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	job, err := convertJob(req)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, grpcErrorFormat, err.Error())
	}

	id := uuid.NewString()

	log.Info().Str(lJob, id).Str(lInput, job.Input).Str(lOutput, job.Output).Msg("Convert() start")

	var sendErr error

	_, err = f.converter.Convert(stream.Context(), job, func(s converter.Status) {
		if sendErr != nil {
			return
		}

		sendErr = stream.Send(convertStatus(id, s))
	})

	log.Info().Str(lJob, id).Err(err).Msg("Convert() exiting")

	if err == nil && sendErr != nil {
		err = sendErr
	}

	return rewriteError(stream.Context(), err)
}

// Build builds archives.
//
// Request: {file: string} builds the codec stream at file; otherwise every
// target in {projectsDir: string}, narrowed by {project, resolutions:
// string}, is built. {template, outputDir: string} default to the config.
// Responses: {job, kind, project, resolution, output, message}.
func (f *Factory) Build(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	targets, err := f.buildTargets(req)
	if err != nil {
		return rewriteError(stream.Context(), err)
	}

	if len(targets) == 0 {
		return status.Error(codes.NotFound, "no build targets found")
	}

	template := stringField(req, "template", f.config.Template)
	outputDir := stringField(req, "outputDir", f.config.OutputDir)

	if _, err := os.Stat(template); err != nil {
		return status.Errorf(codes.NotFound, "template: %s", err.Error())
	}

	id := uuid.NewString()

	log.Info().Str(lJob, id).Int(lTargets, len(targets)).Str(lOutput, outputDir).Msg("Build() start")

	var sendErr error

	results := f.builder.BuildAll(stream.Context(), targets, template, outputDir, func(s archive.BuildStatus) {
		if sendErr != nil {
			return
		}

		sendErr = stream.Send(buildStatus(id, s))
	})

	failed := 0

	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	log.Info().Str(lJob, id).Int(lTargets, len(results)).Msg("Build() exiting")

	if sendErr != nil {
		return rewriteError(stream.Context(), sendErr)
	}

	// Failed targets were reported in the stream; the call fails only if
	// nothing could be built.
	if failed == len(targets) {
		return status.Errorf(codes.Aborted, "all %d targets failed", failed)
	}

	return nil
}

// Inspect describes an archive or codec stream.
//
// Request: {path: string}. Response: {path, archive, width, height,
// videoOffset, videoLen, audioOffset, audioLen, hostType, audioType, fps,
// frames, rects, maxRects, truncated}.
func (f *Factory) Inspect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path := stringField(req, "path", "")
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}

	log.Debug().Str(lFile, path).Msg("Inspect()")

	r, err := archive.Inspect(path)
	if err != nil {
		return nil, rewriteError(ctx, err)
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"path":        r.Path,
		"archive":     r.Archive,
		"width":       float64(r.Width),
		"height":      float64(r.Height),
		"videoOffset": float64(r.Footer.VideoOffset),
		"videoLen":    float64(r.Footer.VideoLen),
		"audioOffset": float64(r.Footer.AudioOffset),
		"audioLen":    float64(r.Footer.AudioLen),
		"hostType":    r.HostType,
		"audioType":   r.AudioType,
		"fps":         float64(r.Stats.FPS),
		"frames":      float64(r.Stats.Frames),
		"rects":       float64(r.Stats.Rects),
		"maxRects":    float64(r.Stats.MaxRects),
		"truncated":   r.Stats.Truncated,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, grpcErrorFormat, err.Error())
	}

	return out, nil
}

func (f *Factory) buildTargets(req *structpb.Struct) ([]archive.Target, error) {
	if file := stringField(req, "file", ""); file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, err
		}

		t, err := project.TargetFromFile(file)
		if err != nil {
			return nil, err
		}

		return []archive.Target{t}, nil
	}

	targets, err := project.Discover(stringField(req, "projectsDir", f.config.ProjectsDir))
	if err != nil {
		return nil, err
	}

	resolutions, err := project.ParseResolutions(stringField(req, "resolutions", ""))
	if err != nil {
		return nil, err
	}

	return project.Filter(targets, stringField(req, "project", ""), resolutions), nil
}

func convertJob(req *structpb.Struct) (converter.Job, error) {
	job := converter.Job{
		Input:  stringField(req, "input", ""),
		Output: stringField(req, "output", ""),
		GPU:    boolField(req, "gpu"),
	}

	if job.Input == "" || job.Output == "" {
		return job, converter.ErrInvalidJob
	}

	if name := stringField(req, "resolution", ""); name != "" {
		r, err := project.LookupResolution(name)
		if err != nil {
			return job, err
		}

		job.Width, job.Height = int(r.Width), int(r.Height)
	}

	var err error

	if job.Width, err = intField(req, "width", job.Width, math.MaxUint16); err != nil {
		return job, err
	}

	if job.Height, err = intField(req, "height", job.Height, math.MaxUint16); err != nil {
		return job, err
	}

	fps, err := intField(req, "fps", 0, math.MaxUint16)
	if err != nil {
		return job, err
	}

	job.FPS = uint16(fps)

	if job.Width == 0 || job.Height == 0 {
		return job, converter.ErrInvalidSize
	}

	return job, nil
}

func stringField(req *structpb.Struct, key, def string) string {
	if v, ok := req.GetFields()[key]; ok {
		if s := v.GetStringValue(); s != "" {
			return s
		}
	}

	return def
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

// intField returns a whole number in [0, limit], or def if key is absent.
func intField(req *structpb.Struct, key string, def, limit int) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return def, nil
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key) //nolint:goerr113 // Reported to the client.
	}

	if n.NumberValue < 0 || n.NumberValue > float64(limit) || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%s must be a whole number in [0, %d]", key, limit) //nolint:goerr113 // Reported to the client.
	}

	return int(n.NumberValue), nil
}

func convertStatus(id string, s converter.Status) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"job":     structpb.NewStringValue(id),
		"kind":    structpb.NewStringValue(string(s.Kind)),
		"message": structpb.NewStringValue(s.Message),
		"current": structpb.NewNumberValue(float64(s.Current)),
		"total":   structpb.NewNumberValue(float64(s.Total)),
		"rate":    structpb.NewNumberValue(s.Rate),
	}}
}

func buildStatus(id string, s archive.BuildStatus) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"job":        structpb.NewStringValue(id),
		"kind":       structpb.NewStringValue(string(s.Kind)),
		"project":    structpb.NewStringValue(s.Target.Project),
		"resolution": structpb.NewStringValue(s.Target.Resolution),
		"output":     structpb.NewStringValue(s.OutputPath),
		"message":    structpb.NewStringValue(s.Message),
	}}
}

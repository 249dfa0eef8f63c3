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

package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/codec"
	"github.com/TurbineOne/pixel-shell/pkg/converter"
	"github.com/TurbineOne/pixel-shell/pkg/ffmpeg"
)

const (
	testWidth  = 8
	testHeight = 4
)

type fakeSource struct {
	*bytes.Reader
}

func (fakeSource) Wait() error  { return nil }
func (fakeSource) Close() error { return nil }

type fakeDecoder struct {
	frames []byte
}

func (d fakeDecoder) StartFrames(context.Context, ffmpeg.FrameJob) (converter.FrameSource, error) {
	return fakeSource{bytes.NewReader(d.frames)}, nil
}

func (fakeDecoder) FPS(context.Context, string) (uint16, error) { return 25, nil }

func (d fakeDecoder) FrameCount(context.Context, string) (uint64, error) {
	return uint64(len(d.frames) / (testWidth * testHeight)), nil
}

// testFrames returns n frames with one lit pixel in the first.
func testFrames(n int) []byte {
	b := make([]byte, n*testWidth*testHeight)
	b[testWidth+1] = 255

	return b
}

func newTestClient(t *testing.T, config *Config) (*Client, *grpc.ClientConn) {
	t.Helper()

	logger := zerolog.Nop()

	convConfig := converter.ConfigDefault()
	convConfig.Workers = 2

	buildConfig := archive.ConfigDefault()

	f := New(config,
		converter.NewWithDecoder(&convConfig, fakeDecoder{frames: testFrames(3)}, nil, &logger),
		archive.New(&buildConfig, nil, &logger),
		&logger)

	s, h := NewServer(f)
	lis := bufconn.Listen(1 << 20)

	go func() { _ = s.Serve(lis) }()

	t.Cleanup(func() {
		h.Shutdown()
		s.Stop()
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn), conn
}

func recvAll(stream grpc.ServerStreamingClient[structpb.Struct]) ([]*structpb.Struct, error) {
	var out []*structpb.Struct

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return out, err
		}

		out = append(out, msg)
	}
}

func kinds(msgs []*structpb.Struct) []string {
	var out []string

	for _, m := range msgs {
		k := m.GetFields()["kind"].GetStringValue()
		if len(out) > 0 && out[len(out)-1] == k {
			continue
		}

		out = append(out, k)
	}

	return out
}

func newStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()

	s, err := structpb.NewStruct(m)
	require.NoError(t, err)

	return s
}

func writeFile(t *testing.T, path string, b []byte) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, b, 0o600))

	return path
}

func TestHealth(t *testing.T) {
	config := ConfigDefault()
	_, conn := newTestClient(t, &config)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	config := ConfigDefault()
	client, _ := newTestClient(t, &config)

	input := writeFile(t, filepath.Join(dir, "in.mp4"), []byte("video"))
	output := filepath.Join(dir, "out.bin")

	stream, err := client.Convert(context.Background(), newStruct(t, map[string]interface{}{
		"input":  input,
		"output": output,
		"width":  testWidth,
		"height": testHeight,
	}))
	require.NoError(t, err)

	msgs, err := recvAll(stream)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)

	require.Equal(t, string(converter.KindStarting), kinds(msgs)[0])

	last := msgs[len(msgs)-1].GetFields()
	require.Equal(t, string(converter.KindFinished), last["kind"].GetStringValue())
	require.InDelta(t, 3, last["current"].GetNumberValue(), 0)
	require.NotEmpty(t, last["job"].GetStringValue())

	f, err := os.Open(output)
	require.NoError(t, err)

	defer f.Close()

	stats, err := codec.ReadStats(f)
	require.NoError(t, err)
	require.Equal(t, uint16(25), stats.FPS)
	require.Equal(t, 3, stats.Frames)
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	config := ConfigDefault()
	client, _ := newTestClient(t, &config)

	input := writeFile(t, filepath.Join(dir, "in.mp4"), []byte("video"))
	output := filepath.Join(dir, "out.bin")

	testCases := map[string]struct {
		req  map[string]interface{}
		code codes.Code
	}{
		"noInput": {
			req:  map[string]interface{}{"output": output, "width": testWidth, "height": testHeight},
			code: codes.InvalidArgument,
		},
		"noSize": {
			req:  map[string]interface{}{"input": input, "output": output},
			code: codes.InvalidArgument,
		},
		"badWidth": {
			req:  map[string]interface{}{"input": input, "output": output, "width": 1.5, "height": testHeight},
			code: codes.InvalidArgument,
		},
		"unknownResolution": {
			req:  map[string]interface{}{"input": input, "output": output, "resolution": "480p"},
			code: codes.InvalidArgument,
		},
		"missingInput": {
			req: map[string]interface{}{
				"input": filepath.Join(dir, "missing.mp4"), "output": output,
				"width": testWidth, "height": testHeight,
			},
			code: codes.NotFound,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			stream, err := client.Convert(context.Background(), newStruct(t, tc.req))
			require.NoError(t, err)

			_, err = recvAll(stream)
			require.Equal(t, tc.code, status.Code(err), err)
			require.NoFileExists(t, output)
		})
	}
}

func TestBuildAndInspect(t *testing.T) {
	dir := t.TempDir()
	projects := filepath.Join(dir, "assets")
	outDir := filepath.Join(dir, "dist")

	writeFile(t, filepath.Join(projects, "alpha", "alpha.ogg"), []byte("OggS\x00\x02"))
	writeFile(t, filepath.Join(projects, "alpha", "alpha_720p.bin"), []byte{30, 0})
	template := writeFile(t, filepath.Join(dir, "runner.exe"), append([]byte("\x7fELF"), make([]byte, 60)...))

	config := ConfigDefault()
	config.ProjectsDir = projects
	config.Template = template
	config.OutputDir = outDir
	client, _ := newTestClient(t, &config)

	stream, err := client.Build(context.Background(), &structpb.Struct{})
	require.NoError(t, err)

	msgs, err := recvAll(stream)
	require.NoError(t, err)
	require.Equal(t, []string{
		string(archive.BuildStarting), string(archive.BuildBuilding), string(archive.BuildFinished),
	}, kinds(msgs))

	built := filepath.Join(outDir, "alpha_720p.exe")
	require.Equal(t, built, msgs[len(msgs)-1].GetFields()["output"].GetStringValue())
	require.FileExists(t, built)

	report, err := client.Inspect(context.Background(), newStruct(t, map[string]interface{}{"path": built}))
	require.NoError(t, err)

	fields := report.GetFields()
	require.True(t, fields["archive"].GetBoolValue())
	require.InDelta(t, 1280, fields["width"].GetNumberValue(), 0)
	require.InDelta(t, 720, fields["height"].GetNumberValue(), 0)
	require.InDelta(t, 64, fields["videoOffset"].GetNumberValue(), 0)
	require.InDelta(t, 30, fields["fps"].GetNumberValue(), 0)
	require.InDelta(t, 0, fields["frames"].GetNumberValue(), 0)
}

func TestBuildErrors(t *testing.T) {
	dir := t.TempDir()
	template := writeFile(t, filepath.Join(dir, "runner.exe"), []byte("host"))
	writeFile(t, filepath.Join(dir, "assets", "alpha", "alpha.ogg"), []byte("OggS"))
	writeFile(t, filepath.Join(dir, "assets", "alpha", "alpha_720p.bin"), []byte{30, 0})

	config := ConfigDefault()
	config.ProjectsDir = filepath.Join(dir, "assets")
	config.Template = template
	config.OutputDir = filepath.Join(dir, "dist")
	client, _ := newTestClient(t, &config)

	testCases := map[string]struct {
		req  map[string]interface{}
		code codes.Code
	}{
		"unknownResolution": {
			req:  map[string]interface{}{"resolutions": "720p,4k"},
			code: codes.InvalidArgument,
		},
		"noTargets": {
			req:  map[string]interface{}{"project": "beta"},
			code: codes.NotFound,
		},
		"missingTemplate": {
			req:  map[string]interface{}{"template": filepath.Join(dir, "missing.exe")},
			code: codes.NotFound,
		},
		"missingFile": {
			req:  map[string]interface{}{"file": filepath.Join(dir, "missing.bin")},
			code: codes.NotFound,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			stream, err := client.Build(context.Background(), newStruct(t, tc.req))
			require.NoError(t, err)

			_, err = recvAll(stream)
			require.Equal(t, tc.code, status.Code(err), err)
		})
	}
}

func TestInspectErrors(t *testing.T) {
	config := ConfigDefault()
	client, _ := newTestClient(t, &config)

	_, err := client.Inspect(context.Background(), &structpb.Struct{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Inspect(context.Background(),
		newStruct(t, map[string]interface{}{"path": filepath.Join(t.TempDir(), "missing")}))
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestRewriteError(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, rewriteError(ctx, nil))
	require.Equal(t, codes.InvalidArgument, status.Code(rewriteError(ctx, converter.ErrInvalidSize)))
	require.Equal(t, codes.NotFound, status.Code(rewriteError(ctx, archive.ErrNotArchive)))
	require.Equal(t, codes.Aborted, status.Code(rewriteError(ctx, io.ErrUnexpectedEOF)))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, rewriteError(canceled, io.ErrUnexpectedEOF))
}

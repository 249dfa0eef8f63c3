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

package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFakeProcess(t *testing.T) {
	if os.Getenv("GO_TEST_PROCESS") != "1" {
		return
	}

	var args []string

	for i, arg := range os.Args {
		if arg == "--" {
			args = os.Args[i+1:]

			break
		}
	}

	joined := strings.Join(args, " ")

	switch os.Getenv("MODE") {
	case "frames":
		frames, _ := strconv.Atoi(os.Getenv("FRAMES"))
		size, _ := strconv.Atoi(os.Getenv("FRAME_SIZE"))

		for i := 0; i < frames; i++ {
			frame := make([]byte, size)
			for j := range frame {
				frame[j] = byte(i)
			}

			_, _ = os.Stdout.Write(frame)
		}

		fmt.Fprintln(os.Stderr, "Past duration 0.99 too large")
	case "fail":
		fmt.Fprintln(os.Stderr, "first line")
		fmt.Fprintln(os.Stderr, "No such file or directory")
		os.Exit(1)
	case "sleep":
		time.Sleep(1 * time.Hour)
	case "probe":
		switch {
		case strings.Contains(joined, "stream=r_frame_rate"):
			fmt.Println(os.Getenv("RATE"))
		case strings.Contains(joined, "stream=nb_frames"):
			fmt.Println(os.Getenv("NB_FRAMES"))
		case strings.Contains(joined, "format=duration"):
			fmt.Println(os.Getenv("DURATION"))
		}
	case "args":
		fmt.Print(joined)
	}

	os.Exit(0)
}

func newFakeFFmpeg(env ...string) *FFmpeg {
	config := ConfigDefault()
	config.StopTimeout = 100 * time.Millisecond

	logger := zerolog.Nop()
	f := New(&config, &logger)
	f.command = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestFakeProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append([]string{"GO_TEST_PROCESS=1"}, env...)

		return cmd
	}

	return f
}

func TestFrameArgs(t *testing.T) {
	config := ConfigDefault()
	logger := zerolog.Nop()
	f := New(&config, &logger)

	j := FrameJob{Input: "in.mp4", Width: 1280, Height: 720}

	expected := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-i", "in.mp4",
		"-vf", "scale=1280:720,format=gray,gblur=sigma=1.0:steps=1,eq=contrast=1000:saturation=0",
		"-f", "rawvideo", "-pix_fmt", "gray", "-",
	}
	require.Equal(t, expected, f.FrameArgs(j))

	j.GPU = true
	args := f.FrameArgs(j)
	require.Equal(t, []string{"-hwaccel", "cuda", "-i"}, args[4:7])

	config.HWAccel = ""
	require.NotContains(t, f.FrameArgs(j), "-hwaccel")
}

func TestStartFrames(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=frames", "FRAMES=3", "FRAME_SIZE=4")

		src, err := f.StartFrames(context.Background(), FrameJob{Input: "x", Width: 2, Height: 2})
		require.NoError(t, err)

		out, err := io.ReadAll(src)
		require.NoError(t, err)
		require.Equal(t, []byte{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2}, out)
		require.NoError(t, src.Wait())
		require.NoError(t, src.Wait())
	})
	t.Run("exitError", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=fail")

		src, err := f.StartFrames(context.Background(), FrameJob{Input: "x", Width: 2, Height: 2})
		require.NoError(t, err)

		_, err = io.ReadAll(src)
		require.NoError(t, err)

		err = src.Wait()

		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		require.Equal(t, []string{"first line", "No such file or directory"}, exitErr.Stderr)
		require.Contains(t, err.Error(), "No such file or directory")
	})
	t.Run("canceled", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=sleep")

		ctx, cancel := context.WithCancel(context.Background())

		src, err := f.StartFrames(ctx, FrameJob{Input: "x", Width: 2, Height: 2})
		require.NoError(t, err)

		cancel()

		_, err = io.ReadAll(src)
		require.NoError(t, err)
		require.Error(t, src.Wait())
	})
	t.Run("close", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=sleep")

		src, err := f.StartFrames(context.Background(), FrameJob{Input: "x", Width: 2, Height: 2})
		require.NoError(t, err)
		require.NoError(t, src.Close())
	})
	t.Run("invalidSize", func(t *testing.T) {
		f := newFakeFFmpeg()

		_, err := f.StartFrames(context.Background(), FrameJob{Input: "x", Width: 0, Height: 2})
		require.ErrorIs(t, err, ErrInvalidFrameSize)
	})
}

func TestStderrLogTail(t *testing.T) {
	l := newStderrLog("ffmpeg")
	require.Empty(t, l.Tail())

	for i := 0; i < stderrTailLines+3; i++ {
		l.line(strconv.Itoa(i))
	}

	l.line("   ")

	tail := l.Tail()
	require.Len(t, tail, stderrTailLines)
	require.Equal(t, "3", tail[0])
	require.Equal(t, strconv.Itoa(stderrTailLines+2), tail[len(tail)-1])
}

func TestProbe(t *testing.T) {
	t.Run("fps", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=probe", "RATE=30000/1001")

		fps, err := f.FPS(context.Background(), "x")
		require.NoError(t, err)
		require.Equal(t, uint16(30), fps)
	})
	t.Run("frameCount", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=probe", "NB_FRAMES=1234")

		n, err := f.FrameCount(context.Background(), "x")
		require.NoError(t, err)
		require.Equal(t, uint64(1234), n)
	})
	t.Run("frameCountFromDuration", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=probe", "NB_FRAMES=N/A", "DURATION=10.0", "RATE=25/1")

		n, err := f.FrameCount(context.Background(), "x")
		require.NoError(t, err)
		require.Equal(t, uint64(250), n)
	})
	t.Run("unknown", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=probe", "NB_FRAMES=N/A", "DURATION=N/A")

		_, err := f.FrameCount(context.Background(), "x")
		require.ErrorIs(t, err, ErrUnknown)
	})
	t.Run("exitError", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=fail")

		_, err := f.FPS(context.Background(), "x")

		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		require.Equal(t, "ffprobe", exitErr.Bin)
	})
	t.Run("args", func(t *testing.T) {
		f := newFakeFFmpeg("MODE=args")

		out, err := f.probe(context.Background(), "in.mkv", "-show_entries", "format=duration")
		require.NoError(t, err)
		require.Equal(t,
			"ffprobe -v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 in.mkv",
			out)
	})
}

func TestParseRate(t *testing.T) {
	testCases := map[string]struct {
		input    string
		expected uint16
		err      error
	}{
		"fraction":    {"30/1", 30, nil},
		"ntsc":        {"30000/1001", 30, nil},
		"roundsUp":    {"24000/1001", 24, nil},
		"plain":       {"59.94", 60, nil},
		"empty":       {"", 0, ErrUnknown},
		"na":          {"N/A", 0, ErrUnknown},
		"zeroDen":     {"0/0", 0, ErrUnknown},
		"garbage":     {"abc", 0, &ParseError{}},
		"badFraction": {"1/x", 0, &ParseError{}},
		"zero":        {"0/1", 0, &ParseError{}},
		"outOfRange":  {"100000/1", 0, &ParseError{}},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			fps, err := parseRate(tc.input)

			switch tc.err.(type) {
			case nil:
				require.NoError(t, err)
				require.Equal(t, tc.expected, fps)
			case *ParseError:
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
			default:
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("12.5")
	require.NoError(t, err)
	require.InDelta(t, 12.5, d, 0)

	_, err = parseDuration("N/A")
	require.ErrorIs(t, err, ErrUnknown)

	_, err = parseDuration("-1")
	require.Error(t, err)
}

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
	"bufio"
	"container/ring"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ErrInvalidFrameSize is returned for jobs without a positive frame size.
var ErrInvalidFrameSize = errors.New("frame width and height must be positive")

// squelchedPrefixes are stderr lines that ffmpeg can emit once per frame.
// They're logged only every squelchInterval occurrences.
var squelchedPrefixes = []string{ //nolint:gochecknoglobals // Static.
	"Past duration",
	"deprecated pixel format used",
	"Packet corrupt",
	"error while decoding MB",
	"Invalid level prefix",
}

const (
	squelchInterval = 1024 // log every Nth message
	stderrTailLines = 8
)

// stderrLog logs a process's stderr and remembers its last few lines.
type stderrLog struct {
	bin    string
	counts []int

	lock sync.Mutex
	tail *ring.Ring
}

func newStderrLog(bin string) *stderrLog {
	return &stderrLog{
		bin:    bin,
		counts: make([]int, len(squelchedPrefixes)),
		tail:   ring.New(stderrTailLines),
	}
}

func (l *stderrLog) run(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		l.line(scanner.Text())
	}
}

func (l *stderrLog) line(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}

	l.lock.Lock()
	l.tail.Value = msg
	l.tail = l.tail.Next()
	l.lock.Unlock()

	event := log.Debug().Str(lBin, l.bin)

	for i, prefix := range squelchedPrefixes {
		if strings.HasPrefix(msg, prefix) {
			l.counts[i]++
			if l.counts[i]%squelchInterval != 1 {
				return
			}

			event = event.Int(lSquelch, l.counts[i])

			break
		}
	}

	event.Msg(msg)
}

// Tail returns the last lines written to stderr, oldest first.
func (l *stderrLog) Tail() []string {
	l.lock.Lock()
	defer l.lock.Unlock()

	var lines []string

	l.tail.Do(func(v interface{}) {
		if v != nil {
			lines = append(lines, v.(string)) //nolint:forcetypeassert // Only strings go in.
		}
	})

	return lines
}

// FrameSource is a running decoder. Reading it yields consecutive raw
// frames; EOF means the decoder is done. Callers must either read to EOF
// and then Wait, or Close.
type FrameSource struct {
	bin    string
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *stderrLog

	stderrDone chan struct{}
	waitOnce   sync.Once
	waitErr    error
}

// StartFrames starts a decoder producing the frames described by j.
// The process is stopped when ctx is done.
func (f *FFmpeg) StartFrames(ctx context.Context, j FrameJob) (*FrameSource, error) {
	if j.Width <= 0 || j.Height <= 0 {
		return nil, ErrInvalidFrameSize
	}

	args := f.FrameArgs(j)
	cmd := f.newCmd(ctx, f.config.FFmpegBin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s failed: %w", f.config.FFmpegBin, err)
	}

	s := &FrameSource{
		bin:        f.config.FFmpegBin,
		cmd:        cmd,
		stdout:     stdout,
		stderr:     newStderrLog(f.config.FFmpegBin),
		stderrDone: make(chan struct{}),
	}

	go func() {
		defer close(s.stderrDone)
		s.stderr.run(stderr)
	}()

	log.Info().Str(lFile, j.Input).Int(lPID, cmd.Process.Pid).
		Strs(lArgs, args).Msg("decoder started")

	return s, nil
}

func (s *FrameSource) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Wait waits for the decoder to exit and returns its exit status.
func (s *FrameSource) Wait() error {
	s.waitOnce.Do(func() {
		<-s.stderrDone

		if err := s.cmd.Wait(); err != nil {
			exitErr := &ExitError{Bin: s.bin, Err: err, Stderr: s.stderr.Tail()}

			var ee *exec.ExitError
			if errors.As(err, &ee) {
				log.Debug().Int(lExitCode, ee.ExitCode()).Msg("decoder exited")
			}

			s.waitErr = exitErr
		}
	})

	return s.waitErr
}

// Close abandons the remaining frames and reaps the process.
func (s *FrameSource) Close() error {
	_ = s.stdout.Close()
	_ = s.cmd.Process.Kill()
	_ = s.Wait()

	return nil
}

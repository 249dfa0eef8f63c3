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

package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/converter"
	"github.com/TurbineOne/pixel-shell/pkg/project"
)

func init() {
	log = zerolog.Nop()
}

func touch(t *testing.T, path string, b []byte) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, b, 0o600))

	return path
}

func TestConvertJobs(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "a", "a.mp4"), nil)
	touch(t, filepath.Join(dir, "b", "b.ogg"), nil)

	t.Run("input", func(t *testing.T) {
		jobs, err := convertJobs(dir, "", false, "", "in.mov", "out.bin", "720p", 24, true)
		require.NoError(t, err)
		require.Equal(t, []converter.Job{
			{Input: "in.mov", Output: "out.bin", Width: 1280, Height: 720, FPS: 24, GPU: true},
		}, jobs)

		_, err = convertJobs(dir, "", false, "", "in.mov", "", "720p", 0, false)
		require.ErrorIs(t, err, errUsage)

		_, err = convertJobs(dir, "", false, "", "in.mov", "out.bin", "480p", 0, false)
		require.ErrorIs(t, err, project.ErrUnknownResolution)
	})
	t.Run("project", func(t *testing.T) {
		jobs, err := convertJobs(dir, "a", false, defaultConvertResolutions, "", "", "", 0, false)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		require.Equal(t, input, jobs[0].Input)
		require.Equal(t, filepath.Join(dir, "a", "a_1080p.bin"), jobs[1].Output)

		_, err = convertJobs(dir, "b", false, defaultConvertResolutions, "", "", "", 0, false)
		require.ErrorIs(t, err, project.ErrNoSourceVideo)
	})
	t.Run("all", func(t *testing.T) {
		// b has no source video and is skipped.
		jobs, err := convertJobs(dir, "", true, "2160p", "", "", "", 0, false)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.Equal(t, 3840, jobs[0].Width)
	})
	t.Run("usage", func(t *testing.T) {
		_, err := convertJobs(dir, "", false, defaultConvertResolutions, "", "", "", 0, false)
		require.ErrorIs(t, err, errUsage)

		_, err = convertJobs(dir, "a", false, "", "", "", "", 0, false)
		require.ErrorIs(t, err, errUsage)
	})
}

func TestBuildTargets(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a", "a.ogg"), nil)
	touch(t, filepath.Join(dir, "a", "a_720p.bin"), nil)
	touch(t, filepath.Join(dir, "b", "b.ogg"), nil)
	touch(t, filepath.Join(dir, "b", "b_1080p.bin"), nil)

	targets, err := buildTargets(dir, "", true, "", "")
	require.NoError(t, err)
	require.Len(t, targets, 2)

	targets, err = buildTargets(dir, "b", false, "", "")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, "1080p", targets[0].Resolution)

	_, err = buildTargets(dir, "a", false, "1080p", "")
	require.ErrorIs(t, err, errNoTargets)

	_, err = buildTargets(dir, "", false, "", "")
	require.ErrorIs(t, err, errUsage)

	targets, err = buildTargets(dir, "", false, "", filepath.Join(dir, "a", "a_720p.bin"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a", "a.ogg"), targets[0].AudioPath)

	_, err = buildTargets(dir, "", false, "", filepath.Join(dir, "missing.bin"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestInspectAndRender(t *testing.T) {
	dir := t.TempDir()

	// One frame holding a 2x1 rect at (1, 1).
	stream := touch(t, filepath.Join(dir, "clip.bin"), []byte{
		24, 0,
		1, 0, 1, 0, 2, 0, 1, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
	})

	r, err := archive.Inspect(stream)
	require.NoError(t, err)

	var out bytes.Buffer
	printReport(&out, r)
	require.Contains(t, out.String(), "frames:     1\n")
	require.Contains(t, out.String(), "reading as a codec stream")

	pngPath := filepath.Join(dir, "frame.png")
	require.NoError(t, renderFrame(stream, 0, pngPath))

	f, err := os.Open(pngPath)
	require.NoError(t, err)

	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, archive.RawWidth, img.Bounds().Dx())

	lit := func(x, y int) bool {
		r, _, _, _ := img.At(x, y).RGBA()

		return r != 0
	}
	require.True(t, lit(1, 1))
	require.True(t, lit(2, 1))
	require.False(t, lit(3, 1))
	require.False(t, lit(1, 0))

	require.Error(t, renderFrame(stream, 5, pngPath))
}

func TestBuildStatusString(t *testing.T) {
	target := archive.Target{Project: "a", Resolution: "720p"}

	require.Equal(t, "finished a_720p: dist/a_720p.exe",
		buildStatus{Kind: archive.BuildFinished, Target: target, OutputPath: "dist/a_720p.exe"}.String())
	require.Equal(t, "error a_720p: boom",
		buildStatus{Kind: archive.BuildError, Target: target, Message: "boom"}.String())
}

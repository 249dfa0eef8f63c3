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

package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/converter"
)

func touch(t *testing.T, parts ...string) string {
	t.Helper()

	path := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	return path
}

func TestLookupResolution(t *testing.T) {
	r, err := LookupResolution("1440p")
	require.NoError(t, err)
	require.Equal(t, Resolution{Name: "1440p", Width: 2560, Height: 1440}, r)

	_, err = LookupResolution("480p")
	require.ErrorIs(t, err, ErrUnknownResolution)
}

func TestParseResolutions(t *testing.T) {
	rs, err := ParseResolutions(" 2160p,720p ,, 720p")
	require.NoError(t, err)
	require.Equal(t, []Resolution{Resolutions[3], Resolutions[0]}, rs)

	rs, err = ParseResolutions("")
	require.NoError(t, err)
	require.Empty(t, rs)

	_, err = ParseResolutions("720p,4k")
	require.ErrorIs(t, err, ErrUnknownResolution)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()

	// Complete project with two streams, listed out of table order on disk.
	touch(t, dir, "beta", "beta.ogg")
	touch(t, dir, "beta", "beta_2160p.bin")
	touch(t, dir, "beta", "beta_1080p.bin")
	touch(t, dir, "beta", "beta_480p.bin")

	touch(t, dir, "alpha", "alpha.ogg")
	touch(t, dir, "alpha", "alpha_720p.bin")

	// No audio, skipped.
	touch(t, dir, "gamma", "gamma_720p.bin")

	// Audio but no streams.
	touch(t, dir, "delta", "delta.ogg")

	// Not a project.
	touch(t, dir, "stray.bin")

	targets, err := Discover(dir)
	require.NoError(t, err)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)

	expected := []archive.Target{
		{
			Project: "alpha", Resolution: "720p", Width: 1280, Height: 720,
			VideoPath: filepath.Join(abs, "alpha", "alpha_720p.bin"),
			AudioPath: filepath.Join(abs, "alpha", "alpha.ogg"),
		},
		{
			Project: "beta", Resolution: "1080p", Width: 1920, Height: 1080,
			VideoPath: filepath.Join(abs, "beta", "beta_1080p.bin"),
			AudioPath: filepath.Join(abs, "beta", "beta.ogg"),
		},
		{
			Project: "beta", Resolution: "2160p", Width: 3840, Height: 2160,
			VideoPath: filepath.Join(abs, "beta", "beta_2160p.bin"),
			AudioPath: filepath.Join(abs, "beta", "beta.ogg"),
		},
	}
	require.Equal(t, expected, targets)

	require.Equal(t, expected[1:], Filter(targets, "beta", nil))
	require.Equal(t, expected[2:], Filter(targets, "", []Resolution{Resolutions[3]}))
	require.Equal(t, expected, Filter(targets, "", nil))
	require.Empty(t, Filter(targets, "alpha", []Resolution{Resolutions[1]}))
}

func TestDiscoverMissingDir(t *testing.T) {
	targets, err := Discover(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.Empty(t, targets)
}

func TestDetectResolution(t *testing.T) {
	require.Equal(t, "720p", DetectResolution("clip_720p").Name)
	require.Equal(t, "2160p", DetectResolution("clip_2160p_final").Name)
	require.Equal(t, "1080p", DetectResolution("clip").Name)
	require.Equal(t, DefaultResolution, DetectResolution(""))
}

func TestDetectAudioPath(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		dir := t.TempDir()
		stream := touch(t, dir, "song_1080p.bin")
		audio := touch(t, dir, "song_1080p.ogg")
		touch(t, dir, "song.ogg")

		require.Equal(t, audio, DetectAudioPath(stream))
	})
	t.Run("stripped", func(t *testing.T) {
		dir := t.TempDir()
		stream := touch(t, dir, "song_1080p.bin")
		audio := touch(t, dir, "song.ogg")

		require.Equal(t, audio, DetectAudioPath(stream))
	})
	t.Run("none", func(t *testing.T) {
		dir := t.TempDir()
		stream := touch(t, dir, "song_1080p.bin")

		require.Empty(t, DetectAudioPath(stream))
	})
	t.Run("tokenInProjectName", func(t *testing.T) {
		// Known limitation: the token is stripped from the project name too.
		dir := t.TempDir()
		stream := touch(t, dir, "my_720p_song_1080p.bin")
		touch(t, dir, "my_720p_song.ogg")
		stripped := touch(t, dir, "my_song.ogg")

		require.Equal(t, stripped, DetectAudioPath(stream))
	})
}

func TestTargetFromFile(t *testing.T) {
	dir := t.TempDir()
	stream := touch(t, dir, "clip_1440p.bin")
	audio := touch(t, dir, "clip.ogg")

	target, err := TargetFromFile(stream)
	require.NoError(t, err)
	require.Equal(t, archive.Target{
		Project:    "clip",
		Resolution: "1440p",
		Width:      2560,
		Height:     1440,
		VideoPath:  stream,
		AudioPath:  audio,
	}, target)
	require.Equal(t, "clip_1440p.exe", target.FileName("exe"))

	noAudio := touch(t, dir, "other.bin")

	target, err = TargetFromFile(noAudio)
	require.NoError(t, err)
	require.Equal(t, "1080p", target.Resolution)
	require.Empty(t, target.AudioPath)
	require.Equal(t, "other_1080p.exe", target.FileName("exe"))
}

func TestSourceVideo(t *testing.T) {
	dir := t.TempDir()

	_, err := SourceVideo(dir, "p")
	require.ErrorIs(t, err, ErrNoSourceVideo)

	webm := touch(t, dir, "p.webm")

	path, err := SourceVideo(dir, "p")
	require.NoError(t, err)
	require.Equal(t, webm, path)

	mp4 := touch(t, dir, "p.mp4")

	path, err = SourceVideo(dir, "p")
	require.NoError(t, err)
	require.Equal(t, mp4, path)
}

func TestConvertJobs(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, dir, "p", "p.mov")

	jobs, err := ConvertJobs(dir, "p", []Resolution{Resolutions[0], Resolutions[2]}, 24, true)
	require.NoError(t, err)
	require.Equal(t, []converter.Job{
		{Input: input, Output: filepath.Join(dir, "p", "p_720p.bin"), Width: 1280, Height: 720, FPS: 24, GPU: true},
		{Input: input, Output: filepath.Join(dir, "p", "p_1440p.bin"), Width: 2560, Height: 1440, FPS: 24, GPU: true},
	}, jobs)

	_, err = ConvertJobs(dir, "missing", Resolutions, 0, false)
	require.ErrorIs(t, err, ErrNoSourceVideo)
}

func TestProjects(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b", "b.ogg")
	touch(t, dir, "a", "a.mp4")
	touch(t, dir, "file")

	names, err := Projects(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)
}

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

// Package project finds the inputs and outputs of a project's conversions
// and builds.
//
// A projects directory holds one folder per project:
//
//	<projects>/<name>/<name>.{mkv,mp4,avi,mov,webm}  source video
//	<projects>/<name>/<name>.ogg                     audio track
//	<projects>/<name>/<name>_<resolution>.bin        codec streams
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/converter"
)

const (
	streamExt = ".bin"
	audioExt  = ".ogg"
)

// ErrUnknownResolution is returned for resolution names not in Resolutions.
var ErrUnknownResolution = errors.New("unknown resolution")

// ErrNoSourceVideo is returned when a project folder has no source video.
var ErrNoSourceVideo = errors.New("no source video found")

// Resolution is a named output size.
type Resolution struct {
	Name   string
	Width  uint16
	Height uint16
}

// Resolutions are the supported output sizes, smallest first.
var Resolutions = []Resolution{ //nolint:gochecknoglobals // Static table.
	{Name: "720p", Width: 1280, Height: 720},
	{Name: "1080p", Width: 1920, Height: 1080},
	{Name: "1440p", Width: 2560, Height: 1440},
	{Name: "2160p", Width: 3840, Height: 2160},
}

// DefaultResolution is used when a file name doesn't name one.
var DefaultResolution = Resolutions[1] //nolint:gochecknoglobals // Static.

// SourceExts are the source video extensions, in order of preference.
var SourceExts = []string{".mkv", ".mp4", ".avi", ".mov", ".webm"} //nolint:gochecknoglobals // Static.

// LookupResolution returns the resolution called name.
func LookupResolution(name string) (Resolution, error) {
	i := slices.IndexFunc(Resolutions, func(r Resolution) bool { return r.Name == name })
	if i < 0 {
		return Resolution{}, fmt.Errorf("%w %q", ErrUnknownResolution, name)
	}

	return Resolutions[i], nil
}

// ParseResolutions parses a comma separated list such as "720p, 1080p".
// Duplicates are dropped; empty items are ignored.
func ParseResolutions(s string) ([]Resolution, error) {
	var out []Resolution

	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		r, err := LookupResolution(name)
		if err != nil {
			return nil, err
		}

		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}

	return out, nil
}

// StreamName returns the codec stream file name for a project at r.
func StreamName(project string, r Resolution) string {
	return project + "_" + r.Name + streamExt
}

// Discover returns a target for every codec stream in projectsDir whose
// project has an audio track. Targets are sorted by project, then by
// resolution. A missing projectsDir has no targets.
func Discover(projectsDir string) ([]archive.Target, error) {
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading projects failed: %w", err)
	}

	var targets []archive.Target

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		project := entry.Name()
		dir := filepath.Join(projectsDir, project)

		audio, err := filepath.Abs(filepath.Join(dir, project+audioExt))
		if err != nil {
			return nil, err //nolint:wrapcheck // Only fails without a working dir.
		}

		if !isFile(audio) {
			continue
		}

		for _, r := range Resolutions {
			video, err := filepath.Abs(filepath.Join(dir, StreamName(project, r)))
			if err != nil {
				return nil, err //nolint:wrapcheck // Only fails without a working dir.
			}

			if !isFile(video) {
				continue
			}

			targets = append(targets, archive.Target{
				Project:    project,
				Resolution: r.Name,
				Width:      r.Width,
				Height:     r.Height,
				VideoPath:  video,
				AudioPath:  audio,
			})
		}
	}

	slices.SortStableFunc(targets, func(a, b archive.Target) int {
		if c := strings.Compare(a.Project, b.Project); c != 0 {
			return c
		}

		return resolutionIndex(a.Resolution) - resolutionIndex(b.Resolution)
	})

	return targets, nil
}

// Filter returns the targets of project (any if empty) at one of
// resolutions (any if empty).
func Filter(targets []archive.Target, project string, resolutions []Resolution) []archive.Target {
	var out []archive.Target

	for _, t := range targets {
		if project != "" && t.Project != project {
			continue
		}

		if len(resolutions) > 0 &&
			!slices.ContainsFunc(resolutions, func(r Resolution) bool { return r.Name == t.Resolution }) {
			continue
		}

		out = append(out, t)
	}

	return out
}

// TargetFromFile returns a target for a codec stream picked by hand. The
// resolution comes from the file name, and the audio track is looked for
// next to it. A target without audio fails when built.
func TargetFromFile(path string) (archive.Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return archive.Target{}, err //nolint:wrapcheck // Only fails without a working dir.
	}

	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	r := DetectResolution(stem)

	return archive.Target{
		Project:    stripResolutions(stem),
		Resolution: r.Name,
		Width:      r.Width,
		Height:     r.Height,
		VideoPath:  abs,
		AudioPath:  DetectAudioPath(abs),
	}, nil
}

// DetectResolution returns the first resolution whose name appears in
// name, or DefaultResolution.
func DetectResolution(name string) Resolution {
	for _, r := range Resolutions {
		if strings.Contains(name, r.Name) {
			return r
		}
	}

	return DefaultResolution
}

// DetectAudioPath finds the audio track for a codec stream: first
// <stem>.ogg, then the same with every _<resolution> removed from the stem.
// Returns "" if neither exists.
func DetectAudioPath(streamPath string) string {
	dir := filepath.Dir(streamPath)
	stem := strings.TrimSuffix(filepath.Base(streamPath), filepath.Ext(streamPath))

	exact := filepath.Join(dir, stem+audioExt)
	if isFile(exact) {
		return exact
	}

	stripped := filepath.Join(dir, stripResolutions(stem)+audioExt)
	if isFile(stripped) {
		return stripped
	}

	return ""
}

// stripResolutions removes every _<resolution> from s. Project names that
// contain such a token lose it too.
func stripResolutions(s string) string {
	for _, r := range Resolutions {
		s = strings.ReplaceAll(s, "_"+r.Name, "")
	}

	return s
}

// SourceVideo returns the source video of the project in projectDir.
func SourceVideo(projectDir, project string) (string, error) {
	for _, ext := range SourceExts {
		path := filepath.Join(projectDir, project+ext)
		if isFile(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("%s: %w", projectDir, ErrNoSourceVideo)
}

// ConvertJobs returns a job per resolution converting the project's source
// video into its codec streams. fps 0 leaves the rate to be probed.
func ConvertJobs(projectsDir, project string, resolutions []Resolution, fps uint16, gpu bool,
) ([]converter.Job, error) {
	dir := filepath.Join(projectsDir, project)

	input, err := SourceVideo(dir, project)
	if err != nil {
		return nil, err
	}

	jobs := make([]converter.Job, 0, len(resolutions))

	for _, r := range resolutions {
		jobs = append(jobs, converter.Job{
			Input:  input,
			Output: filepath.Join(dir, StreamName(project, r)),
			Width:  int(r.Width),
			Height: int(r.Height),
			FPS:    fps,
			GPU:    gpu,
		})
	}

	return jobs, nil
}

// Projects returns the names of the project folders in projectsDir.
func Projects(projectsDir string) ([]string, error) {
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return nil, fmt.Errorf("reading projects failed: %w", err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

func resolutionIndex(name string) int {
	return slices.IndexFunc(Resolutions, func(r Resolution) bool { return r.Name == name })
}

func isFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

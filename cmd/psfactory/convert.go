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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/TurbineOne/pixel-shell/pkg/converter"
	"github.com/TurbineOne/pixel-shell/pkg/ffmpeg"
	"github.com/TurbineOne/pixel-shell/pkg/project"
)

const (
	lJobs    = "jobs"
	lProject = "project"
)

const defaultConvertResolutions = "720p,1080p"

var errJobsFailed = errors.New("some jobs failed")

// progress prints status updates. On a terminal, processing updates
// overwrite each other on one line.
type progress struct {
	out  io.Writer
	tty  bool
	open bool // A processing line is waiting for its newline.
}

func newProgress(f *os.File) *progress {
	return &progress{
		out: f,
		tty: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
	}
}

func (p *progress) print(prefix string, s fmt.Stringer, transient bool) {
	switch {
	case transient && !p.tty:
		return
	case transient:
		fmt.Fprintf(p.out, "\r\033[K%s%s", prefix, s)
		p.open = true

		return
	case p.open:
		fmt.Fprintln(p.out)
		p.open = false
	}

	fmt.Fprintf(p.out, "%s%s\n", prefix, s)
}

func (p *progress) convert(job converter.Job, s converter.Status) {
	p.print(job.Output+": ", s, s.Kind == converter.KindProcessing)
}

func runConvert(ctx context.Context, args []string) error {
	fs := newFlagSet("convert", "[-project name [-resolutions list] | -input file -output file -resolution name] [flags]")
	projectsDir := fs.String("projects", currentConfig.Service.ProjectsDir, "projects directory")
	projectName := fs.String("project", "", "project to convert; its source video is <projects>/<project>/<project>.{mkv,mp4,avi,mov,webm}")
	all := fs.Bool("all", false, "convert every project that has a source video")
	resolutions := fs.String("resolutions", defaultConvertResolutions, "comma separated project output resolutions")
	input := fs.String("input", "", "video to convert instead of a project")
	output := fs.String("output", "", "codec stream to write for -input")
	resolution := fs.String("resolution", project.DefaultResolution.Name, "output resolution for -input")
	fps := fs.Uint("fps", 0, "frame rate to record; 0 probes the input")
	gpu := fs.Bool("gpu", false, "decode on the GPU")

	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // Reported by the flag package.
	}

	if *fps > 0xffff {
		return fmt.Errorf("%w: -fps %d is too large", errUsage, *fps)
	}

	jobs, err := convertJobs(*projectsDir, *projectName, *all, *resolutions, *input, *output, *resolution,
		uint16(*fps), *gpu)
	if err != nil {
		return err
	}

	ff := ffmpeg.New(&currentConfig.FFmpeg, &log)
	conv := converter.New(&currentConfig.Converter, ff, nil, &log)

	log.Info().Int(lJobs, len(jobs)).Msg("converting")

	results := conv.ConvertAll(ctx, jobs, newProgress(os.Stdout).convert)

	failed := 0

	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	if ctx.Err() != nil {
		return ctx.Err() //nolint:wrapcheck // Interrupted.
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errJobsFailed, failed, len(jobs))
	}

	return nil
}

func convertJobs(projectsDir, projectName string, all bool, resolutions, input, output, resolution string,
	fps uint16, gpu bool,
) ([]converter.Job, error) {
	if input != "" {
		if output == "" {
			return nil, fmt.Errorf("%w: -input needs -output", errUsage)
		}

		r, err := project.LookupResolution(resolution)
		if err != nil {
			return nil, err //nolint:wrapcheck // Has the name.
		}

		return []converter.Job{{
			Input:  input,
			Output: output,
			Width:  int(r.Width),
			Height: int(r.Height),
			FPS:    fps,
			GPU:    gpu,
		}}, nil
	}

	rs, err := project.ParseResolutions(resolutions)
	if err != nil {
		return nil, err //nolint:wrapcheck // Has the name.
	}

	if len(rs) == 0 {
		return nil, fmt.Errorf("%w: no resolutions", errUsage)
	}

	var names []string

	switch {
	case all:
		if names, err = project.Projects(projectsDir); err != nil {
			return nil, err //nolint:wrapcheck // Has the path.
		}
	case projectName != "":
		names = []string{projectName}
	default:
		return nil, fmt.Errorf("%w: convert needs -project, -all or -input", errUsage)
	}

	var jobs []converter.Job

	for _, name := range names {
		projectJobs, err := project.ConvertJobs(projectsDir, name, rs, fps, gpu)
		if err != nil {
			if all && errors.Is(err, project.ErrNoSourceVideo) {
				log.Warn().Str(lProject, name).Msg("no source video, skipping")

				continue
			}

			return nil, err //nolint:wrapcheck // Has the project.
		}

		jobs = append(jobs, projectJobs...)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s: %w", projectsDir, project.ErrNoSourceVideo)
	}

	return jobs, nil
}

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
	"os"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/project"
)

var errNoTargets = errors.New("no build targets found, run convert first")

type buildStatus archive.BuildStatus

func (s buildStatus) String() string {
	switch s.Kind {
	case archive.BuildStarting:
		return fmt.Sprintf("%s: %s", s.Kind, s.Message)
	case archive.BuildFinished:
		return fmt.Sprintf("%s %s_%s: %s", s.Kind, s.Target.Project, s.Target.Resolution, s.OutputPath)
	default:
		return fmt.Sprintf("%s %s_%s: %s", s.Kind, s.Target.Project, s.Target.Resolution, s.Message)
	}
}

func (p *progress) build(s archive.BuildStatus) {
	p.print("", buildStatus(s), false)
}

func runBuild(ctx context.Context, args []string) error {
	fs := newFlagSet("build", "[-all | -project name | -file stream] [flags]")
	projectsDir := fs.String("projects", currentConfig.Service.ProjectsDir, "projects directory")
	projectName := fs.String("project", "", "project to build")
	all := fs.Bool("all", false, "build every project")
	resolutions := fs.String("resolutions", "", "comma separated resolutions to build; empty builds all that exist")
	file := fs.String("file", "", "codec stream to build on its own; resolution and audio are found from its name")
	template := fs.String("template", currentConfig.Service.Template, "host executable the payloads are appended to")
	outputDir := fs.String("output", currentConfig.Service.OutputDir, "output directory")

	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // Reported by the flag package.
	}

	if _, err := os.Stat(*template); err != nil {
		return fmt.Errorf("missing template, build the runner first: %w", err)
	}

	targets, err := buildTargets(*projectsDir, *projectName, *all, *resolutions, *file)
	if err != nil {
		return err
	}

	b := archive.New(&currentConfig.Builder, nil, &log)

	results := b.BuildAll(ctx, targets, *template, *outputDir, newProgress(os.Stdout).build)

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
		return fmt.Errorf("%w: %d of %d", errJobsFailed, failed, len(targets))
	}

	return nil
}

func buildTargets(projectsDir, projectName string, all bool, resolutions, file string,
) ([]archive.Target, error) {
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, err //nolint:wrapcheck // Has the path.
		}

		t, err := project.TargetFromFile(file)
		if err != nil {
			return nil, err //nolint:wrapcheck // Has the path.
		}

		return []archive.Target{t}, nil
	}

	if !all && projectName == "" {
		return nil, fmt.Errorf("%w: build needs -all, -project or -file", errUsage)
	}

	rs, err := project.ParseResolutions(resolutions)
	if err != nil {
		return nil, err //nolint:wrapcheck // Has the name.
	}

	targets, err := project.Discover(projectsDir)
	if err != nil {
		return nil, err //nolint:wrapcheck // Has the path.
	}

	if all {
		projectName = ""
	}

	targets = project.Filter(targets, projectName, rs)

	if len(targets) == 0 {
		return nil, errNoTargets
	}

	return targets, nil
}

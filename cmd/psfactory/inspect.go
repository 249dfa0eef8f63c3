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
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/codec"
	"github.com/TurbineOne/pixel-shell/pkg/rect"
)

const lFile = "file"

func runInspect(args []string) error {
	fs := newFlagSet("inspect", "[-frame n -png file] path")
	frame := fs.Int("frame", 0, "frame to render with -png")
	pngPath := fs.String("png", "", "write the frame's rectangles to this PNG")

	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // Reported by the flag package.
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("%w: inspect needs one path", errUsage)
	}

	path := fs.Arg(0)

	r, err := archive.Inspect(path)
	if err != nil {
		return err //nolint:wrapcheck // Has the path.
	}

	printReport(os.Stdout, r)

	if *pngPath == "" {
		return nil
	}

	if err := renderFrame(path, *frame, *pngPath); err != nil {
		return err
	}

	log.Info().Str(lFile, *pngPath).Int("frame", *frame).Msg("frame rendered")

	return nil
}

func printReport(w io.Writer, r *archive.Report) {
	fmt.Fprintf(w, "path:       %s\n", r.Path)

	if r.Archive {
		fmt.Fprintf(w, "host:       %d bytes, %s\n", r.Footer.HostLen(), r.HostType)
		fmt.Fprintf(w, "video:      %d bytes at %d\n", r.Footer.VideoLen, r.Footer.VideoOffset)
		fmt.Fprintf(w, "audio:      %d bytes at %d, %s\n", r.Footer.AudioLen, r.Footer.AudioOffset, r.AudioType)
	} else {
		fmt.Fprintln(w, "archive:    no, reading as a codec stream")
	}

	fmt.Fprintf(w, "size:       %dx%d\n", r.Width, r.Height)
	fmt.Fprintf(w, "fps:        %d\n", r.Stats.FPS)
	fmt.Fprintf(w, "frames:     %d\n", r.Stats.Frames)
	fmt.Fprintf(w, "rects:      %d (max %d per frame)\n", r.Stats.Rects, r.Stats.MaxRects)

	if r.Stats.Truncated {
		fmt.Fprintln(w, "truncated:  yes, last frame dropped")
	}
}

// renderFrame paints frame n of the codec stream in path as a white on
// black PNG.
func renderFrame(path string, n int, pngPath string) error {
	v, err := archive.OpenVideo(path)
	if err != nil {
		return err //nolint:wrapcheck // Has the path.
	}
	defer v.Close() //nolint:errcheck // Read only.

	cr, err := codec.NewReader(v)
	if err != nil {
		return err //nolint:wrapcheck // Codec errors are descriptive.
	}

	if err := cr.SeekFrame(n); err != nil {
		return err //nolint:wrapcheck // Has the frame.
	}

	rects, err := cr.NextFrame(nil)
	if err != nil {
		return fmt.Errorf("reading frame %d failed: %w", n, err)
	}

	img := image.NewGray(image.Rect(0, 0, int(v.Width), int(v.Height)))
	rect.Rasterize(img.Pix, int(v.Width), int(v.Height), rects)

	f, err := os.Create(pngPath)
	if err != nil {
		return err //nolint:wrapcheck // Has the path.
	}

	if err := png.Encode(f, img); err != nil {
		_ = f.Close()

		return fmt.Errorf("encoding png failed: %w", err)
	}

	return f.Close() //nolint:wrapcheck // Has the path.
}

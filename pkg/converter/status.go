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

package converter

import (
	"fmt"
)

// Kind is the stage a conversion reports.
type Kind string

// Conversion stages, in the order they're reported.
const (
	KindStarting   Kind = "starting"
	KindAnalyzing  Kind = "analyzing"
	KindProcessing Kind = "processing"
	KindFinished   Kind = "finished"
	KindError      Kind = "error"
)

// Status is a progress update from a conversion.
type Status struct {
	Kind    Kind
	Message string
	Current uint64  // Frames written so far.
	Total   uint64  // Estimated frame count, 0 if unknown.
	Rate    float64 // Frames per second of wall time.
}

func (s Status) String() string {
	switch s.Kind {
	case KindProcessing:
		if s.Total > 0 {
			return fmt.Sprintf("%s %d/%d (%.1f fps)", s.Kind, s.Current, s.Total, s.Rate)
		}

		return fmt.Sprintf("%s %d (%.1f fps)", s.Kind, s.Current, s.Rate)
	case KindError:
		return fmt.Sprintf("%s: %s", s.Kind, s.Message)
	default:
		if s.Message != "" {
			return fmt.Sprintf("%s: %s", s.Kind, s.Message)
		}

		return string(s.Kind)
	}
}

// Observer receives status updates. It's called from the pipeline's
// goroutines, one call at a time, and must not block for long.
type Observer func(Status)

func (o Observer) emit(s Status) {
	if o != nil {
		o(s)
	}
}

// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package framesource

import (
	"fmt"

	"lumenart/pkg/log"
)

// NewScreencapture wraps an x11grab display/region as a VideoDecode
// source. display is e.g. ":0.0+100,200" to capture a region starting
// at (100,200) on display :0.0.
func NewScreencapture(ffmpegBin, display string, width, height int, fps float64, logger *log.Logger) *VideoDecode {
	v := NewVideoDecode(ffmpegBin, display, width, height, fps, logger)
	v.InputArgs = []string{
		"-f", "x11grab",
		"-framerate", fmtFloat(fps),
		"-video_size", fmtSize(width, height),
	}
	return v
}

func fmtFloat(v float64) string { return fmt.Sprintf("%g", v) }
func fmtSize(w, h int) string   { return fmt.Sprintf("%dx%d", w, h) }

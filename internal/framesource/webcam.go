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

import "lumenart/pkg/log"

// NewWebcam wraps a v4l2 capture device as a VideoDecode source. A
// webcam has no end of content; Reset and Seek restart the capture
// subprocess, which simply resumes the live feed.
func NewWebcam(ffmpegBin, device string, width, height int, fps float64, logger *log.Logger) *VideoDecode {
	v := NewVideoDecode(ffmpegBin, device, width, height, fps, logger)
	v.InputArgs = []string{
		"-f", "v4l2",
		"-framerate", fmtFloat(fps),
		"-video_size", fmtSize(width, height),
	}
	return v
}

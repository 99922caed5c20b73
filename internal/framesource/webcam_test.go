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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWebcamInputArgs(t *testing.T) {
	v := NewWebcam("ffmpeg", "/dev/video0", 64, 48, 25, nil)
	require.Equal(t, "/dev/video0", v.Path)
	require.Equal(t, []string{"-f", "v4l2", "-framerate", "25", "-video_size", "64x48"}, v.InputArgs)
}

func TestNewScreencaptureInputArgs(t *testing.T) {
	v := NewScreencapture("ffmpeg", ":0.0", 64, 48, 30, nil)
	require.Equal(t, ":0.0", v.Path)
	require.Equal(t, []string{"-f", "x11grab", "-framerate", "30", "-video_size", "64x48"}, v.InputArgs)
}

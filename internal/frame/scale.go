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

package frame

import (
	"image"

	"golang.org/x/image/draw"
)

// Scaled returns f resized to width x height with bilinear filtering.
// A frame that already matches is returned as-is, so the compositor's
// hot path pays nothing when sources produce canvas-shaped frames.
func (f *Frame) Scaled(width, height int) *Frame {
	if f.Width == width && f.Height == height {
		return f
	}

	src := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i+2 < len(f.Pix); i, j = i+3, j+4 {
		src.Pix[j] = f.Pix[i]
		src.Pix[j+1] = f.Pix[i+1]
		src.Pix[j+2] = f.Pix[i+2]
		src.Pix[j+3] = 255
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := New(width, height)
	for i, j := 0, 0; i+2 < len(out.Pix); i, j = i+3, j+4 {
		out.Pix[i] = dst.Pix[j]
		out.Pix[i+1] = dst.Pix[j+1]
		out.Pix[i+2] = dst.Pix[j+2]
	}
	return out
}

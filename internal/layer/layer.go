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

package layer

import (
	"lumenart/internal/frame"
	"lumenart/internal/framesource"
	"lumenart/pkg/clipregistry"
)

// Layer binds one frame source to its private effect chain, blend
// config and opacity within a clip.
type Layer struct {
	Spec   clipregistry.LayerSpec
	Source framesource.Source
	Chain  ChainCache
}

// Composite blends overlay onto base in place using mode and opacity.
// opacity is 0-100; disabled layers never reach this call, the play
// loop skips them.
func Composite(base, overlay *frame.Frame, mode clipregistry.BlendMode, opacity int) {
	alpha := clampOpacity(opacity)
	if alpha == 0 {
		return
	}

	for i := 0; i+2 < len(base.Pix); i += 3 {
		br, bg, bb := base.Pix[i], base.Pix[i+1], base.Pix[i+2]
		or, og, ob := overlay.Pix[i], overlay.Pix[i+1], overlay.Pix[i+2]

		blended := blendPixel(mode, br, bg, bb, or, og, ob)

		base.Pix[i] = mix(br, blended[0], alpha)
		base.Pix[i+1] = mix(bg, blended[1], alpha)
		base.Pix[i+2] = mix(bb, blended[2], alpha)
	}
}

func clampOpacity(opacity int) float64 {
	if opacity < 0 {
		return 0
	}
	if opacity > 100 {
		return 1
	}
	return float64(opacity) / 100
}

func mix(base, blended byte, alpha float64) byte {
	v := float64(base) + (float64(blended)-float64(base))*alpha
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

func blendPixel(mode clipregistry.BlendMode, br, bg, bb, or, og, ob byte) [3]byte {
	switch mode {
	case clipregistry.BlendMultiply:
		return [3]byte{
			mulChannel(br, or),
			mulChannel(bg, og),
			mulChannel(bb, ob),
		}
	case clipregistry.BlendScreen:
		return [3]byte{
			255 - mulChannel(255-br, 255-or),
			255 - mulChannel(255-bg, 255-og),
			255 - mulChannel(255-bb, 255-ob),
		}
	case clipregistry.BlendOverlay:
		return [3]byte{overlayChannel(br, or), overlayChannel(bg, og), overlayChannel(bb, ob)}
	case clipregistry.BlendAdd:
		return [3]byte{addChannel(br, or), addChannel(bg, og), addChannel(bb, ob)}
	case clipregistry.BlendSubtract:
		return [3]byte{subChannel(br, or), subChannel(bg, og), subChannel(bb, ob)}
	default: // BlendNormal
		return [3]byte{or, og, ob}
	}
}

// mulChannel multiplies two channels with rounding rather than
// truncation, so e.g. 100*50 maps to round(5000/255) = 20, not 19.
func mulChannel(a, b byte) byte {
	return byte((int(a)*int(b) + 127) / 255)
}

func overlayChannel(base, blend byte) byte {
	if base < 128 {
		return byte((2*int(base)*int(blend) + 127) / 255)
	}
	return 255 - byte((2*int(255-base)*int(255-blend)+127)/255)
}

func addChannel(a, b byte) byte {
	v := int(a) + int(b)
	if v > 255 {
		return 255
	}
	return byte(v)
}

func subChannel(a, b byte) byte {
	v := int(a) - int(b)
	if v < 0 {
		return 0
	}
	return byte(v)
}

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

// Package transitions holds the engine's built-in Transition plugins.
package transitions

import (
	"fmt"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

func init() {
	plugin.RegisterBuiltin(registerCrossfade)
	plugin.RegisterBuiltin(registerWipe)
}

func registerCrossfade(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.crossfade",
		Name: "Crossfade",
		Kind: plugin.KindTransition,
	}, func(plugin.Params) (interface{}, error) {
		return crossfadeTransition{}, nil
	})
}

type crossfadeTransition struct{}

func (crossfadeTransition) Blend(a, b *frame.Frame, progress float64, _ plugin.Params) (*frame.Frame, error) {
	if err := checkShapes(a, b); err != nil {
		return nil, err
	}
	out := frame.New(a.Width, a.Height)
	for i := range out.Pix {
		out.Pix[i] = lerp(a.Pix[i], b.Pix[i], progress)
	}
	return out, nil
}

func registerWipe(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.wipe",
		Name: "Wipe",
		Kind: plugin.KindTransition,
		Params: []plugin.ParamSpec{
			{Name: "direction", Type: plugin.ParamSelect, Default: "left_to_right",
				Options: []string{"left_to_right", "right_to_left"}},
		},
	}, func(plugin.Params) (interface{}, error) {
		return wipeTransition{}, nil
	})
}

type wipeTransition struct{}

func (wipeTransition) Blend(a, b *frame.Frame, progress float64, params plugin.Params) (*frame.Frame, error) {
	if err := checkShapes(a, b); err != nil {
		return nil, err
	}
	direction, _ := params["direction"].(string)

	out := frame.New(a.Width, a.Height)
	edge := int(float64(a.Width) * progress)
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			fromB := x < edge
			if direction == "right_to_left" {
				fromB = x >= a.Width-edge
			}
			var r, g, bl byte
			if fromB {
				r, g, bl = b.At(x, y)
			} else {
				r, g, bl = a.At(x, y)
			}
			out.Set(x, y, r, g, bl)
		}
	}
	return out, nil
}

func checkShapes(a, b *frame.Frame) error {
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("transition frame shape mismatch: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

func lerp(a, b byte, progress float64) byte {
	v := float64(a) + (float64(b)-float64(a))*progress
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

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

// Package effects holds the engine's built-in Effect plugins. Each one
// self-registers from init(), the directory itself standing in for the
// "effects/" branch of the plugin discovery tree.
package effects

import (
	"math"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

func init() {
	plugin.RegisterBuiltin(registerInvert)
	plugin.RegisterBuiltin(registerGamma)
	plugin.RegisterBuiltin(registerHueShift)
}

func registerInvert(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.invert",
		Name: "Invert",
		Kind: plugin.KindEffect,
	}, func(plugin.Params) (interface{}, error) {
		return invertEffect{}, nil
	})
}

type invertEffect struct{}

func (invertEffect) Process(f *frame.Frame, _ plugin.Params) error {
	for i := range f.Pix {
		f.Pix[i] = 255 - f.Pix[i]
	}
	return nil
}

func registerGamma(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.gamma",
		Name: "Gamma",
		Kind: plugin.KindEffect,
		Params: []plugin.ParamSpec{
			{Name: "gamma", Type: plugin.ParamFloat, Default: 1.0, Min: 0.1, Max: 5.0},
		},
	}, func(params plugin.Params) (interface{}, error) {
		return gammaEffect{}, nil
	})
}

type gammaEffect struct{}

func (gammaEffect) Process(f *frame.Frame, params plugin.Params) error {
	gamma, _ := params["gamma"].(float64)
	if gamma <= 0 {
		gamma = 1.0
	}
	inv := 1.0 / gamma
	var lut [256]byte
	for i := 0; i < 256; i++ {
		v := math.Pow(float64(i)/255.0, inv) * 255.0
		if v > 255 {
			v = 255
		}
		lut[i] = byte(v)
	}
	for i := range f.Pix {
		f.Pix[i] = lut[f.Pix[i]]
	}
	return nil
}

func registerHueShift(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.hue_shift",
		Name: "Hue Shift",
		Kind: plugin.KindEffect,
		Params: []plugin.ParamSpec{
			{Name: "shift", Type: plugin.ParamFloat, Default: 0.0, Min: -180, Max: 180},
		},
	}, func(plugin.Params) (interface{}, error) {
		return hueShiftEffect{}, nil
	})
}

// hueShiftEffect exists as a plugin so chains can include hue rotation
// alongside other effects, independent of the player-level hue shift
// the play loop applies after compositing.
type hueShiftEffect struct{}

func (hueShiftEffect) Process(f *frame.Frame, params plugin.Params) error {
	shift, _ := params["shift"].(float64)
	if shift == 0 {
		return nil
	}
	for i := 0; i+2 < len(f.Pix); i += 3 {
		r, g, b := f.Pix[i], f.Pix[i+1], f.Pix[i+2]
		h, s, v := rgbToHSV(r, g, b)
		// Hue lives in a [0,180) half-degree channel; the +180 bias
		// sign-extends negative shifts.
		h = math.Mod(h/2+shift+180, 180) * 2
		nr, ng, nb := hsvToRGB(h, s, v)
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = nr, ng, nb
	}
	return nil
}

func rgbToHSV(r, g, b byte) (h, s, v float64) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min
	v = max

	if delta == 0 {
		return 0, 0, v
	}
	s = delta / max

	switch max {
	case rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case gf:
		h = 60 * ((bf-rf)/delta + 2)
	case bf:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func hsvToRGB(h, s, v float64) (byte, byte, byte) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = c, x, 0
	case h < 120:
		rf, gf, bf = x, c, 0
	case h < 180:
		rf, gf, bf = 0, c, x
	case h < 240:
		rf, gf, bf = 0, x, c
	case h < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	return clampByte((rf + m) * 255), clampByte((gf + m) * 255), clampByte((bf + m) * 255)
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

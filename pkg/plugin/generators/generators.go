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

// Package generators holds the engine's built-in Generator plugins,
// pure functions of frame-number/time/dimensions/params.
package generators

import (
	"math"
	"math/rand"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

func init() {
	plugin.RegisterBuiltin(registerSolid)
	plugin.RegisterBuiltin(registerNoise)
	plugin.RegisterBuiltin(registerSinePulse)
}

func registerSolid(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.solid",
		Name: "Solid Color",
		Kind: plugin.KindGenerator,
		Params: []plugin.ParamSpec{
			{Name: "color", Type: plugin.ParamColor, Default: [3]uint8{0, 0, 0}},
		},
	}, func(plugin.Params) (interface{}, error) {
		return solidGenerator{}, nil
	})
}

type solidGenerator struct{}

func (solidGenerator) Produce(_ int64, _ float64, width, height int, params plugin.Params) (*frame.Frame, error) {
	r, g, b := colorParam(params["color"])
	f := frame.New(width, height)
	f.Fill(r, g, b)
	return f, nil
}

func colorParam(v interface{}) (r, g, b byte) {
	switch c := v.(type) {
	case [3]uint8:
		return c[0], c[1], c[2]
	case []interface{}:
		if len(c) == 3 {
			return toByte(c[0]), toByte(c[1]), toByte(c[2])
		}
	}
	return 0, 0, 0
}

func toByte(v interface{}) byte {
	switch n := v.(type) {
	case float64:
		return byte(n)
	case int:
		return byte(n)
	}
	return 0
}

func registerNoise(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.noise",
		Name: "Random Noise",
		Kind: plugin.KindGenerator,
		Params: []plugin.ParamSpec{
			{Name: "seed", Type: plugin.ParamInt, Default: 0.0},
		},
	}, func(plugin.Params) (interface{}, error) {
		return noiseGenerator{}, nil
	})
}

type noiseGenerator struct{}

func (noiseGenerator) Produce(frameNumber int64, _ float64, width, height int, params plugin.Params) (*frame.Frame, error) {
	seed, _ := params["seed"].(float64)
	src := rand.New(rand.NewSource(int64(seed) + frameNumber))
	f := frame.New(width, height)
	src.Read(f.Pix) //nolint:errcheck
	return f, nil
}

func registerSinePulse(register plugin.RegisterHook) {
	register(plugin.Metadata{
		ID:   "builtin.sine_pulse",
		Name: "Sine Pulse",
		Kind: plugin.KindGenerator,
		Params: []plugin.ParamSpec{
			{Name: "frequency", Type: plugin.ParamFloat, Default: 1.0, Min: 0.01, Max: 20},
			{Name: "color", Type: plugin.ParamColor, Default: [3]uint8{255, 255, 255}},
		},
	}, func(plugin.Params) (interface{}, error) {
		return sinePulseGenerator{}, nil
	})
}

type sinePulseGenerator struct{}

func (sinePulseGenerator) Produce(_ int64, t float64, width, height int, params plugin.Params) (*frame.Frame, error) {
	freq, _ := params["frequency"].(float64)
	r, g, b := colorParam(params["color"])

	level := (math.Sin(2*math.Pi*freq*t) + 1) / 2
	f := frame.New(width, height)
	f.Fill(byte(float64(r)*level), byte(float64(g)*level), byte(float64(b)*level))
	return f, nil
}

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
	"context"
	"time"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

// Generator is a pure function of frame-number/time/dimensions/
// params, backed by a Generator plugin instance.
type Generator struct {
	Width, Height int
	FPS           float64
	Plugin        plugin.Generator
	Params        plugin.Params

	frameNumber int64
}

// NewGenerator wraps a plugin.Generator instance as a frame source.
func NewGenerator(width, height int, fps float64, gen plugin.Generator, params plugin.Params) *Generator {
	return &Generator{
		Width: width, Height: height, FPS: fps,
		Plugin: gen, Params: params,
	}
}

func (g *Generator) Initialize(context.Context) error {
	g.frameNumber = 0
	return nil
}

func (g *Generator) NextFrame(context.Context) (*frame.Frame, time.Duration, error) {
	t := float64(g.frameNumber) / g.FPS
	f, err := g.Plugin.Produce(g.frameNumber, t, g.Width, g.Height, g.Params)
	if err != nil {
		return nil, 0, &TransientError{Err: err}
	}
	g.frameNumber++

	delay := time.Duration(float64(time.Second) / g.FPS)
	return f, delay, nil
}

func (g *Generator) Reset(context.Context) error {
	g.frameNumber = 0
	return nil
}

func (g *Generator) Seek(_ context.Context, position float64) error {
	g.frameNumber = int64(position)
	return nil
}

// IsExhausted is always false: generators are a pure function of an
// unbounded frame-number.
func (g *Generator) IsExhausted() bool { return false }

func (g *Generator) Cleanup() error { return nil }

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
)

// Null is the Dummy/Null frame source: it always returns a black
// frame and never exhausts. Useful as a placeholder base layer and in
// tests.
type Null struct {
	Width, Height int
	Delay         time.Duration
}

// NewNull returns a Null source for the given canvas size.
func NewNull(width, height int, delay time.Duration) *Null {
	return &Null{Width: width, Height: height, Delay: delay}
}

func (n *Null) Initialize(context.Context) error { return nil }

func (n *Null) NextFrame(context.Context) (*frame.Frame, time.Duration, error) {
	return frame.New(n.Width, n.Height), n.Delay, nil
}

func (n *Null) Reset(context.Context) error         { return nil }
func (n *Null) Seek(context.Context, float64) error { return nil }
func (n *Null) IsExhausted() bool                   { return false }
func (n *Null) Cleanup() error                      { return nil }

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

package player

import "lumenart/internal/frame"

// SamplePoint is one pixel coordinate mapped to a universe/offset.
type SamplePoint struct {
	X, Y     int
	Universe int
	Offset   int // pixel offset within the universe
}

// SamplePointSet holds an ordered array of sample points plus a
// precomputed in-range mask against a fixed canvas size, so Sample
// never has to bounds-check per call.
type SamplePointSet struct {
	points        []SamplePoint
	inRange       []bool
	width, height int
}

// NewSamplePointSet precomputes the bounds mask for points against a
// width x height canvas.
func NewSamplePointSet(points []SamplePoint, width, height int) *SamplePointSet {
	set := &SamplePointSet{
		points:  points,
		inRange: make([]bool, len(points)),
		width:   width,
		height:  height,
	}
	for i, p := range points {
		set.inRange[i] = p.X >= 0 && p.X < width && p.Y >= 0 && p.Y < height
	}
	return set
}

// UniversePixels groups sampled RGB triples by universe, preserving
// each universe's pixel order.
type UniversePixels map[int][]byte

// Sample indexes f at every in-range point in one pass, producing an
// (N,3) RGB array partitioned by universe RGB
// array in one pass"). Out-of-range points contribute nothing.
func (s *SamplePointSet) Sample(f *frame.Frame) UniversePixels {
	out := make(UniversePixels)
	for i, p := range s.points {
		if !s.inRange[i] {
			continue
		}
		r, g, b := f.At(p.X, p.Y)
		buf := out[p.Universe]
		need := p.Offset*3 + 3
		if len(buf) < need {
			grown := make([]byte, need)
			copy(grown, buf)
			buf = grown
		}
		buf[p.Offset*3] = r
		buf[p.Offset*3+1] = g
		buf[p.Offset*3+2] = b
		out[p.Universe] = buf
	}
	return out
}

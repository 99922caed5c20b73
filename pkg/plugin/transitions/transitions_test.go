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

package transitions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lumenart/internal/frame"
)

func TestCrossfadeEndpoints(t *testing.T) {
	a := frame.New(2, 2)
	a.Fill(0, 0, 0)
	b := frame.New(2, 2)
	b.Fill(255, 255, 255)

	start, err := crossfadeTransition{}.Blend(a, b, 0, nil)
	require.NoError(t, err)
	r, _, _ := start.At(0, 0)
	require.Equal(t, byte(0), r)

	end, err := crossfadeTransition{}.Blend(a, b, 1, nil)
	require.NoError(t, err)
	r, _, _ = end.At(0, 0)
	require.Equal(t, byte(255), r)

	mid, err := crossfadeTransition{}.Blend(a, b, 0.5, nil)
	require.NoError(t, err)
	r, _, _ = mid.At(0, 0)
	require.InDelta(t, 128, r, 2)
}

func TestWipeShapeMismatch(t *testing.T) {
	a := frame.New(2, 2)
	b := frame.New(3, 3)
	_, err := wipeTransition{}.Blend(a, b, 0.5, nil)
	require.Error(t, err)
}

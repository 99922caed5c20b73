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

package effects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

func TestInvert(t *testing.T) {
	f := frame.New(2, 2)
	f.Fill(10, 20, 30)

	require.NoError(t, invertEffect{}.Process(f, nil))
	r, g, b := f.At(0, 0)
	require.Equal(t, byte(245), r)
	require.Equal(t, byte(235), g)
	require.Equal(t, byte(225), b)
}

func TestHueShiftZeroIsNoop(t *testing.T) {
	f := frame.New(1, 1)
	f.Fill(200, 10, 10)

	require.NoError(t, hueShiftEffect{}.Process(f, plugin.Params{"shift": 0.0}))
	r, g, b := f.At(0, 0)
	require.Equal(t, byte(200), r)
	require.Equal(t, byte(10), g)
	require.Equal(t, byte(10), b)
}

func TestHueShiftRedToGreen(t *testing.T) {
	f := frame.New(1, 1)
	f.Fill(255, 0, 0)

	// Red sits at 0 on the [0,180) hue channel, green at 60.
	require.NoError(t, hueShiftEffect{}.Process(f, plugin.Params{"shift": 60.0}))
	r, g, b := f.At(0, 0)
	require.Less(t, r, byte(20))
	require.Greater(t, g, byte(200))
	require.Less(t, b, byte(20))
}

func TestGammaIdentityAtOne(t *testing.T) {
	f := frame.New(1, 1)
	f.Fill(128, 64, 32)

	require.NoError(t, gammaEffect{}.Process(f, plugin.Params{"gamma": 1.0}))
	r, g, b := f.At(0, 0)
	require.Equal(t, byte(128), r)
	require.Equal(t, byte(64), g)
	require.Equal(t, byte(32), b)
}

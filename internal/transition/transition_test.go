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

package transition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

func TestEaseBounds(t *testing.T) {
	for _, name := range []Easing{EasingLinear, EasingEaseIn, EasingEaseOut, EasingEaseInOut} {
		require.Equal(t, 0.0, Ease(name, 0))
		require.InDelta(t, 1.0, Ease(name, 1), 1e-9)
		require.Equal(t, 0.0, Ease(name, -1))
		require.Equal(t, 1.0, Ease(name, 2))
	}
}

func TestEaseLinearIsIdentity(t *testing.T) {
	require.InDelta(t, 0.3, Ease(EasingLinear, 0.3), 1e-9)
}

func newTestRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	r := plugin.New(nil)
	r.Register(plugin.Metadata{ID: "builtin.crossfade", Name: "Crossfade", Kind: plugin.KindTransition},
		func(plugin.Params) (interface{}, error) { return crossfadeStub{}, nil })
	return r
}

type crossfadeStub struct{}

func (crossfadeStub) Blend(a, b *frame.Frame, progress float64, _ plugin.Params) (*frame.Frame, error) {
	out := frame.New(a.Width, a.Height)
	for i := range out.Pix {
		out.Pix[i] = byte(float64(a.Pix[i])*(1-progress) + float64(b.Pix[i])*progress)
	}
	return out, nil
}

func TestTransitionLifecycle(t *testing.T) {
	registry := newTestRegistry(t)

	outgoing := frame.New(2, 1)
	outgoing.Fill(100, 100, 100)
	incoming := frame.New(2, 1)
	incoming.Fill(200, 200, 200)

	tr, err := New(Config{PluginID: "builtin.crossfade", Duration: time.Second, Easing: EasingLinear}, outgoing, registry)
	require.NoError(t, err)
	require.False(t, tr.Done())
	require.Equal(t, 0.0, tr.Progress())

	tr.Advance(500 * time.Millisecond)
	require.InDelta(t, 0.5, tr.Progress(), 1e-9)
	require.False(t, tr.Done())

	blended, err := tr.Blend(incoming)
	require.NoError(t, err)
	require.Equal(t, byte(150), blended.Pix[0])

	tr.Advance(500 * time.Millisecond)
	require.True(t, tr.Done())
}

func TestTransitionUnknownPlugin(t *testing.T) {
	registry := newTestRegistry(t)
	outgoing := frame.New(1, 1)
	_, err := New(Config{PluginID: "builtin.missing", Duration: time.Second}, outgoing, registry)
	require.Error(t, err)
}

func TestTransitionZeroDurationIsImmediatelyDone(t *testing.T) {
	registry := newTestRegistry(t)
	outgoing := frame.New(1, 1)
	tr, err := New(Config{PluginID: "builtin.crossfade", Duration: 0}, outgoing, registry)
	require.NoError(t, err)
	require.Equal(t, 1.0, tr.Progress())
	require.True(t, tr.Done())
}

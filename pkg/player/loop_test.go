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

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lumenart/internal/frame"
	"lumenart/internal/framesource"
	"lumenart/internal/layer"
	"lumenart/internal/transition"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/plugin"
)

// exhaustingSource yields a fixed number of solid frames, then reports
// exhaustion until Reset.
type exhaustingSource struct {
	total   int
	served  int
	r, g, b byte
}

func (s *exhaustingSource) Initialize(context.Context) error { return nil }

func (s *exhaustingSource) NextFrame(context.Context) (*frame.Frame, time.Duration, error) {
	if s.served >= s.total {
		return nil, 0, framesource.ErrExhausted
	}
	s.served++
	f := frame.New(2, 2)
	f.Fill(s.r, s.g, s.b)
	return f, 0, nil
}

func (s *exhaustingSource) Reset(context.Context) error {
	s.served = 0
	return nil
}

func (s *exhaustingSource) Seek(context.Context, float64) error { return nil }
func (s *exhaustingSource) IsExhausted() bool                   { return s.served >= s.total }
func (s *exhaustingSource) Cleanup() error                      { return nil }

// S6: base-source exhaustion with a playlist successor advances to the
// next clip instead of stopping.
func TestExhaustionAdvancesPlaylist(t *testing.T) {
	registry := clipregistry.New()
	clipA := clipregistry.Register(registry, clipregistry.SourceDescriptor{}, 30)
	clipB := clipregistry.Register(registry, clipregistry.SourceDescriptor{}, 30)

	p := New(Config{
		ID: "video", Width: 2, Height: 2, FPS: 1000,
		Registry: registry, Plugins: plugin.New(nil),
	})
	p.SetPlaylist([]PlaylistItem{{ClipID: clipA}, {ClipID: clipB}})
	require.NoError(t, p.LoadClip(clipA))

	exhausted := &exhaustingSource{total: 0}
	p.layers[0].Source = exhausted

	_, advanced, err := p.fetchBaseFrame(context.Background(), p.layers[0])
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, clipB, p.Status().ClipID)
}

func TestExhaustionWithoutSuccessorStops(t *testing.T) {
	registry := clipregistry.New()
	clipA := clipregistry.Register(registry, clipregistry.SourceDescriptor{}, 30)

	p := New(Config{
		ID: "video", Width: 2, Height: 2, FPS: 1000,
		Registry: registry, Plugins: plugin.New(nil),
	})
	require.NoError(t, p.LoadClip(clipA))
	p.layers[0].Source = &exhaustingSource{total: 0}

	_, _, err := p.fetchBaseFrame(context.Background(), p.layers[0])
	require.ErrorIs(t, err, errStopPlayer)
}

// Overlay layers auto-loop at the master's tempo: exhaustion triggers
// reset-and-refetch, never playlist logic.
func TestOverlayAutoLoops(t *testing.T) {
	p := New(Config{ID: "video", Width: 2, Height: 2, FPS: 1000})

	src := &exhaustingSource{total: 1, r: 9}
	l := &layer.Layer{Source: src}

	f, _, err := p.fetchOverlayFrame(context.Background(), l)
	require.NoError(t, err)
	r, _, _ := f.At(0, 0)
	require.Equal(t, byte(9), r)

	f, looped, err := p.fetchOverlayFrame(context.Background(), l)
	require.NoError(t, err)
	require.True(t, looped)
	require.NotNil(t, f)
}

type testBlend struct{}

func (testBlend) Blend(a, b *frame.Frame, progress float64, _ plugin.Params) (*frame.Frame, error) {
	out := frame.New(a.Width, a.Height)
	for i := range out.Pix {
		out.Pix[i] = byte(float64(a.Pix[i])*(1-progress) + float64(b.Pix[i])*progress)
	}
	return out, nil
}

func TestApplyTransitionBlendsThenReleases(t *testing.T) {
	plugins := plugin.New(nil)
	plugins.Register(plugin.Metadata{ID: "test.fade", Kind: plugin.KindTransition},
		func(plugin.Params) (interface{}, error) { return testBlend{}, nil })

	p := New(Config{ID: "video", Width: 2, Height: 2, FPS: 10, Plugins: plugins})

	outgoing := frame.New(2, 2)
	outgoing.Fill(200, 0, 0)
	tr, err := transition.New(transition.Config{
		PluginID: "test.fade",
		Duration: time.Second,
		Easing:   transition.EasingLinear,
	}, outgoing, plugins)
	require.NoError(t, err)

	p.mu.Lock()
	p.activeTransition = tr
	p.mu.Unlock()

	incoming := frame.New(2, 2)
	incoming.Fill(0, 200, 0)

	// First tick: 0.1s of a 1s fade, mostly the outgoing frame.
	blended := p.applyTransition(incoming)
	r, g, _ := blended.At(0, 0)
	require.Greater(t, int(r), 150)
	require.Less(t, int(g), 50)

	// Drive the clock past the duration; the buffer is released and
	// the incoming frame passes through untouched.
	for i := 0; i < 10; i++ {
		blended = p.applyTransition(incoming)
	}
	require.True(t, frame.SameStorage(blended, incoming))

	p.mu.Lock()
	require.Nil(t, p.activeTransition)
	p.mu.Unlock()
}

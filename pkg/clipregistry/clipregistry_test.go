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

package clipregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesBaseLayer(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "/clips/a.mp4"}, 100)

	clip, err := r.Get(id)
	require.NoError(t, err)
	require.Len(t, clip.Layers, 1)
	require.Equal(t, 0, clip.Layers[0].Index)
	require.Equal(t, "/clips/a.mp4", clip.Layers[0].Source.Path)
}

func TestVersionIncrementsOnEveryMutator(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "a"}, 0)

	before, err := r.GetEffectsVersion(id)
	require.NoError(t, err)

	require.NoError(t, r.AddEffect(id, 0, "builtin.invert", nil))

	after, err := r.GetEffectsVersion(id)
	require.NoError(t, err)
	require.Greater(t, after, before)
}

func TestAddAndRemoveLayerReindexes(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "a"}, 0)

	idx1, err := r.AddLayer(id, SourceDescriptor{Path: "b"}, BlendAdd, 100)
	require.NoError(t, err)
	require.Equal(t, 1, idx1)

	idx2, err := r.AddLayer(id, SourceDescriptor{Path: "c"}, BlendAdd, 100)
	require.NoError(t, err)
	require.Equal(t, 2, idx2)

	require.NoError(t, r.RemoveLayer(id, 1))

	clip, err := r.Get(id)
	require.NoError(t, err)
	require.Len(t, clip.Layers, 2)
	require.Equal(t, "c", clip.Layers[1].Source.Path)
	require.Equal(t, 1, clip.Layers[1].Index)
}

func TestRemoveBaseLayerFails(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "a"}, 0)
	err := r.RemoveLayer(id, 0)
	require.ErrorIs(t, err, ErrBaseLayerRequired)
}

func TestRemoveEffectIsPositionStable(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "a"}, 0)

	require.NoError(t, r.AddEffect(id, 0, "e1", nil))
	require.NoError(t, r.AddEffect(id, 0, "e2", nil))
	require.NoError(t, r.AddEffect(id, 0, "e3", nil))

	require.NoError(t, r.RemoveEffect(id, 0, 0))

	clip, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, []string{"e2", "e3"}, []string{clip.Layers[0].Effects[0].PluginID, clip.Layers[0].Effects[1].PluginID})
}

func TestUpdateEffectParameter(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "a"}, 0)
	require.NoError(t, r.AddEffect(id, 0, "builtin.hue_shift", nil))

	require.NoError(t, r.UpdateEffectParameter(id, 0, 0, "shift", 90.0))

	clip, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, 90.0, clip.Layers[0].Effects[0].Params["shift"])
}

func TestGetNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	require.ErrorIs(t, err, ErrClipNotExist)
}

func TestUnregister(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "a"}, 0)
	require.NoError(t, r.Unregister(id))

	_, err := r.Get(id)
	require.ErrorIs(t, err, ErrClipNotExist)
}

func TestSetTransport(t *testing.T) {
	r := New()
	id := Register(r, SourceDescriptor{Path: "a"}, 100)

	require.NoError(t, r.SetTransport(id, Transport{InPoint: 5, OutPoint: 90, Reverse: true}))

	clip, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, Transport{InPoint: 5, OutPoint: 90, Reverse: true}, clip.Transport)
}

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

package layer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"lumenart/internal/frame"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/plugin"
)

type countingEffect struct{ calls *int }

func (e countingEffect) Process(*frame.Frame, plugin.Params) error {
	*e.calls++
	return nil
}

func newTestRegistry(calls *int) *plugin.Registry {
	r := plugin.New(nil)
	r.Register(plugin.Metadata{ID: "test.count", Kind: plugin.KindEffect}, func(plugin.Params) (interface{}, error) {
		return countingEffect{calls: calls}, nil
	})
	return r
}

func TestChainCacheReusesInstanceAcrossFrames(t *testing.T) {
	calls := 0
	registry := newTestRegistry(&calls)
	chain := []clipregistry.EffectRef{{PluginID: "test.count"}}

	var cache ChainCache
	f := frame.New(1, 1)
	cache.Apply(f, chain, registry)
	cache.Apply(f, chain, registry)
	cache.Apply(f, chain, registry)

	require.Equal(t, 3, calls)
	require.Len(t, cache.entries, 1)
	require.NotNil(t, cache.entries[0].instance)
}

type failingEffect struct{}

func (failingEffect) Process(*frame.Frame, plugin.Params) error { return errors.New("boom") }

func TestChainCacheDisablesAfterConsecutiveFailures(t *testing.T) {
	registry := plugin.New(nil)
	registry.Register(plugin.Metadata{ID: "test.fail", Kind: plugin.KindEffect}, func(plugin.Params) (interface{}, error) {
		return failingEffect{}, nil
	})
	chain := []clipregistry.EffectRef{{PluginID: "test.fail"}}

	var cache ChainCache
	f := frame.New(1, 1)
	var lastFailures []EffectFailure
	for i := 0; i < maxConsecutiveFailures; i++ {
		lastFailures = cache.Apply(f, chain, registry)
	}

	require.True(t, cache.entries[0].disabled)
	require.True(t, lastFailures[0].Disabled)
}

// Property 1: version invalidation. A TargetCache whose (clipID,
// version) matches the clip's previous version must reload on the
// next EnsureFresh call once the clip's version counter advances.
func TestTargetCacheInvalidatesOnVersionBump(t *testing.T) {
	registry := clipregistry.New()
	id := clipregistry.Register(registry, clipregistry.SourceDescriptor{}, 0)

	before, err := registry.GetEffectsVersion(id)
	require.NoError(t, err)

	var cache TargetCache
	cache.EnsureFresh(id, before)
	cache.Chain.entries = []chainEntry{{pluginID: "stale", instance: countingEffect{calls: new(int)}}}

	require.NoError(t, registry.AddGlobalEffect(id, "video", "builtin.invert", nil))

	after, err := registry.GetEffectsVersion(id)
	require.NoError(t, err)
	require.Greater(t, after, before)

	cache.EnsureFresh(id, after)
	require.Empty(t, cache.Chain.entries)
}

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

// Package layer implements layer compositing and the effect chain
// runner shared by per-layer local chains and the player's per-target
// global chains.
package layer

import (
	"lumenart/internal/frame"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/plugin"
)

const maxConsecutiveFailures = 10

type chainEntry struct {
	pluginID  string
	instance  plugin.Effect
	failCount int
	disabled  bool
}

// ChainCache holds the instantiated, order-matched plugin instances
// for one effect chain. It is owned by whichever object the chain
// belongs to (a Layer, or one of the Player's two target chains) and
// has no external reader.
type ChainCache struct {
	entries []chainEntry
}

// EffectFailure describes one effect that failed during Apply; the
// caller logs it and counts it toward the plugin's session-wide
// disable threshold.
type EffectFailure struct {
	PluginID string
	Err      error
	Disabled bool
}

// Apply walks chain in order, resolving each entry from cache or
// instantiating it through registry on a miss, and runs it against f.
// A plugin that returns an error is skipped for this frame; its
// cached instance survives so the retry budget is tracked across
// calls, and after maxConsecutiveFailures consecutive failures the
// entry is disabled for as long as this cache keeps it.
func (c *ChainCache) Apply(f *frame.Frame, chain []clipregistry.EffectRef, registry *plugin.Registry) []EffectFailure {
	if len(c.entries) != len(chain) {
		c.entries = make([]chainEntry, len(chain))
	}

	var failures []EffectFailure
	for i, ref := range chain {
		entry := &c.entries[i]
		if entry.pluginID != ref.PluginID {
			*entry = chainEntry{pluginID: ref.PluginID}
		}

		if entry.instance == nil && !entry.disabled {
			inst, err := registry.Instantiate(ref.PluginID, plugin.Params(ref.Params))
			if err != nil {
				failures = append(failures, EffectFailure{PluginID: ref.PluginID, Err: err})
				continue
			}
			effect, ok := inst.(plugin.Effect)
			if !ok {
				failures = append(failures, EffectFailure{PluginID: ref.PluginID, Err: errNotAnEffect(ref.PluginID)})
				continue
			}
			entry.instance = effect
		}

		if entry.disabled || entry.instance == nil {
			continue
		}

		if err := entry.instance.Process(f, plugin.Params(ref.Params)); err != nil {
			entry.failCount++
			if entry.failCount >= maxConsecutiveFailures {
				entry.disabled = true
			}
			failures = append(failures, EffectFailure{PluginID: ref.PluginID, Err: err, Disabled: entry.disabled})
			continue
		}
		entry.failCount = 0
	}
	return failures
}

type notAnEffectError string

func (e notAnEffectError) Error() string { return "plugin " + string(e) + " does not implement Effect" }
func errNotAnEffect(id string) error     { return notAnEffectError(id) }

// TargetCache additionally gates rebuilding the whole chain on the
// clip's effects version, matching the player's per-target cache
// (clipID, version) tuple the play loop checks every tick.
type TargetCache struct {
	ClipID  string
	Version int64
	Chain   ChainCache
}

// EnsureFresh reloads the chain's instances when the clip id or
// effects version has changed since the last call; a cache hit is a
// no-op.
func (t *TargetCache) EnsureFresh(clipID string, version int64) {
	if t.ClipID == clipID && t.Version == version {
		return
	}
	t.ClipID = clipID
	t.Version = version
	t.Chain = ChainCache{}
}

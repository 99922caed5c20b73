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

// Package clipregistry is the authoritative clip-id → {layers,
// effects, transport} store. It generalizes the engine's
// group manager (a mutex-guarded map of configs keyed by id) into a
// versioned store where every mutator bumps a per-clip counter that
// players use to invalidate their effect-chain cache.
package clipregistry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// BlendMode is one of the six compositing modes a layer can use.
type BlendMode string

// Blend modes.
const (
	BlendNormal   BlendMode = "normal"
	BlendMultiply BlendMode = "multiply"
	BlendScreen   BlendMode = "screen"
	BlendOverlay  BlendMode = "overlay"
	BlendAdd      BlendMode = "add"
	BlendSubtract BlendMode = "subtract"
)

// SourceDescriptor identifies a frame source: either a filesystem path
// (VideoDecode/Stream/Webcam/Screencapture) or a generator id with its
// own parameters.
type SourceDescriptor struct {
	Path            string                 `json:"path,omitempty"`
	GeneratorID     string                 `json:"generatorId,omitempty"`
	GeneratorParams map[string]interface{} `json:"generatorParams,omitempty"`
}

// EffectRef is one entry in a layer's ordered effect chain: a plugin
// id plus its parameter map. The instantiated handle is cached by the
// Effect Chain Runner (internal/layer), not stored here.
type EffectRef struct {
	PluginID string                 `json:"pluginId"`
	Params   map[string]interface{} `json:"params"`
}

// LayerSpec is one stacked layer of a clip.
// Index 0 is the immutable base layer.
type LayerSpec struct {
	Index   int              `json:"index"`
	Source  SourceDescriptor `json:"source"`
	Effects []EffectRef      `json:"effects"`
	Blend   BlendMode        `json:"blend"`
	Opacity int              `json:"opacity"` // 0-100
	Enabled bool             `json:"enabled"`
}

// Transport holds a clip's in/out points and playback direction.
type Transport struct {
	InPoint  int  `json:"inPoint"`
	OutPoint int  `json:"outPoint"`
	Reverse  bool `json:"reverse"`
}

// Clip is one registered playable unit.
type Clip struct {
	ID         string           `json:"id"`
	Source     SourceDescriptor `json:"source"`
	FrameCount int              `json:"frameCount"` // 0 if unknown
	Transport  Transport        `json:"transport"`
	Layers     []LayerSpec      `json:"layers"`

	// GlobalEffects holds the player's per-target ("video"/"artnet")
	// effect chains for this clip. A player's cached instantiated
	// chain for a target is keyed on this same clip's version
	// counter, so chain-level (not layer-level) effect mutations live
	// here rather than on the Player itself.
	GlobalEffects map[string][]EffectRef `json:"globalEffects"`

	version atomic.Int64
}

// snapshot returns a value copy of the clip safe to hand to callers.
func (c *Clip) snapshot() Clip {
	layers := make([]LayerSpec, len(c.Layers))
	copy(layers, c.Layers)
	for i, l := range layers {
		effects := make([]EffectRef, len(l.Effects))
		copy(effects, l.Effects)
		layers[i].Effects = effects
	}
	global := make(map[string][]EffectRef, len(c.GlobalEffects))
	for target, chain := range c.GlobalEffects {
		cp := make([]EffectRef, len(chain))
		copy(cp, chain)
		global[target] = cp
	}
	return Clip{
		ID:            c.ID,
		Source:        c.Source,
		FrameCount:    c.FrameCount,
		Transport:     c.Transport,
		Layers:        layers,
		GlobalEffects: global,
	}
}

// Version returns the clip's current effects version. O(1), and
// intentionally implemented as an atomic load rather than under the
// registry mutex.
func (c *Clip) Version() int64 { return c.version.Load() }

// ErrClipNotExist is returned when a clip-id has no registered clip.
var ErrClipNotExist = errors.New("clip does not exist")

// ErrInvalidLayerIndex is returned for out-of-range layer operations.
var ErrInvalidLayerIndex = errors.New("invalid layer index")

// ErrBaseLayerRequired is returned when an operation would remove
// layer 0 or leave a clip without it.
var ErrBaseLayerRequired = errors.New("layer 0 is required and cannot be removed")

// Registry is the clip-id → Clip store. A single short-critical-
// section mutex protects the map and each clip's record fields.
type Registry struct {
	mu    sync.Mutex
	clips map[string]*Clip
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{clips: make(map[string]*Clip)}
}

// Register creates a new clip with a single base layer (index 0,
// source = the clip's base source) and returns its generated id.
func Register(r *Registry, source SourceDescriptor, frameCount int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.clips[id] = &Clip{
		ID:         id,
		Source:     source,
		FrameCount: frameCount,
		Layers: []LayerSpec{
			{Index: 0, Source: source, Blend: BlendNormal, Opacity: 100, Enabled: true},
		},
		GlobalEffects: map[string][]EffectRef{},
	}
	return id
}

// Unregister destroys a clip record. Clips are only ever destroyed by
// this explicit call, never by a player swapping away from them.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clips[id]; !ok {
		return ErrClipNotExist
	}
	delete(r.clips, id)
	return nil
}

// Get returns a value-copy snapshot of the clip for read-only use.
func (r *Registry) Get(id string) (Clip, error) {
	r.mu.Lock()
	c, ok := r.clips[id]
	r.mu.Unlock()
	if !ok {
		return Clip{}, ErrClipNotExist
	}
	return c.snapshot(), nil
}

// GetEffectsVersion returns the clip's current version. The registry
// mutex is held only for the map lookup; the version itself is an
// atomic load.
func (r *Registry) GetEffectsVersion(id string) (int64, error) {
	r.mu.Lock()
	c, ok := r.clips[id]
	r.mu.Unlock()
	if !ok {
		return 0, ErrClipNotExist
	}
	return c.Version(), nil
}

// List returns every registered clip-id.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.clips))
	for id := range r.clips {
		ids = append(ids, id)
	}
	return ids
}

// Dump returns a value copy of every registered clip, used by the
// engine snapshot document.
func (r *Registry) Dump() []Clip {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Clip, 0, len(r.clips))
	for _, c := range r.clips {
		out = append(out, c.snapshot())
	}
	return out
}

// RestoreAll replaces the registry's contents with the given clip
// records, keeping their ids. Version counters restart at zero. Because
// ids are kept, the clip-id check does not invalidate a player's cache;
// the cache is rebuilt when the version differs or when the player
// reloads the clip (player.Manager.Restore reloads every snapshotted
// clip, which resets the player's caches).
func (r *Registry) RestoreAll(clips []Clip) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clips = make(map[string]*Clip, len(clips))
	for i := range clips {
		restored := clips[i].snapshot()
		if restored.GlobalEffects == nil {
			restored.GlobalEffects = map[string][]EffectRef{}
		}
		clip := &Clip{
			ID:            restored.ID,
			Source:        restored.Source,
			FrameCount:    restored.FrameCount,
			Transport:     restored.Transport,
			Layers:        restored.Layers,
			GlobalEffects: restored.GlobalEffects,
		}
		r.clips[clip.ID] = clip
	}
}

func (r *Registry) lockedClip(id string) (*Clip, error) {
	c, ok := r.clips[id]
	if !ok {
		return nil, ErrClipNotExist
	}
	return c, nil
}

// AddLayer appends a new overlay layer and bumps the version.
func (r *Registry) AddLayer(id string, source SourceDescriptor, blend BlendMode, opacity int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return 0, err
	}

	index := len(c.Layers)
	c.Layers = append(c.Layers, LayerSpec{
		Index: index, Source: source, Blend: blend, Opacity: opacity, Enabled: true,
	})
	c.version.Add(1)
	return index, nil
}

// RemoveLayer removes a non-base layer, shifting higher indices down.
func (r *Registry) RemoveLayer(id string, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if index == 0 {
		return ErrBaseLayerRequired
	}
	if index < 0 || index >= len(c.Layers) {
		return ErrInvalidLayerIndex
	}

	c.Layers = append(c.Layers[:index], c.Layers[index+1:]...)
	for i := range c.Layers {
		c.Layers[i].Index = i
	}
	c.version.Add(1)
	return nil
}

// ReorderLayers applies a new layer ordering given as a permutation of
// existing indices; index 0 must remain first.
func (r *Registry) ReorderLayers(id string, order []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if len(order) != len(c.Layers) {
		return fmt.Errorf("order length %d does not match layer count %d", len(order), len(c.Layers))
	}
	if order[0] != 0 {
		return ErrBaseLayerRequired
	}

	newLayers := make([]LayerSpec, len(c.Layers))
	seen := make(map[int]bool, len(order))
	for newIdx, oldIdx := range order {
		if oldIdx < 0 || oldIdx >= len(c.Layers) || seen[oldIdx] {
			return ErrInvalidLayerIndex
		}
		seen[oldIdx] = true
		newLayers[newIdx] = c.Layers[oldIdx]
		newLayers[newIdx].Index = newIdx
	}
	c.Layers = newLayers
	c.version.Add(1)
	return nil
}

// UpdateLayerConfig replaces a layer's blend mode, opacity and
// enabled flag.
func (r *Registry) UpdateLayerConfig(id string, index int, blend BlendMode, opacity int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(c.Layers) {
		return ErrInvalidLayerIndex
	}

	c.Layers[index].Blend = blend
	c.Layers[index].Opacity = opacity
	c.Layers[index].Enabled = enabled
	c.version.Add(1)
	return nil
}

// AddEffect appends an effect to a layer's chain.
func (r *Registry) AddEffect(id string, layerIndex int, pluginID string, params map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if layerIndex < 0 || layerIndex >= len(c.Layers) {
		return ErrInvalidLayerIndex
	}

	c.Layers[layerIndex].Effects = append(c.Layers[layerIndex].Effects, EffectRef{
		PluginID: pluginID, Params: params,
	})
	c.version.Add(1)
	return nil
}

// RemoveEffect removes an effect by index, shifting the remainder
// down.
func (r *Registry) RemoveEffect(id string, layerIndex, effectIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if layerIndex < 0 || layerIndex >= len(c.Layers) {
		return ErrInvalidLayerIndex
	}
	effects := c.Layers[layerIndex].Effects
	if effectIndex < 0 || effectIndex >= len(effects) {
		return fmt.Errorf("invalid effect index %d", effectIndex)
	}

	c.Layers[layerIndex].Effects = append(effects[:effectIndex], effects[effectIndex+1:]...)
	c.version.Add(1)
	return nil
}

// UpdateEffectParameter sets a single named parameter on an effect.
func (r *Registry) UpdateEffectParameter(id string, layerIndex, effectIndex int, name string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if layerIndex < 0 || layerIndex >= len(c.Layers) {
		return ErrInvalidLayerIndex
	}
	effects := c.Layers[layerIndex].Effects
	if effectIndex < 0 || effectIndex >= len(effects) {
		return fmt.Errorf("invalid effect index %d", effectIndex)
	}

	if effects[effectIndex].Params == nil {
		effects[effectIndex].Params = make(map[string]interface{})
	}
	effects[effectIndex].Params[name] = value
	c.version.Add(1)
	return nil
}

// SetTransport replaces a clip's transport metadata.
func (r *Registry) SetTransport(id string, transport Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	c.Transport = transport
	c.version.Add(1)
	return nil
}

// ErrInvalidTarget is returned for a global effect-chain operation
// against a target other than "video" or "artnet".
var ErrInvalidTarget = errors.New("effect target must be \"video\" or \"artnet\"")

func validTarget(target string) bool {
	return target == "video" || target == "artnet"
}

// AddGlobalEffect appends an effect to one of the clip's two
// target-level chains").
func (r *Registry) AddGlobalEffect(id, target, pluginID string, params map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if !validTarget(target) {
		return ErrInvalidTarget
	}

	c.GlobalEffects[target] = append(c.GlobalEffects[target], EffectRef{PluginID: pluginID, Params: params})
	c.version.Add(1)
	return nil
}

// RemoveGlobalEffect removes one entry from a target chain by index.
func (r *Registry) RemoveGlobalEffect(id, target string, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if !validTarget(target) {
		return ErrInvalidTarget
	}
	chain := c.GlobalEffects[target]
	if index < 0 || index >= len(chain) {
		return fmt.Errorf("invalid effect index %d", index)
	}

	c.GlobalEffects[target] = append(chain[:index], chain[index+1:]...)
	c.version.Add(1)
	return nil
}

// UpdateGlobalEffectParameter sets a single named parameter on a
// target chain's effect.
func (r *Registry) UpdateGlobalEffectParameter(id, target string, index int, name string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if !validTarget(target) {
		return ErrInvalidTarget
	}
	chain := c.GlobalEffects[target]
	if index < 0 || index >= len(chain) {
		return fmt.Errorf("invalid effect index %d", index)
	}
	if chain[index].Params == nil {
		chain[index].Params = make(map[string]interface{})
	}
	chain[index].Params[name] = value
	c.version.Add(1)
	return nil
}

// ClearGlobalEffectChain empties one of the clip's target chains.
func (r *Registry) ClearGlobalEffectChain(id, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return err
	}
	if !validTarget(target) {
		return ErrInvalidTarget
	}
	c.GlobalEffects[target] = nil
	c.version.Add(1)
	return nil
}

// GlobalEffectChain returns a value copy of one of the clip's target
// chains.
func (r *Registry) GlobalEffectChain(id, target string) ([]EffectRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lockedClip(id)
	if err != nil {
		return nil, err
	}
	chain := c.GlobalEffects[target]
	out := make([]EffectRef, len(chain))
	copy(out, chain)
	return out, nil
}

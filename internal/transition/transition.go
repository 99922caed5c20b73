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

// Package transition drives a clip-to-clip crossfade: it buffers the
// outgoing clip's last composed frame and calls a Transition plugin's
// blend contract once per tick until the configured duration elapses.
package transition

import (
	"fmt"
	"time"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

// Easing names the progress-shaping curve applied to elapsed/duration
// before it reaches the transition plugin.
type Easing string

// Easing curves.
const (
	EasingLinear    Easing = "linear"
	EasingEaseIn    Easing = "ease_in"
	EasingEaseOut   Easing = "ease_out"
	EasingEaseInOut Easing = "ease_in_out"
)

// Ease maps t (clamped to [0,1]) through the named easing curve.
func Ease(name Easing, t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	switch name {
	case EasingEaseIn:
		return t * t
	case EasingEaseOut:
		return t * (2 - t)
	case EasingEaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		return -1 + (4-2*t)*t
	case EasingLinear:
		fallthrough
	default:
		return t
	}
}

// Config describes a configured transition: which plugin performs the
// blend, how long it runs, and which easing shapes its progress.
type Config struct {
	PluginID string
	Duration time.Duration
	Easing   Easing
	Params   plugin.Params
}

// Transition tracks one in-flight clip-to-clip blend.
type Transition struct {
	cfg      Config
	buffer   *frame.Frame
	instance plugin.Transition
	elapsed  time.Duration
}

// New instantiates the configured plugin from registry and captures
// outgoingLastFrame as the transition buffer.
func New(cfg Config, outgoingLastFrame *frame.Frame, registry *plugin.Registry) (*Transition, error) {
	inst, err := registry.Instantiate(cfg.PluginID, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("could not instantiate transition plugin: %w", err)
	}
	t, ok := inst.(plugin.Transition)
	if !ok {
		return nil, fmt.Errorf("plugin %q is not a Transition", cfg.PluginID)
	}
	return &Transition{
		cfg:      cfg,
		buffer:   outgoingLastFrame.Clone(),
		instance: t,
	}, nil
}

// Advance moves the transition's clock forward by dt.
func (t *Transition) Advance(dt time.Duration) {
	t.elapsed += dt
}

// Done reports whether elapsed has reached the configured duration;
// at that point the buffer is released and normal playback resumes.
func (t *Transition) Done() bool {
	return t.elapsed >= t.cfg.Duration
}

// Progress returns the eased progress value in [0,1] for the current
// elapsed time.
func (t *Transition) Progress() float64 {
	if t.cfg.Duration <= 0 {
		return 1
	}
	return Ease(t.cfg.Easing, float64(t.elapsed)/float64(t.cfg.Duration))
}

// Blend composes the buffered outgoing frame with incoming at the
// current progress.
func (t *Transition) Blend(incoming *frame.Frame) (*frame.Frame, error) {
	return t.instance.Blend(t.buffer, incoming, t.Progress(), t.cfg.Params)
}

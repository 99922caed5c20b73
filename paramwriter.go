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

package lumenart

import (
	"fmt"

	"lumenart/pkg/clipregistry"
	"lumenart/pkg/player"
	"lumenart/pkg/sequence"
)

// paramWriter resolves sequence target paths against the live object
// graph. Supported forms:
//
//	player.<id>.brightness | hue_shift | speed | fps
//	player.<id>.<video|artnet>.effects[i].<param>
//	player.<id>.clip.effects[i].<param>          (alias for the video chain)
//	clip.<uuid>.layers[j].effects[i].<param>
//
// Resolution happens on every write, so a path that stops resolving
// (player removed, clip unloaded, effect index out of range) fails the
// sequence without touching the rest of the engine.
type paramWriter struct {
	players *player.Manager
	clips   *clipregistry.Registry
}

func (w *paramWriter) SetParam(path sequence.Path, value float64) error {
	if len(path) < 3 {
		return fmt.Errorf("path too short: %q", path)
	}

	switch path[0].Name {
	case "player":
		return w.setPlayerParam(path, value)
	case "clip":
		return w.setClipParam(path, value)
	default:
		return fmt.Errorf("unknown path root %q", path[0].Name)
	}
}

func (w *paramWriter) setPlayerParam(path sequence.Path, value float64) error {
	p, ok := w.players.Get(path[1].Name)
	if !ok {
		return fmt.Errorf("player %q does not exist", path[1].Name)
	}

	if len(path) == 3 && path[2].Index < 0 {
		switch path[2].Name {
		case "brightness":
			return p.SetBrightness(value)
		case "hue_shift":
			return p.SetHueShift(value)
		case "speed":
			return p.SetSpeed(value)
		case "fps":
			return p.SetFPS(int(value))
		}
		return fmt.Errorf("unknown player parameter %q", path[2].Name)
	}

	// player.<id>.<target>.effects[i].<param>
	if len(path) != 5 || path[3].Name != "effects" || path[3].Index < 0 {
		return fmt.Errorf("unresolvable player path %q", path)
	}
	target := path[2].Name
	if target == "clip" {
		target = "video"
	}

	clipID := p.Status().ClipID
	if clipID == "" {
		return fmt.Errorf("player %q has no clip loaded", path[1].Name)
	}
	return w.clips.UpdateGlobalEffectParameter(
		clipID, target, path[3].Index, path[4].Name, value)
}

func (w *paramWriter) setClipParam(path sequence.Path, value float64) error {
	// clip.<uuid>.layers[j].effects[i].<param>
	if len(path) != 5 ||
		path[2].Name != "layers" || path[2].Index < 0 ||
		path[3].Name != "effects" || path[3].Index < 0 {
		return fmt.Errorf("unresolvable clip path %q", path)
	}
	return w.clips.UpdateEffectParameter(
		path[1].Name, path[2].Index, path[3].Index, path[4].Name, value)
}

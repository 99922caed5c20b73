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

package sequence

import (
	"fmt"
	"sort"
	"time"
)

// Interpolation names how values between two keyframes are computed.
type Interpolation string

// Keyframe interpolation modes.
const (
	InterpLinear    Interpolation = "linear"
	InterpEaseIn    Interpolation = "ease_in"
	InterpEaseOut   Interpolation = "ease_out"
	InterpEaseInOut Interpolation = "ease_in_out"
	InterpStep      Interpolation = "step"
)

// LoopMode names what happens when the timeline's last keyframe is
// passed.
type LoopMode string

// Timeline loop modes.
const (
	LoopOnce     LoopMode = "once"
	LoopRepeat   LoopMode = "loop"
	LoopPingPong LoopMode = "ping-pong"
)

// Keyframe is one (time, value) pair; values are in [0, 1].
type Keyframe struct {
	Time  float64 `json:"time"` // seconds from timeline start
	Value float64 `json:"value"`
}

// TimelineConfig describes a keyframed sequence.
type TimelineConfig struct {
	Keyframes     []Keyframe    `json:"keyframes"`
	Interpolation Interpolation `json:"interpolation"`
	Loop          LoopMode      `json:"loop"`
}

// Timeline interpolates between an ordered keyframe list.
type Timeline struct {
	cfg      TimelineConfig
	duration float64
}

// NewTimeline validates cfg, sorts its keyframes by time, and returns
// a Timeline.
func NewTimeline(cfg TimelineConfig) (*Timeline, error) {
	if len(cfg.Keyframes) == 0 {
		return nil, fmt.Errorf("timeline requires at least one keyframe")
	}
	switch cfg.Interpolation {
	case InterpLinear, InterpEaseIn, InterpEaseOut, InterpEaseInOut, InterpStep:
	default:
		return nil, fmt.Errorf("unknown interpolation %q", cfg.Interpolation)
	}
	switch cfg.Loop {
	case LoopOnce, LoopRepeat, LoopPingPong:
	default:
		return nil, fmt.Errorf("unknown loop mode %q", cfg.Loop)
	}

	keyframes := make([]Keyframe, len(cfg.Keyframes))
	copy(keyframes, cfg.Keyframes)
	sort.Slice(keyframes, func(i, j int) bool {
		return keyframes[i].Time < keyframes[j].Time
	})
	cfg.Keyframes = keyframes

	return &Timeline{
		cfg:      cfg,
		duration: keyframes[len(keyframes)-1].Time,
	}, nil
}

// Value returns the interpolated keyframe value at time t.
func (tl *Timeline) Value(t time.Duration) float64 {
	seconds := tl.wrap(t.Seconds())
	frames := tl.cfg.Keyframes

	if seconds <= frames[0].Time {
		return frames[0].Value
	}
	last := frames[len(frames)-1]
	if seconds >= last.Time {
		return last.Value
	}

	// Find the surrounding keyframe pair.
	i := sort.Search(len(frames), func(i int) bool {
		return frames[i].Time > seconds
	})
	a, b := frames[i-1], frames[i]

	if tl.cfg.Interpolation == InterpStep {
		return a.Value
	}

	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	progress := ease(tl.cfg.Interpolation, (seconds-a.Time)/span)
	return a.Value + (b.Value-a.Value)*progress
}

// wrap maps absolute seconds into timeline-local time according to the
// loop mode.
func (tl *Timeline) wrap(seconds float64) float64 {
	if tl.duration <= 0 {
		return 0
	}
	switch tl.cfg.Loop {
	case LoopRepeat:
		wrapped := seconds
		for wrapped >= tl.duration {
			wrapped -= tl.duration
		}
		return wrapped
	case LoopPingPong:
		period := 2 * tl.duration
		wrapped := seconds
		for wrapped >= period {
			wrapped -= period
		}
		if wrapped > tl.duration {
			return period - wrapped
		}
		return wrapped
	default: // LoopOnce
		if seconds > tl.duration {
			return tl.duration
		}
		return seconds
	}
}

func ease(mode Interpolation, t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	switch mode {
	case InterpEaseIn:
		return t * t
	case InterpEaseOut:
		return t * (2 - t)
	case InterpEaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		return -1 + (4-2*t)*t
	default:
		return t
	}
}

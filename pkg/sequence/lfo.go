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
	"math"
	"math/rand"
	"time"
)

// Waveform names an LFO shape.
type Waveform string

// LFO waveforms.
const (
	WaveSine       Waveform = "sine"
	WaveSquare     Waveform = "square"
	WaveTriangle   Waveform = "triangle"
	WaveSaw        Waveform = "saw"
	WaveRandomHold Waveform = "random_hold"
)

// LFOConfig describes a low-frequency oscillator.
type LFOConfig struct {
	Waveform  Waveform `json:"waveform"`
	Frequency float64  `json:"frequency"` // Hz
	Phase     float64  `json:"phase"`     // cycles, 0-1
}

// LFO produces a periodic value in [0, 1].
type LFO struct {
	cfg LFOConfig

	// random_hold state: one random level per cycle.
	holdCycle int64
	holdValue float64
	rng       *rand.Rand
}

// NewLFO validates cfg and returns an LFO.
func NewLFO(cfg LFOConfig) (*LFO, error) {
	switch cfg.Waveform {
	case WaveSine, WaveSquare, WaveTriangle, WaveSaw, WaveRandomHold:
	default:
		return nil, fmt.Errorf("unknown waveform %q", cfg.Waveform)
	}
	if cfg.Frequency <= 0 {
		return nil, fmt.Errorf("frequency must be positive, got %v", cfg.Frequency)
	}
	return &LFO{
		cfg:       cfg,
		holdCycle: -1,
		rng:       rand.New(rand.NewSource(int64(cfg.Frequency * 1e6))), //nolint:gosec
	}, nil
}

// Value returns the waveform's level in [0, 1] at time t.
func (l *LFO) Value(t time.Duration) float64 {
	cycles := t.Seconds()*l.cfg.Frequency + l.cfg.Phase
	phase := cycles - math.Floor(cycles) // 0-1 within the current cycle

	switch l.cfg.Waveform {
	case WaveSine:
		return 0.5 + 0.5*math.Sin(2*math.Pi*phase)
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return 0
	case WaveTriangle:
		if phase < 0.5 {
			return 2 * phase
		}
		return 2 - 2*phase
	case WaveSaw:
		return phase
	case WaveRandomHold:
		cycle := int64(math.Floor(cycles))
		if cycle != l.holdCycle {
			l.holdCycle = cycle
			l.holdValue = l.rng.Float64()
		}
		return l.holdValue
	}
	return 0
}

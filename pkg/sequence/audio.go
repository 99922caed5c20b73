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
	"sync"
	"time"
)

// AudioFeatures is one snapshot of the audio analyzer's output. All
// level features are normalized to [0, 1].
type AudioFeatures struct {
	RMS    float64
	Peak   float64
	Bass   float64
	Mid    float64
	Treble float64
	Beat   bool
	BPM    float64
}

// Analyzer holds the most recent feature snapshot behind a mutex. The
// audio thread writes it; audio sequences read it each tick.
type Analyzer struct {
	mu       sync.Mutex
	features AudioFeatures
}

// NewAnalyzer returns an Analyzer with zeroed features.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Update replaces the current feature snapshot.
func (a *Analyzer) Update(f AudioFeatures) {
	a.mu.Lock()
	a.features = f
	a.mu.Unlock()
}

// Snapshot returns a value copy of the current features.
func (a *Analyzer) Snapshot() AudioFeatures {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.features
}

// Feature names an audio feature an audio sequence can track.
type Feature string

// Audio features.
const (
	FeatureRMS    Feature = "rms"
	FeaturePeak   Feature = "peak"
	FeatureBass   Feature = "bass"
	FeatureMid    Feature = "mid"
	FeatureTreble Feature = "treble"
	FeatureBeat   Feature = "beat"
	FeatureBPM    Feature = "bpm"
)

// AudioConfig describes an audio-reactive sequence: which feature it
// follows and how fast it attacks and releases. Attack and Release are
// one-pole smoothing coefficients in (0, 1]; 1 follows instantly.
type AudioConfig struct {
	Feature Feature `json:"feature"`
	Attack  float64 `json:"attack"`
	Release float64 `json:"release"`
}

// AudioSource follows one analyzer feature through an asymmetric
// one-pole low-pass.
type AudioSource struct {
	cfg      AudioConfig
	analyzer *Analyzer
	smoothed float64
}

// DefaultAnalyzer is the analyzer audio sequences read from unless one
// is injected; the engine wires the audio thread to it at startup.
var DefaultAnalyzer = NewAnalyzer()

// NewAudioSource validates cfg and returns an AudioSource reading from
// DefaultAnalyzer.
func NewAudioSource(cfg AudioConfig) (*AudioSource, error) {
	switch cfg.Feature {
	case FeatureRMS, FeaturePeak, FeatureBass, FeatureMid, FeatureTreble, FeatureBeat, FeatureBPM:
	default:
		return nil, fmt.Errorf("unknown audio feature %q", cfg.Feature)
	}
	if cfg.Attack <= 0 || cfg.Attack > 1 {
		return nil, fmt.Errorf("attack must be in (0, 1], got %v", cfg.Attack)
	}
	if cfg.Release <= 0 || cfg.Release > 1 {
		return nil, fmt.Errorf("release must be in (0, 1], got %v", cfg.Release)
	}
	return &AudioSource{cfg: cfg, analyzer: DefaultAnalyzer}, nil
}

// SetAnalyzer replaces the analyzer this source reads from.
func (s *AudioSource) SetAnalyzer(a *Analyzer) { s.analyzer = a }

func (s *AudioSource) rawValue() float64 {
	f := s.analyzer.Snapshot()
	switch s.cfg.Feature {
	case FeatureRMS:
		return f.RMS
	case FeaturePeak:
		return f.Peak
	case FeatureBass:
		return f.Bass
	case FeatureMid:
		return f.Mid
	case FeatureTreble:
		return f.Treble
	case FeatureBeat:
		if f.Beat {
			return 1
		}
		return 0
	case FeatureBPM:
		// Normalized against a 200 BPM ceiling.
		v := f.BPM / 200
		if v > 1 {
			v = 1
		}
		return v
	}
	return 0
}

// Value returns the smoothed feature level in [0, 1]. Rising inputs
// are tracked at the attack rate, falling inputs at the release rate.
func (s *AudioSource) Value(time.Duration) float64 {
	raw := s.rawValue()
	coeff := s.cfg.Release
	if raw > s.smoothed {
		coeff = s.cfg.Attack
	}
	s.smoothed += (raw - s.smoothed) * coeff
	return s.smoothed
}

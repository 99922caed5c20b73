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

// Package sequence modulates named engine parameters over time. Each
// registered sequence produces a new value at every tick of a shared
// ticker and writes it through a parameter path like
// "player.video.clip.effects[0].hue_shift". A sequence whose path stops
// resolving is marked failed and skipped; the ticker and the other
// sequences keep running.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lumenart/pkg/log"
)

// Kind identifies how a sequence computes its value.
type Kind string

// Sequence kinds.
const (
	KindLFO      Kind = "lfo"
	KindAudio    Kind = "audio"
	KindTimeline Kind = "timeline"
)

// State is a sequence's run state.
type State string

// Sequence states. A failed sequence stays registered so operators can
// inspect the failure, but produces no further writes.
const (
	StateActive State = "active"
	StateFailed State = "failed"
)

// Source produces one value per tick, mapped to the sequence's
// [Min, Max] range by the manager.
type Source interface {
	// Value returns the raw source value in [0, 1] for the given
	// absolute time.
	Value(t time.Duration) float64
}

// Writer applies a resolved value to a dotted parameter path against
// the live object graph. Implemented by the engine wiring; returns an
// error when the path no longer resolves.
type Writer interface {
	SetParam(path Path, value float64) error
}

// Config describes one registered sequence.
type Config struct {
	ID     string  `json:"id"`
	Kind   Kind    `json:"kind"`
	Target string  `json:"target"` // dotted parameter path
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`

	LFO      *LFOConfig      `json:"lfo,omitempty"`
	Audio    *AudioConfig    `json:"audio,omitempty"`
	Timeline *TimelineConfig `json:"timeline,omitempty"`
}

// Sequence is one live modulator.
type Sequence struct {
	Config Config

	source Source
	path   Path
	state  State
	reason string
}

// State returns the sequence's current run state.
func (s *Sequence) State() State { return s.state }

// FailReason returns why a failed sequence stopped writing.
func (s *Sequence) FailReason() string { return s.reason }

// ErrSequenceNotExist sequence does not exist.
var ErrSequenceNotExist = errors.New("sequence does not exist")

// ErrSequenceExist sequence id is already registered.
var ErrSequenceExist = errors.New("sequence already exists")

// Manager owns every registered sequence and the shared tick loop.
// Sequence writes happen on the ticker goroutine, never on a player's
// play loop; a play loop observes a written parameter on its next
// effect-chain cache check.
type Manager struct {
	mu        sync.Mutex
	sequences map[string]*Sequence

	writer   Writer
	logger   *log.Logger
	interval time.Duration
	epoch    time.Time
}

// NewManager returns a Manager ticking at interval against writer.
func NewManager(writer Writer, logger *log.Logger, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &Manager{
		sequences: make(map[string]*Sequence),
		writer:    writer,
		logger:    logger,
		interval:  interval,
		epoch:     time.Now(),
	}
}

// Add registers a new sequence from its config.
func (m *Manager) Add(cfg Config) error {
	source, err := buildSource(cfg)
	if err != nil {
		return err
	}
	path, err := ParsePath(cfg.Target)
	if err != nil {
		return fmt.Errorf("invalid target path %q: %w", cfg.Target, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sequences[cfg.ID]; ok {
		return ErrSequenceExist
	}
	m.sequences[cfg.ID] = &Sequence{
		Config: cfg,
		source: source,
		path:   path,
		state:  StateActive,
	}
	return nil
}

func buildSource(cfg Config) (Source, error) {
	switch cfg.Kind {
	case KindLFO:
		if cfg.LFO == nil {
			return nil, fmt.Errorf("lfo sequence %q has no lfo config", cfg.ID)
		}
		return NewLFO(*cfg.LFO)
	case KindAudio:
		if cfg.Audio == nil {
			return nil, fmt.Errorf("audio sequence %q has no audio config", cfg.ID)
		}
		return NewAudioSource(*cfg.Audio)
	case KindTimeline:
		if cfg.Timeline == nil {
			return nil, fmt.Errorf("timeline sequence %q has no timeline config", cfg.ID)
		}
		return NewTimeline(*cfg.Timeline)
	default:
		return nil, fmt.Errorf("unknown sequence kind %q", cfg.Kind)
	}
}

// Remove unregisters a sequence by id.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sequences[id]; !ok {
		return ErrSequenceNotExist
	}
	delete(m.sequences, id)
	return nil
}

// Get returns the sequence with the given id.
func (m *Manager) Get(id string) (*Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sequences[id]
	if !ok {
		return nil, ErrSequenceNotExist
	}
	return s, nil
}

// Configs returns a value copy of every registered sequence's config,
// used by the engine snapshot.
func (m *Manager) Configs() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Config, 0, len(m.sequences))
	for _, s := range m.sequences {
		out = append(out, s.Config)
	}
	return out
}

// Restore replaces all registered sequences with the given configs.
func (m *Manager) Restore(configs []Config) error {
	m.mu.Lock()
	m.sequences = make(map[string]*Sequence)
	m.mu.Unlock()

	for _, cfg := range configs {
		if err := m.Add(cfg); err != nil {
			return fmt.Errorf("restore sequence %q: %w", cfg.ID, err)
		}
	}
	return nil
}

// TickLoop drives all sequences until ctx is canceled.
func (m *Manager) TickLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(time.Since(m.epoch))
		}
	}
}

// Tick computes and writes every active sequence's value for time t.
// Exposed separately from TickLoop so tests can drive it directly.
func (m *Manager) Tick(t time.Duration) {
	m.mu.Lock()
	sequences := make([]*Sequence, 0, len(m.sequences))
	for _, s := range m.sequences {
		if s.state == StateActive {
			sequences = append(sequences, s)
		}
	}
	m.mu.Unlock()

	for _, s := range sequences {
		raw := s.source.Value(t)
		value := s.Config.Min + raw*(s.Config.Max-s.Config.Min)

		if err := m.writer.SetParam(s.path, value); err != nil {
			m.mu.Lock()
			s.state = StateFailed
			s.reason = err.Error()
			m.mu.Unlock()
			if m.logger != nil {
				m.logger.Warn().Src("sequence").Msgf(
					"sequence %q failed: %v", s.Config.ID, err)
			}
		}
	}
}

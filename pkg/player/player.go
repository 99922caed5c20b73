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

// Package player implements the per-player real-time play loop: it
// pulls frames from a stack of layers, composites and effects them,
// samples pixels to Art-Net universes,
// and publishes a preview stream, all inside a strict per-frame
// deadline. Each player is a supervised goroutine with
// play/pause/stop/restart transitions driven by its manager.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lumenart/internal/frame"
	"lumenart/internal/framesource"
	"lumenart/internal/layer"
	"lumenart/internal/transition"
	"lumenart/pkg/artnet"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/log"
	"lumenart/pkg/plugin"
	"lumenart/pkg/preview"
)

// State is one of the play loop's three states.
type State string

// Player states.
const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// PlaylistItem is one entry of a player's playlist, with optional
// per-item overrides.
type PlaylistItem struct {
	ClipID       string
	FPSOverride  float64
	LoopOverride int
}

// Config is the static configuration a Player is constructed with.
type Config struct {
	ID            string
	Width, Height int
	FPS           float64

	Registry      *clipregistry.Registry
	Plugins       *plugin.Registry
	Logger        *log.Logger
	Preview       *preview.Streamer
	TransitionCfg *transition.Config
	ArtNetTarget  string
	ArtNetDelta   artnet.DeltaConfig
	FFmpegBin     string
}

// Player is one independently-clocked rendering pipeline. Every
// mutable field is only ever touched from the play
// loop goroutine except where noted; capability methods that mutate
// state synchronize via mu or atomics as appropriate; critical
// sections are kept to simple field writes so the loop never suspends
// while holding the lock.
type Player struct {
	cfg Config

	mu           sync.Mutex
	state        State
	clipID       string
	layers       []*layer.Layer
	playlist     []PlaylistItem
	playlistPos  int
	autoplay     bool
	brightness   float64 // 0..1
	hueShift     float64 // -180..180
	speed        float64 // 0.1..3.0
	loopCount    int     // 0 = infinite
	loopsSoFar   int
	currentFrame int64

	videoCache  layer.TargetCache
	artnetCache layer.TargetCache

	samplePoints *SamplePointSet
	artnetSender *artnet.Sender

	transitionCfg    *transition.Config
	activeTransition *transition.Transition

	pauseCh chan struct{}
	stopCh  chan struct{}

	clockRef   time.Time
	clockTicks int64

	errorEvents               chan EngineError
	consecutivePluginFailures map[string]int
}

// New constructs a Player in the Stopped state. Resources (frame
// sources, Art-Net socket) are acquired lazily on Play.
func New(cfg Config) *Player {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "/usr/bin/ffmpeg"
	}
	return &Player{
		cfg:                       cfg,
		state:                     StateStopped,
		brightness:                1,
		speed:                     1,
		autoplay:                  true,
		pauseCh:                   make(chan struct{}),
		stopCh:                    make(chan struct{}),
		transitionCfg:             cfg.TransitionCfg,
		errorEvents:               make(chan EngineError, 64),
		consecutivePluginFailures: make(map[string]int),
	}
}

// ID returns the player's identity ("video" | "artnet" | arbitrary).
func (p *Player) ID() string { return p.cfg.ID }

// State returns the player's current run state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// EngineError is a play-loop error surfaced through the bounded
// error-event queue external observers subscribe to.
type EngineError struct {
	Kind     string // ParameterValidation | PluginFailure | SourceTransient | SourceFatal | NetworkTransient | Internal
	Err      error
	ClipID   string
	Frame    int64
	PlayerID string
}

func (e EngineError) Error() string {
	return fmt.Sprintf("player %s clip %s frame %d: %s: %v", e.PlayerID, e.ClipID, e.Frame, e.Kind, e.Err)
}

// Errors returns the channel errors are surfaced on for subscribers.
func (p *Player) Errors() <-chan EngineError { return p.errorEvents }

func (p *Player) emitError(kind string, err error) {
	ev := EngineError{Kind: kind, Err: err, ClipID: p.clipID, Frame: p.currentFrame, PlayerID: p.cfg.ID}
	if p.cfg.Logger != nil {
		p.cfg.Logger.Error().Src("player").Player(p.cfg.ID).Msgf("%s: %v", kind, err)
	}
	select {
	case p.errorEvents <- ev:
	default: // bounded queue is full: discard this event rather than blocking the loop
	}
}

// ---- Transport capability ----

// Play transitions Stopped -> Playing, idempotent if already playing.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	if state == StatePlaying {
		return nil
	}
	if state == StatePaused {
		return p.Resume()
	}

	p.mu.Lock()
	p.state = StatePlaying
	p.stopCh = make(chan struct{})
	p.clockRef = time.Now()
	clipID := p.clipID
	var firstClip string
	if len(p.playlist) > 0 {
		firstClip = p.playlist[0].ClipID
	}
	p.mu.Unlock()

	if clipID == "" {
		if firstClip == "" {
			p.mu.Lock()
			p.state = StateStopped
			p.mu.Unlock()
			return fmt.Errorf("player %s has no clip loaded", p.cfg.ID)
		}
		if err := p.LoadClip(firstClip); err != nil {
			p.mu.Lock()
			p.state = StateStopped
			p.mu.Unlock()
			return err
		}
	}

	go p.runLoop(ctx)
	return nil
}

// Pause transitions Playing -> Paused. Idempotent.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return nil
	}
	p.state = StatePaused
	return nil
}

// Resume transitions Paused -> Playing, recomputing the clock
// reference so paused time isn't counted against drift.
func (p *Player) Resume() error {
	p.mu.Lock()
	if p.state != StatePaused {
		p.mu.Unlock()
		return nil
	}
	p.state = StatePlaying
	p.clockRef = time.Now()
	p.clockTicks = 0
	p.mu.Unlock()

	select {
	case p.pauseCh <- struct{}{}:
	default:
	}
	return nil
}

// Stop sets the stop flag and wakes a paused loop so it observes it
// within at most one iteration.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return nil
	}
	p.state = StateStopped
	stopCh := p.stopCh
	p.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	select {
	case p.pauseCh <- struct{}{}:
	default:
	}
	p.releaseArtNet()
	return nil
}

// Restart is stop + play with the frame counter reset to the clip's
// in-point.
func (p *Player) Restart(ctx context.Context) error {
	if err := p.Stop(); err != nil {
		return err
	}
	p.mu.Lock()
	p.currentFrame = 0
	p.mu.Unlock()
	return p.Play(ctx)
}

func (p *Player) releaseArtNet() {
	p.mu.Lock()
	sender := p.artnetSender
	p.mu.Unlock()
	if sender != nil {
		sender.Stop() //nolint:errcheck
	}
}

// ---- Global params capability ----

// SetBrightness accepts 0-100 and stores it normalized to [0,1].
func (p *Player) SetBrightness(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("brightness must be in [0,100], got %v", percent)
	}
	p.mu.Lock()
	p.brightness = percent / 100
	p.mu.Unlock()
	return nil
}

// SetSpeed accepts a playback-rate multiplier in [0.1, 3.0].
func (p *Player) SetSpeed(speed float64) error {
	if speed < 0.1 || speed > 3.0 {
		return fmt.Errorf("speed must be in [0.1, 3.0], got %v", speed)
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
	return nil
}

// SetFPS changes the player's target frame rate.
func (p *Player) SetFPS(fps int) error {
	if fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", fps)
	}
	p.mu.Lock()
	p.cfg.FPS = float64(fps)
	p.mu.Unlock()
	return nil
}

// SetLoop stores the playlist loop count (0 means infinite), which is
// carried in player snapshots. Playlist advance does not read it: the
// playlist always wraps around without limit.
func (p *Player) SetLoop(count int) error {
	if count < 0 {
		return fmt.Errorf("loop count must be >= 0, got %d", count)
	}
	p.mu.Lock()
	p.loopCount = count
	p.mu.Unlock()
	return nil
}

// SetHueShift sets the player-level hue rotation in [-180,180] units
// of the half-degree hue channel; 60 moves red onto green.
func (p *Player) SetHueShift(degrees float64) error {
	if degrees < -180 || degrees > 180 {
		return fmt.Errorf("hue shift must be in [-180,180], got %v", degrees)
	}
	p.mu.Lock()
	p.hueShift = degrees
	p.mu.Unlock()
	return nil
}

// ---- Content capability ----

// LoadClip switches the player to a new clip-id, tearing down the
// previous layer set and loading a fresh one from the registry.
func (p *Player) LoadClip(clipID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadClipLocked(clipID)
}

func (p *Player) loadClipLocked(clipID string) error {
	clip, err := p.cfg.Registry.Get(clipID)
	if err != nil {
		return err
	}

	for _, l := range p.layers {
		if l.Source != nil {
			l.Source.Cleanup() //nolint:errcheck
		}
	}

	layers := make([]*layer.Layer, len(clip.Layers))
	for i, spec := range clip.Layers {
		src, err := p.buildSource(spec)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = &layer.Layer{Spec: spec, Source: src}
	}

	p.clipID = clipID
	p.layers = layers
	p.currentFrame = 0
	p.videoCache = layer.TargetCache{}
	p.artnetCache = layer.TargetCache{}
	return nil
}

// buildSource constructs the frame source a layer spec names: a
// Generator when a generator id is set, a Null source when the path is
// empty, and a VideoDecode (using cfg.FFmpegBin) for any other path.
// Webcam, Stream and Screencapture sources are not built here.
func (p *Player) buildSource(spec clipregistry.LayerSpec) (framesource.Source, error) {
	if spec.Source.GeneratorID != "" {
		inst, err := p.cfg.Plugins.Instantiate(spec.Source.GeneratorID, plugin.Params(spec.Source.GeneratorParams))
		if err != nil {
			return nil, err
		}
		gen, ok := inst.(plugin.Generator)
		if !ok {
			return nil, fmt.Errorf("plugin %q is not a Generator", spec.Source.GeneratorID)
		}
		return framesource.NewGenerator(p.cfg.Width, p.cfg.Height, p.cfg.FPS, gen, plugin.Params(spec.Source.GeneratorParams)), nil
	}
	if spec.Source.Path == "" {
		return framesource.NewNull(p.cfg.Width, p.cfg.Height, time.Duration(float64(time.Second)/p.cfg.FPS)), nil
	}
	return framesource.NewVideoDecode(p.cfg.FFmpegBin, spec.Source.Path, p.cfg.Width, p.cfg.Height, p.cfg.FPS, p.cfg.Logger), nil
}

// SetPlaylist replaces the player's playlist.
func (p *Player) SetPlaylist(items []PlaylistItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlist = items
	p.playlistPos = 0
}

// Seek moves the base layer's source to a frame number or, if
// frameNumber is negative, a position in seconds.
func (p *Player) Seek(frameNumber int, seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.layers) == 0 {
		return fmt.Errorf("no clip loaded")
	}
	pos := seconds
	if frameNumber >= 0 {
		pos = float64(frameNumber)
	}
	if err := p.layers[0].Source.Seek(context.Background(), pos); err != nil {
		return err
	}
	p.currentFrame = int64(frameNumber)
	return nil
}

// ---- Effects capability ----

func (p *Player) AddEffect(target, pluginID string, params map[string]interface{}) error {
	p.mu.Lock()
	clipID := p.clipID
	p.mu.Unlock()
	return p.cfg.Registry.AddGlobalEffect(clipID, target, pluginID, params)
}

func (p *Player) RemoveEffect(target string, index int) error {
	p.mu.Lock()
	clipID := p.clipID
	p.mu.Unlock()
	return p.cfg.Registry.RemoveGlobalEffect(clipID, target, index)
}

func (p *Player) UpdateParameter(target string, index int, name string, value interface{}) error {
	p.mu.Lock()
	clipID := p.clipID
	p.mu.Unlock()
	return p.cfg.Registry.UpdateGlobalEffectParameter(clipID, target, index, name, value)
}

func (p *Player) ClearChain(target string) error {
	p.mu.Lock()
	clipID := p.clipID
	p.mu.Unlock()
	return p.cfg.Registry.ClearGlobalEffectChain(clipID, target)
}

// ---- Art-Net capability ----

// SetSamplePoints installs the canvas-bound sample point array used
// to produce per-universe pixel slices each tick.
func (p *Player) SetSamplePoints(points []SamplePoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samplePoints = NewSamplePointSet(points, p.cfg.Width, p.cfg.Height)
}

func (p *Player) ensureArtNetSender() *artnet.Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.artnetSender == nil {
		p.artnetSender = artnet.New(p.cfg.ArtNetTarget, p.cfg.ArtNetDelta)
	}
	return p.artnetSender
}

// SetTargetIP configures the Art-Net destination address.
func (p *Player) SetTargetIP(ip string) { p.ensureArtNetSender().SetTargetIP(ip) }

// SetStartUniverse configures the net/sub-universe base address.
func (p *Player) SetStartUniverse(net, subUniverse int) {
	p.ensureArtNetSender().SetStartUniverse(net, subUniverse)
}

// SetChannelOrder configures one universe's RGB permutation.
func (p *Player) SetChannelOrder(universe int, order artnet.ChannelOrder) {
	p.ensureArtNetSender().SetChannelOrder(universe, order)
}

// SetDelta reconfigures delta encoding.
func (p *Player) SetDelta(cfg artnet.DeltaConfig) { p.ensureArtNetSender().SetDelta(cfg) }

// ArtNetConfig returns the sender's persisted configuration, or nil if
// the sender was never created.
func (p *Player) ArtNetConfig() *artnet.ConfigSnapshot {
	p.mu.Lock()
	sender := p.artnetSender
	p.mu.Unlock()
	if sender == nil {
		return nil
	}
	cfg := sender.ConfigSnapshot()
	return &cfg
}

// ApplyArtNetConfig restores a previously snapshotted sender
// configuration, creating the sender if needed.
func (p *Player) ApplyArtNetConfig(cfg artnet.ConfigSnapshot) {
	p.ensureArtNetSender().ApplyConfig(cfg)
}

// Blackout sends a single all-zero frame to every configured universe.
func (p *Player) Blackout() error {
	return p.TestPattern(0, 0, 0)
}

// TestPattern floods every sample point's universe with a solid color
// for one tick, independent of the play loop's normal frame flow.
func (p *Player) TestPattern(r, g, b byte) error {
	p.mu.Lock()
	points := p.samplePoints
	p.mu.Unlock()
	if points == nil {
		return nil
	}
	sender := p.ensureArtNetSender()
	if !sender.IsActive() {
		if err := sender.Start(); err != nil {
			return err
		}
	}
	solid := frame.New(p.cfg.Width, p.cfg.Height)
	solid.Fill(r, g, b)
	return emitArtNet(sender, points.Sample(solid))
}

func emitArtNet(sender *artnet.Sender, byUniverse UniversePixels) error {
	for universe, pixels := range byUniverse {
		if err := sender.Send(universe, pixels); err != nil {
			return err
		}
	}
	return nil
}

// ---- Introspection capability ----

// Status summarizes the player's current run state for external
// observers.
type Status struct {
	ID           string
	State        State
	ClipID       string
	CurrentFrame int64
	Brightness   float64
	HueShift     float64
	Speed        float64
	FPS          float64
}

// Status returns a value snapshot of the player's state.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		ID:           p.cfg.ID,
		State:        p.state,
		ClipID:       p.clipID,
		CurrentFrame: p.currentFrame,
		Brightness:   p.brightness,
		HueShift:     p.hueShift,
		Speed:        p.speed,
		FPS:          p.cfg.FPS,
	}
}

// Info describes a player's static configuration.
type Info struct {
	ID           string
	Width        int
	Height       int
	ArtNetTarget string
	ArtNet       *artnet.ConfigSnapshot // nil until the sender exists
}

// Info returns the player's static configuration.
func (p *Player) Info() Info {
	return Info{
		ID:           p.cfg.ID,
		Width:        p.cfg.Width,
		Height:       p.cfg.Height,
		ArtNetTarget: p.cfg.ArtNetTarget,
		ArtNet:       p.ArtNetConfig(),
	}
}

// Stats returns the Art-Net sender's lock-free counters, or zero
// values if the sender has never been started.
func (p *Player) Stats(universe int) (packetsSent, bytesSent, drops uint64) {
	p.mu.Lock()
	sender := p.artnetSender
	p.mu.Unlock()
	if sender == nil {
		return 0, 0, 0
	}
	return sender.Stats(universe).Snapshot()
}

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

package player

import (
	"context"
	"errors"
	"math"
	"time"

	"lumenart/internal/frame"
	"lumenart/internal/framesource"
	"lumenart/internal/layer"
	"lumenart/internal/transition"
)

const catchUpResetThreshold = -100 * time.Millisecond

// runLoop is the per-player goroutine; one is started by Play and runs
// until Stop closes p.stopCh.
func (p *Player) runLoop(ctx context.Context) {
	for {
		p.mu.Lock()
		stopCh := p.stopCh
		state := p.state
		p.mu.Unlock()

		select {
		case <-stopCh:
			return
		default:
		}

		if state == StatePaused {
			select {
			case <-p.pauseCh:
			case <-stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		delay := p.waitFrameClock()
		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}

		if err := p.tick(ctx); err != nil {
			if errors.Is(err, errStopPlayer) {
				p.Stop() //nolint:errcheck
				return
			}
		}
	}
}

var errStopPlayer = errors.New("player stopped itself")

// waitFrameClock computes the delay until the next tick is due,
// applying drift correction, and resets the reference once the loop
// has fallen hopelessly behind.
func (p *Player) waitFrameClock() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clockRef.IsZero() {
		p.clockRef = time.Now()
	}

	frameDur := time.Duration(float64(time.Second) / (p.cfg.FPS * p.speed))
	p.clockTicks++
	target := p.clockRef.Add(frameDur * time.Duration(p.clockTicks))
	delay := time.Until(target)

	if delay < catchUpResetThreshold {
		p.clockRef = time.Now()
		p.clockTicks = 0
		return 0
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// tick runs one full iteration of the play loop: fetch, composite,
// effect, sample, emit, preview.
func (p *Player) tick(ctx context.Context) error {
	p.mu.Lock()
	layers := p.layers
	clipID := p.clipID
	brightness := p.brightness
	hueShift := p.hueShift
	p.mu.Unlock()

	if len(layers) == 0 {
		return nil
	}

	base, advanced, err := p.fetchBaseFrame(ctx, layers[0])
	if err != nil {
		return err
	}
	if advanced {
		// playlist advance already reloaded p.layers; re-fetch the new
		// base layer's frame this tick instead of emitting a stale one.
		p.mu.Lock()
		layers = p.layers
		p.mu.Unlock()
		if len(layers) == 0 {
			return nil
		}
		base, _, err = p.fetchBaseFrame(ctx, layers[0])
		if err != nil {
			return err
		}
	}

	base = base.Scaled(p.cfg.Width, p.cfg.Height)

	if failures := layers[0].Chain.Apply(base, layers[0].Spec.Effects, p.cfg.Plugins); len(failures) > 0 {
		p.reportPluginFailures(failures)
	}

	base = p.applyTransition(base)

	for i := 1; i < len(layers); i++ {
		l := layers[i]
		if !l.Spec.Enabled {
			continue
		}
		overlay, _, err := p.fetchOverlayFrame(ctx, l)
		if err != nil {
			p.emitError("SourceTransient", err)
			continue
		}
		overlay = overlay.Scaled(p.cfg.Width, p.cfg.Height)
		if failures := l.Chain.Apply(overlay, l.Spec.Effects, p.cfg.Plugins); len(failures) > 0 {
			p.reportPluginFailures(failures)
		}
		layer.Composite(base, overlay, l.Spec.Blend, l.Spec.Opacity)
	}

	applyBrightness(base, brightness)
	if hueShift != 0 {
		applyHueShift(base, hueShift)
	}

	frameVideo, frameArtnet := p.resolveTargetFrames(clipID, base)

	p.mu.Lock()
	points := p.samplePoints
	sender := p.artnetSender
	p.mu.Unlock()

	if points != nil && sender != nil {
		if !sender.IsActive() {
			if err := sender.Start(); err != nil {
				p.emitError("NetworkTransient", err)
			}
		}
		if sender.IsActive() {
			if err := emitArtNet(sender, points.Sample(frameArtnet)); err != nil {
				p.emitError("NetworkTransient", err)
			}
		}
	}

	if p.cfg.Preview != nil {
		p.cfg.Preview.Publish(p.cfg.ID, frameVideo)
	}

	p.mu.Lock()
	p.currentFrame++
	p.mu.Unlock()
	return nil
}

// fetchBaseFrame pulls the next frame from the base layer's source,
// handling exhaustion via the playlist/transition path. advanced
// reports whether a clip switch occurred mid-call.
func (p *Player) fetchBaseFrame(ctx context.Context, base *layer.Layer) (*frame.Frame, bool, error) {
	f, _, err := base.Source.NextFrame(ctx)
	if err == nil {
		return f, false, nil
	}

	if errors.Is(err, framesource.ErrExhausted) {
		return p.handleExhaustion(ctx, base, f)
	}

	var transient *framesource.TransientError
	if errors.As(err, &transient) {
		f2, _, err2 := base.Source.NextFrame(ctx)
		if err2 == nil {
			return f2, false, nil
		}
		p.emitError("SourceTransient", err2)
		return frame.New(p.cfg.Width, p.cfg.Height), false, nil
	}

	var fatal *framesource.FatalError
	if errors.As(err, &fatal) {
		p.emitError("SourceFatal", err)
		return nil, false, errStopPlayer
	}

	return nil, false, err
}

func (p *Player) handleExhaustion(ctx context.Context, base *layer.Layer, last *frame.Frame) (*frame.Frame, bool, error) {
	p.mu.Lock()
	hasSuccessor := p.autoplay && len(p.playlist) > 0
	p.mu.Unlock()

	if !hasSuccessor {
		return nil, false, errStopPlayer
	}

	outgoingLast := last
	if outgoingLast == nil {
		outgoingLast = frame.New(p.cfg.Width, p.cfg.Height)
	}

	p.mu.Lock()
	p.playlistPos = (p.playlistPos + 1) % len(p.playlist)
	next := p.playlist[p.playlistPos]
	tcfg := p.transitionCfg
	p.mu.Unlock()

	if err := p.LoadClip(next.ClipID); err != nil {
		p.emitError("Internal", err)
		return nil, false, errStopPlayer
	}

	if tcfg != nil && tcfg.Duration > 0 {
		t, err := transition.New(*tcfg, outgoingLast, p.cfg.Plugins)
		if err == nil {
			p.mu.Lock()
			p.activeTransition = t
			p.mu.Unlock()
		}
	}

	return nil, true, nil
}

// applyTransition blends the buffered outgoing frame with the incoming
// clip's frame while a clip switch's transition window is open. Once
// the window elapses the buffer is released and incoming passes
// through untouched.
func (p *Player) applyTransition(incoming *frame.Frame) *frame.Frame {
	p.mu.Lock()
	t := p.activeTransition
	fps := p.cfg.FPS
	p.mu.Unlock()

	if t == nil {
		return incoming
	}

	t.Advance(time.Duration(float64(time.Second) / fps))
	if t.Done() {
		p.mu.Lock()
		p.activeTransition = nil
		p.mu.Unlock()
		return incoming
	}

	blended, err := t.Blend(incoming)
	if err != nil {
		p.emitError("PluginFailure", err)
		p.mu.Lock()
		p.activeTransition = nil
		p.mu.Unlock()
		return incoming
	}
	return blended
}

// fetchOverlayFrame pulls an overlay layer's next frame, auto-looping
// at the master's tempo on exhaustion.
func (p *Player) fetchOverlayFrame(ctx context.Context, l *layer.Layer) (*frame.Frame, bool, error) {
	f, _, err := l.Source.NextFrame(ctx)
	if err == nil {
		return f, false, nil
	}
	if errors.Is(err, framesource.ErrExhausted) {
		if err := l.Source.Reset(ctx); err != nil {
			return nil, false, err
		}
		f, _, err = l.Source.NextFrame(ctx)
		return f, true, err
	}
	return nil, false, err
}

func (p *Player) reportPluginFailures(failures []layer.EffectFailure) {
	for _, f := range failures {
		kind := "PluginFailure"
		p.emitError(kind, f.Err)
	}
}

// resolveTargetFrames implements the effect-chain cache resolution and
// zero-copy rule: the frame is cloned only when both target chains
// are non-empty and would diverge.
func (p *Player) resolveTargetFrames(clipID string, composed *frame.Frame) (video, artnet *frame.Frame) {
	version, err := p.cfg.Registry.GetEffectsVersion(clipID)
	if err != nil {
		return composed, composed
	}

	videoChain, err := p.cfg.Registry.GlobalEffectChain(clipID, "video")
	if err != nil {
		return composed, composed
	}
	artnetChain, err := p.cfg.Registry.GlobalEffectChain(clipID, "artnet")
	if err != nil {
		return composed, composed
	}

	p.mu.Lock()
	p.videoCache.EnsureFresh(clipID, version)
	p.artnetCache.EnsureFresh(clipID, version)
	p.mu.Unlock()

	videoEmpty := len(videoChain) == 0
	artnetEmpty := len(artnetChain) == 0

	switch {
	case videoEmpty && artnetEmpty:
		return composed, composed

	case videoEmpty != artnetEmpty:
		chain, cache := artnetChain, &p.artnetCache
		if artnetEmpty {
			chain, cache = videoChain, &p.videoCache
		}
		if failures := cache.Chain.Apply(composed, chain, p.cfg.Plugins); len(failures) > 0 {
			p.reportPluginFailures(failures)
		}
		return composed, composed

	default:
		videoFrame := composed.Clone()
		if failures := p.videoCache.Chain.Apply(videoFrame, videoChain, p.cfg.Plugins); len(failures) > 0 {
			p.reportPluginFailures(failures)
		}
		if failures := p.artnetCache.Chain.Apply(composed, artnetChain, p.cfg.Plugins); len(failures) > 0 {
			p.reportPluginFailures(failures)
		}
		return videoFrame, composed
	}
}

// applyBrightness multiplies every channel by factor and clips to
// [0,255] in place.
func applyBrightness(f *frame.Frame, factor float64) {
	if factor == 1 {
		return
	}
	for i := range f.Pix {
		v := float64(f.Pix[i]) * factor
		if v > 255 {
			v = 255
		}
		if v < 0 {
			v = 0
		}
		f.Pix[i] = byte(v + 0.5)
	}
}

// applyHueShift rotates every pixel's hue via an HSV round trip, only
// ever called when shift != 0. The hue channel is stored in [0,180)
// half-degree units and shift is added in those units modulo 180, with
// the +180 bias acting as sign extension so negative shifts never
// underflow. A shift of 60 therefore moves red exactly onto green; 90
// is a half turn of the color wheel.
func applyHueShift(f *frame.Frame, shift float64) {
	for i := 0; i+2 < len(f.Pix); i += 3 {
		r, g, b := f.Pix[i], f.Pix[i+1], f.Pix[i+2]
		h, s, v := rgbToHSV(r, g, b)
		h = math.Mod(h/2+shift+180, 180) * 2
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = hsvToRGB(h, s, v)
	}
}

func rgbToHSV(r, g, b byte) (h, s, v float64) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min
	v = max

	if delta == 0 {
		return 0, 0, v
	}
	s = delta / max

	switch max {
	case rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case gf:
		h = 60 * ((bf-rf)/delta + 2)
	case bf:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func hsvToRGB(h, s, v float64) (byte, byte, byte) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = c, x, 0
	case h < 120:
		rf, gf, bf = x, c, 0
	case h < 180:
		rf, gf, bf = 0, c, x
	case h < 240:
		rf, gf, bf = 0, x, c
	case h < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	return clampByte((rf + m) * 255), clampByte((gf + m) * 255), clampByte((bf + m) * 255)
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

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

// Package preview implements the demand-gated JPEG-over-websocket push
// stream. It generalizes the engine's log-feed websocket
// (pkg/web/routes.go's Logs handler: subscribe, fan a channel out,
// drop the connection on a blocked write) into a per-player stream
// with a reference-counted active flag and an adaptive encode rate.
package preview

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lumenart/internal/frame"
	"lumenart/pkg/config"
)

// Subscriber receives encoded JPEG frames for one player's stream.
type Subscriber struct {
	ch chan []byte
}

// Frames returns the channel JPEG payloads are delivered on.
func (s *Subscriber) Frames() <-chan []byte { return s.ch }

// CancelFunc unregisters a subscriber.
type CancelFunc func()

type playerStream struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	latest      *frame.Frame
	lastSentPtr *frame.Frame

	cancelProducer context.CancelFunc
}

func (ps *playerStream) subscriberCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.subscribers)
}

// Streamer owns one playerStream per player id and the JPEG encode
// parameters shared by all of them.
type Streamer struct {
	mu      sync.Mutex
	players map[string]*playerStream

	quality       config.PreviewQuality
	capFPS        int
	basePerClient int
}

// New returns a Streamer using the given quality preset and adaptive
// rate parameters").
func New(quality config.PreviewQuality, capFPS, basePerClient int) *Streamer {
	if capFPS <= 0 {
		capFPS = 30
	}
	if basePerClient <= 0 {
		basePerClient = 10
	}
	return &Streamer{
		players:       make(map[string]*playerStream),
		quality:       quality,
		capFPS:        capFPS,
		basePerClient: basePerClient,
	}
}

func (s *Streamer) streamFor(playerID string) *playerStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.players[playerID]
	if !ok {
		ps = &playerStream{subscribers: make(map[*Subscriber]struct{})}
		s.players[playerID] = ps
	}
	return ps
}

// Publish hands the play loop's current video-target frame to the
// streamer. It never blocks: it only overwrites the "latest" pointer
// the producer loop reads on its next tick.
func (s *Streamer) Publish(playerID string, f *frame.Frame) {
	ps := s.streamFor(playerID)
	ps.mu.Lock()
	ps.latest = f
	ps.mu.Unlock()
}

// Subscribe registers a new subscriber for playerID, starting the
// producer loop if this is the first one.
func (s *Streamer) Subscribe(playerID string) (*Subscriber, CancelFunc) {
	ps := s.streamFor(playerID)
	sub := &Subscriber{ch: make(chan []byte, 4)}

	ps.mu.Lock()
	first := len(ps.subscribers) == 0
	ps.subscribers[sub] = struct{}{}
	ps.mu.Unlock()

	if first {
		ctx, cancel := context.WithCancel(context.Background())
		ps.cancelProducer = cancel
		go s.produce(ctx, ps)
	}

	cancelFn := func() {
		ps.mu.Lock()
		delete(ps.subscribers, sub)
		empty := len(ps.subscribers) == 0
		var stop context.CancelFunc
		if empty && ps.cancelProducer != nil {
			stop = ps.cancelProducer
			ps.cancelProducer = nil
		}
		ps.mu.Unlock()
		if stop != nil {
			stop()
		}
	}
	return sub, cancelFn
}

// produce runs only while at least one subscriber is registered; it
// sleeps on a ticker at the adaptive rate rather than a condition
// variable, since Go's scheduler makes a short ticker cheap and it
// keeps the stop path a simple ctx.Done() select.
func (s *Streamer) produce(ctx context.Context, ps *playerStream) {
	interval := s.tickInterval(ps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newInterval := s.tickInterval(ps)
			if newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
			s.encodeAndFanOut(ps)
		}
	}
}

func (s *Streamer) tickInterval(ps *playerStream) time.Duration {
	n := ps.subscriberCount()
	if n == 0 {
		n = 1
	}
	fps := n * s.basePerClient
	if fps > s.capFPS {
		fps = s.capFPS
	}
	if fps <= 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// encodeAndFanOut implements the frame-identity dedup and JPEG
// encoding: the last-pushed frame's pointer/identity is
// compared to the player's current frame; if identical, encoding is
// skipped for this tick."
func (s *Streamer) encodeAndFanOut(ps *playerStream) {
	ps.mu.Lock()
	current := ps.latest
	unchanged := current == ps.lastSentPtr
	ps.mu.Unlock()

	if current == nil || unchanged {
		return
	}

	payload, err := encodeJPEG(current, s.quality.JPEGQuality())
	if err != nil {
		return
	}

	ps.mu.Lock()
	ps.lastSentPtr = current
	subs := make([]*Subscriber, 0, len(ps.subscribers))
	for sub := range ps.subscribers {
		subs = append(subs, sub)
	}
	ps.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- payload:
		default: // full outbound buffer: drop this subscriber's frame, don't block the producer
		}
	}
}

func encodeJPEG(f *frame.Frame, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.At(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var upgrader = websocket.Upgrader{}

// Handler upgrades the request to a websocket and streams playerID's
// JPEG frames to it as binary messages until the connection breaks,
// matching the disconnect-on-blocked-write shape of the engine's log
// stream handler.
func (s *Streamer) Handler(playerID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()

		sub, cancel := s.Subscribe(playerID)
		defer cancel()

		for payload := range sub.Frames() {
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		}
	})
}

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

package framesource

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp/v2"
	"github.com/pion/sdp/v3"

	"lumenart/internal/frame"
	"lumenart/pkg/log"
)

// Stream receives an uncompressed RGB24-over-RTP feed described by an
// SDP session. Frames are reassembled from RTP payloads carrying whole
// scanlines; a marker bit closes a frame. This targets an
// already-raw-video sender (e.g. an Art-Net console's video monitor
// out or a test generator), not a general-purpose RTSP/H264 client.
type Stream struct {
	ListenAddr    string // local UDP address to receive RTP on, e.g. ":5004"
	SDPSession    []byte // the session description for the stream
	Width, Height int
	Logger        *log.Logger

	mu        sync.Mutex
	conn      *net.UDPConn
	buf       []byte
	assembly  []byte
	exhausted bool
}

// NewStream parses sdpSession (informational: validates it describes
// a session before a connection is ever opened) and returns a Stream
// bound to listenAddr.
func NewStream(listenAddr string, sdpSession []byte, width, height int, logger *log.Logger) (*Stream, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(sdpSession); err != nil {
		return nil, fmt.Errorf("could not parse sdp: %w", err)
	}
	return &Stream{
		ListenAddr: listenAddr,
		SDPSession: sdpSession,
		Width:      width,
		Height:     height,
		Logger:     logger,
		buf:        make([]byte, 65536),
	}, nil
}

func (s *Stream) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", s.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("could not listen: %w", err)
	}
	s.conn = conn
	s.assembly = make([]byte, 0, frameBytes(s.Width, s.Height))
	s.exhausted = false
	return nil
}

func frameBytes(w, h int) int { return w * h * 3 }

// NextFrame reads RTP packets until a marker-bit packet completes a
// full frame payload, sequentially, lock-free once the listener is
// running.
func (s *Stream) NextFrame(ctx context.Context) (*frame.Frame, time.Duration, error) {
	if s.conn == nil {
		return nil, 0, &FatalError{Err: fmt.Errorf("stream not initialized")}
	}

	want := frameBytes(s.Width, s.Height)
	for {
		if dl, ok := ctx.Deadline(); ok {
			s.conn.SetReadDeadline(dl) //nolint:errcheck
		} else {
			s.conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
		}

		n, err := s.conn.Read(s.buf)
		if err != nil {
			return nil, 0, &TransientError{Err: err}
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(s.buf[:n]); err != nil {
			if s.Logger != nil {
				s.Logger.Warn().Src("frame_source").Msgf("discarding malformed rtp packet: %v", err)
			}
			continue
		}

		s.assembly = append(s.assembly, pkt.Payload...)

		if pkt.Marker {
			if len(s.assembly) < want {
				// Short frame: drop and resync on the next marker.
				s.assembly = s.assembly[:0]
				continue
			}
			pix := make([]byte, want)
			copy(pix, s.assembly[:want])
			s.assembly = s.assembly[:0]
			return &frame.Frame{Width: s.Width, Height: s.Height, Pix: pix}, 0, nil
		}
	}
}

// Reset is a no-op: a live stream has no beginning to rewind to.
func (s *Stream) Reset(context.Context) error { return nil }

// Seek is unsupported for a live stream.
func (s *Stream) Seek(context.Context, float64) error {
	return fmt.Errorf("seek not supported on a live stream")
}

// IsExhausted reports whether the listening socket has been closed.
func (s *Stream) IsExhausted() bool { return s.exhausted }

func (s *Stream) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exhausted = true
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

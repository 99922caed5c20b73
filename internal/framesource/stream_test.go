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
	"net"
	"testing"
	"time"

	"github.com/pion/rtp/v2"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=lumenart stream\r\n" +
	"c=IN IP4 127.0.0.1\r\n" +
	"t=0 0\r\n" +
	"m=video 5004 RTP/AVP 96\r\n" +
	"a=rtpmap:96 raw/90000\r\n"

func TestNewStreamRejectsInvalidSDP(t *testing.T) {
	_, err := NewStream(":0", []byte("not sdp"), 4, 2, nil)
	require.Error(t, err)
}

func TestStreamReassemblesFrameFromMarkedPackets(t *testing.T) {
	ctx := context.Background()
	s, err := NewStream("127.0.0.1:0", []byte(testSDP), 2, 1, nil)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	defer s.Cleanup()

	addr := s.conn.LocalAddr().(*net.UDPAddr)
	sender, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer sender.Close()

	want := frameBytes(2, 1) // 6 bytes
	part1 := []byte{1, 2, 3}
	part2 := []byte{4, 5, 6}

	pkt1 := rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Marker: false}, Payload: part1}
	b1, err := pkt1.Marshal()
	require.NoError(t, err)
	_, err = sender.Write(b1)
	require.NoError(t, err)

	pkt2 := rtp.Packet{Header: rtp.Header{SequenceNumber: 2, Marker: true}, Payload: part2}
	b2, err := pkt2.Marshal()
	require.NoError(t, err)
	_, err = sender.Write(b2)
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	f, _, err := s.NextFrame(ctx2)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte{}, part1...), part2...)[:want], f.Pix)
}

func TestStreamSeekUnsupported(t *testing.T) {
	s, err := NewStream(":0", []byte(testSDP), 2, 1, nil)
	require.NoError(t, err)
	require.Error(t, s.Seek(context.Background(), 1))
}

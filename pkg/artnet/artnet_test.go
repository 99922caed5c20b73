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

package artnet

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// listener opens a UDP socket on loopback and returns its address plus
// a function to read the next received packet.
func listener(t *testing.T) (string, int, func() []byte) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	addr := conn.LocalAddr().(*net.UDPAddr)
	return addr.IP.String(), addr.Port, func() []byte {
		buf := make([]byte, 2048)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		require.NoError(t, err)
		return buf[:n]
	}
}

func newTestSender(t *testing.T, ip string, port int, delta DeltaConfig) *Sender {
	t.Helper()
	s := New(ip, delta)
	s.port = port
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() }) //nolint:errcheck
	return s
}

// S1: single-universe red blackout, default RGB order.
func TestSingleUniverseRedBlackout(t *testing.T) {
	ip, port, recv := listener(t)
	s := newTestSender(t, ip, port, DeltaConfig{Enabled: false})

	pixels := make([]byte, 4*3)
	for i := 0; i < 4; i++ {
		pixels[i*3], pixels[i*3+1], pixels[i*3+2] = 255, 0, 0
	}

	require.NoError(t, s.Send(0, pixels))
	packet := recv()
	require.Equal(t, "Art-Net\x00", string(packet[:8]))
	payload := packet[18:]
	require.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 0, 0, 255, 0, 0}, payload[:12])
}

// S2: GRB remap.
func TestGRBRemap(t *testing.T) {
	ip, port, recv := listener(t)
	s := newTestSender(t, ip, port, DeltaConfig{Enabled: false})
	s.SetChannelOrder(0, OrderGRB)

	pixels := make([]byte, 4*3)
	for i := 0; i < 4; i++ {
		pixels[i*3], pixels[i*3+1], pixels[i*3+2] = 255, 0, 0
	}

	require.NoError(t, s.Send(0, pixels))
	payload := recv()[18:]
	require.Equal(t, []byte{0, 255, 0, 0, 255, 0, 0, 255, 0, 0, 255, 0}, payload[:12])
}

// S3: delta encoding drops identical frames except at the full-frame
// interval (full frames on ticks 1 and 31 of 35, drop counter 33).
func TestDeltaEncoding(t *testing.T) {
	ip, port, _ := listener(t)
	s := newTestSender(t, ip, port, DeltaConfig{
		Enabled: true, Threshold: 8, FullFrameInterval: 30,
	})

	pixels := []byte{255, 0, 0}
	for i := 0; i < 35; i++ {
		require.NoError(t, s.Send(0, pixels))
	}

	sent, _, drops := s.Stats(0).Snapshot()
	require.Equal(t, uint64(2), sent)
	require.Equal(t, uint64(33), drops)
}

// Property 4/5 directly against the universe state machine, independent
// of actual socket I/O timing.
func TestDeltaDropLawAndFullFrameInterval(t *testing.T) {
	ip, port, _ := listener(t)
	s := newTestSender(t, ip, port, DeltaConfig{
		Enabled: true, Threshold: 8, FullFrameInterval: 3,
	})

	pixels := []byte{10, 10, 10}
	require.NoError(t, s.Send(0, pixels)) // frame 1: no prior -> full
	sent, _, drops := s.Stats(0).Snapshot()
	require.Equal(t, uint64(1), sent)
	require.Equal(t, uint64(0), drops)

	require.NoError(t, s.Send(0, pixels)) // frame 2: identical, dropped
	require.NoError(t, s.Send(0, pixels)) // frame 3: identical, dropped
	sent, _, drops = s.Stats(0).Snapshot()
	require.Equal(t, uint64(1), sent)
	require.Equal(t, uint64(2), drops)

	require.NoError(t, s.Send(0, pixels)) // frame 4: interval reached -> full
	sent, _, drops = s.Stats(0).Snapshot()
	require.Equal(t, uint64(2), sent)
	require.Equal(t, uint64(2), drops)
}

// Property 6: channel remap round-trips through its inverse.
func TestChannelRemapRoundTrip(t *testing.T) {
	for order := range orderPermutation {
		r, g, b := Permute(order, 10, 20, 30)
		rr, rg, rb := Permute(Inverse(order), r, g, b)
		require.Equal(t, byte(10), rr, order)
		require.Equal(t, byte(20), rg, order)
		require.Equal(t, byte(30), rb, order)
	}
}

func TestEncodeOpDmxHeader(t *testing.T) {
	packet := EncodeOpDmx(7, 0, 3, 1, []byte{1, 2, 3})
	require.Equal(t, "Art-Net\x00", string(packet[:8]))
	require.Equal(t, byte(0x00), packet[8]) // opcode low byte
	require.Equal(t, byte(0x50), packet[9]) // opcode high byte
	require.Equal(t, byte(0x00), packet[10])
	require.Equal(t, byte(0x0E), packet[11])
	require.Equal(t, byte(7), packet[12]) // sequence
	require.Equal(t, byte(0), packet[13]) // physical
	require.Equal(t, byte(3), packet[14]) // sub-universe
	require.Equal(t, byte(1), packet[15]) // net
	require.Equal(t, byte(0), packet[16]) // length high byte
	require.Equal(t, byte(3), packet[17]) // length low byte
	require.Equal(t, []byte{1, 2, 3}, packet[18:])
}

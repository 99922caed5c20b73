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

// Package artnet implements the Art-Net OpDmx UDP sender:
// per-universe channel-order remap, delta encoding with periodic
// full-frame resync, and packet emission. It is
// owned exclusively by its player; only its play loop calls Send, while
// configuration setters and the lock-free stats counters may be used
// from other goroutines.
package artnet

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/icza/bitio"
)

// ChannelsPerUniverse is the Art-Net DMX512 channel count (170 RGB
// pixels per universe).
const ChannelsPerUniverse = 512

// MaxPixelsPerUniverse is the Art-Net limit on RGB pixels per universe.
const MaxPixelsPerUniverse = ChannelsPerUniverse / 3

const defaultPort = 6454

var opDmx uint16 = 0x5000

const (
	protocolVersion = 0x000E
)

// ChannelOrder is one of the six permutations of {R, G, B} a universe
// can remap its pixel data through.
type ChannelOrder string

// Channel orders.
const (
	OrderRGB ChannelOrder = "RGB"
	OrderRBG ChannelOrder = "RBG"
	OrderGRB ChannelOrder = "GRB"
	OrderGBR ChannelOrder = "GBR"
	OrderBRG ChannelOrder = "BRG"
	OrderBGR ChannelOrder = "BGR"
)

var orderPermutation = map[ChannelOrder][3]int{
	OrderRGB: {0, 1, 2},
	OrderRBG: {0, 2, 1},
	OrderGRB: {1, 0, 2},
	OrderGBR: {1, 2, 0},
	OrderBRG: {2, 0, 1},
	OrderBGR: {2, 1, 0},
}

// Permute reorders one RGB triple according to order. Unknown orders
// fall back to RGB.
func Permute(order ChannelOrder, r, g, b byte) (byte, byte, byte) {
	perm, ok := orderPermutation[order]
	if !ok {
		return r, g, b
	}
	src := [3]byte{r, g, b}
	return src[perm[0]], src[perm[1]], src[perm[2]]
}

// Inverse returns the channel order that undoes order, used by tests
// asserting the remap round-trips.
func Inverse(order ChannelOrder) ChannelOrder {
	perm, ok := orderPermutation[order]
	if !ok {
		return OrderRGB
	}
	var inv [3]int
	for dst, src := range perm {
		inv[src] = dst
	}
	for name, p := range orderPermutation {
		if p == inv {
			return name
		}
	}
	return OrderRGB
}

// DeltaConfig controls delta-encoding behaviour.
type DeltaConfig struct {
	Enabled           bool
	Threshold         int // integer per-channel change required to transmit
	FullFrameInterval int // after N frames, send full universe regardless of diff
}

// UniverseConfig is the per-universe sender configuration.
type UniverseConfig struct {
	SubUniverse int // DMX universe address (0-15 within its sub-net)
	Net         int // DMX net address (0-127)
	Order       ChannelOrder
}

// Stats are lock-free single-producer counters; only the sender's
// owning goroutine (the player's play loop) writes them, readers
// observe eventually-consistent values without synchronization.
type Stats struct {
	PacketsSent atomic.Uint64
	BytesSent   atomic.Uint64
	Drops       atomic.Uint64
}

// Snapshot returns a value copy of the current counters.
func (s *Stats) Snapshot() (packetsSent, bytesSent, drops uint64) {
	return s.PacketsSent.Load(), s.BytesSent.Load(), s.Drops.Load()
}

type universeState struct {
	lastSent        [ChannelsPerUniverse]byte
	hasLast         bool
	framesSinceFull int
}

// State is the sender's active/idle lifecycle state.
type State string

// Sender states.
const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// Sender emits Art-Net OpDmx packets for a set of universes to one
// UDP destination. All mutating methods besides the Stats fields are
// intended to be called from a single owning goroutine; configuration
// setters are guarded by a
// mutex since they may be invoked from the control-surface HTTP
// handlers concurrently with the play loop's Send calls.
type Sender struct {
	mu         sync.Mutex
	targetIP   string
	port       int
	broadcast  bool
	delta      DeltaConfig
	universes  map[int]UniverseConfig
	defaultCfg UniverseConfig

	conn *net.UDPConn
	seq  atomic.Uint32 // wraps at 256, matching the 1-byte sequence field

	state State
	stats map[int]*Stats

	statesMu sync.Mutex
	statesBy map[int]*universeState
}

// New returns an idle Sender. Call Start before the first Send.
func New(targetIP string, delta DeltaConfig) *Sender {
	return &Sender{
		targetIP:   targetIP,
		port:       defaultPort,
		delta:      delta,
		universes:  make(map[int]UniverseConfig),
		defaultCfg: UniverseConfig{Order: OrderRGB},
		state:      StateIdle,
		stats:      make(map[int]*Stats),
		statesBy:   make(map[int]*universeState),
	}
}

// Start allocates the UDP socket and seeds per-universe state,
// re-asserting the active flag even after a prior Stop.
func (s *Sender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.targetIP, s.port)
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("could not resolve art-net target %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("could not open art-net socket: %w", err)
	}
	if s.broadcast {
		if err := enableBroadcast(conn); err != nil {
			conn.Close() //nolint:errcheck
			return fmt.Errorf("could not enable udp broadcast: %w", err)
		}
	}

	s.conn = conn
	s.state = StateActive

	s.statesMu.Lock()
	s.statesBy = make(map[int]*universeState)
	s.statesMu.Unlock()

	return nil
}

// Stop closes the socket and drops last_sent, guaranteed to run on
// every exit path by callers.
func (s *Sender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil

	s.statesMu.Lock()
	s.statesBy = make(map[int]*universeState)
	s.statesMu.Unlock()

	return err
}

// IsActive reports whether the sender currently owns an open socket.
func (s *Sender) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive
}

// SetTargetIP changes the destination address; takes effect on the
// next Start.
func (s *Sender) SetTargetIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetIP = ip
}

// SetBroadcast toggles SO_BROADCAST on the sender's socket; takes
// effect on the next Start.
func (s *Sender) SetBroadcast(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = b
}

// SetDelta replaces the delta-encoding configuration.
func (s *Sender) SetDelta(cfg DeltaConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delta = cfg
}

// SetChannelOrder configures the channel permutation for one universe.
func (s *Sender) SetChannelOrder(universe int, order ChannelOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.universes[universe]
	cfg.Order = order
	s.universes[universe] = cfg
}

// SetStartUniverse configures the net/sub-universe base address the
// first configured universe maps to; callers address universes by a
// zero-based logical index and this offset is added at encode time.
func (s *Sender) SetStartUniverse(net, subUniverse int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultCfg.Net = net
	s.defaultCfg.SubUniverse = subUniverse
}

func (s *Sender) configFor(universe int) UniverseConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.universes[universe]; ok {
		if cfg.Net == 0 && cfg.SubUniverse == 0 {
			cfg.Net = s.defaultCfg.Net
			cfg.SubUniverse = s.defaultCfg.SubUniverse + universe
		}
		return cfg
	}
	return UniverseConfig{
		Net:         s.defaultCfg.Net,
		SubUniverse: s.defaultCfg.SubUniverse + universe,
		Order:       OrderRGB,
	}
}

// ConfigSnapshot is the sender's persisted configuration, captured for
// the engine snapshot document and re-applied on restore.
type ConfigSnapshot struct {
	TargetIP         string                 `json:"targetIp"`
	Broadcast        bool                   `json:"broadcast"`
	Delta            DeltaConfig            `json:"delta"`
	StartNet         int                    `json:"startNet"`
	StartSubUniverse int                    `json:"startSubUniverse"`
	Universes        map[int]UniverseConfig `json:"universes"`
}

// ConfigSnapshot returns a value copy of the sender's configuration.
func (s *Sender) ConfigSnapshot() ConfigSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	universes := make(map[int]UniverseConfig, len(s.universes))
	for u, cfg := range s.universes {
		universes[u] = cfg
	}
	return ConfigSnapshot{
		TargetIP:         s.targetIP,
		Broadcast:        s.broadcast,
		Delta:            s.delta,
		StartNet:         s.defaultCfg.Net,
		StartSubUniverse: s.defaultCfg.SubUniverse,
		Universes:        universes,
	}
}

// ApplyConfig replaces the sender's configuration from a snapshot;
// takes effect on the next Start.
func (s *Sender) ApplyConfig(cfg ConfigSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.targetIP = cfg.TargetIP
	s.broadcast = cfg.Broadcast
	s.delta = cfg.Delta
	s.defaultCfg.Net = cfg.StartNet
	s.defaultCfg.SubUniverse = cfg.StartSubUniverse
	s.universes = make(map[int]UniverseConfig, len(cfg.Universes))
	for u, ucfg := range cfg.Universes {
		s.universes[u] = ucfg
	}
}

// Stats returns the lock-free counters for one universe, creating them
// on first reference.
func (s *Sender) Stats(universe int) *Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[universe]
	if !ok {
		st = &Stats{}
		s.stats[universe] = st
	}
	return st
}

func (s *Sender) universeStateFor(universe int) *universeState {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	st, ok := s.statesBy[universe]
	if !ok {
		st = &universeState{}
		s.statesBy[universe] = st
	}
	return st
}

// Send applies universe's channel permutation to an (N,3) RGB slice,
// applies the delta decision, and transmits the resulting OpDmx packet
// over UDP. pixels holds up to MaxPixelsPerUniverse RGB triples.
func (s *Sender) Send(universe int, pixels []byte) error {
	cfg := s.configFor(universe)
	stats := s.Stats(universe)

	payload := remapPayload(cfg.Order, pixels)

	st := s.universeStateFor(universe)
	st.framesSinceFull++

	delta := s.currentDelta()
	forceFull := !delta.Enabled || !st.hasLast || st.framesSinceFull >= delta.FullFrameInterval
	if !forceFull && maxAbsDiff(st.lastSent[:len(payload)], payload) < delta.Threshold {
		stats.Drops.Add(1)
		return nil
	}

	if err := s.transmit(cfg, payload); err != nil {
		// NetworkTransient: drop and continue, the play
		// loop must never block or abort on a send failure.
		stats.Drops.Add(1)
		return nil
	}

	copy(st.lastSent[:], payload)
	st.hasLast = true
	st.framesSinceFull = 0
	stats.PacketsSent.Add(1)
	stats.BytesSent.Add(uint64(len(payload)) + 18)
	return nil
}

func (s *Sender) currentDelta() DeltaConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delta
}

func (s *Sender) transmit(cfg UniverseConfig, payload []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("art-net sender is not active")
	}

	seq := byte(s.seq.Add(1) % 256)
	packet := EncodeOpDmx(seq, 0, cfg.SubUniverse, cfg.Net, payload)

	_, err := conn.Write(packet)
	return err
}

// remapPayload reorders each RGB triple in pixels through order,
// vectorized over the slice rather than a per-pixel branch tree.
func remapPayload(order ChannelOrder, pixels []byte) []byte {
	n := len(pixels) / 3
	if n > MaxPixelsPerUniverse {
		n = MaxPixelsPerUniverse
	}
	out := make([]byte, n*3)
	perm := orderPermutation[order]
	if _, ok := orderPermutation[order]; !ok {
		perm = orderPermutation[OrderRGB]
	}
	for i := 0; i < n; i++ {
		src := pixels[i*3 : i*3+3]
		out[i*3] = src[perm[0]]
		out[i*3+1] = src[perm[1]]
		out[i*3+2] = src[perm[2]]
	}
	return out
}

func maxAbsDiff(a, b []byte) int {
	max := 0
	for i := range b {
		var d int
		if i < len(a) {
			d = int(a[i]) - int(b[i])
		} else {
			d = int(b[i])
		}
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}

// EncodeOpDmx builds one Art-Net OpDmx packet: an 18-byte header
// followed by up to 512 bytes of DMX payload.
func EncodeOpDmx(sequence, physical byte, subUniverse, dmxNet int, payload []byte) []byte {
	buf := new(bytes.Buffer)
	w := bitio.NewWriter(buf)

	w.TryWrite([]byte("Art-Net\x00"))
	w.TryWriteByte(byte(opDmx))                // opcode, little-endian low byte
	w.TryWriteByte(byte(opDmx >> 8))           // opcode, little-endian high byte
	w.TryWriteByte(byte(protocolVersion >> 8)) // protocol version, big-endian
	w.TryWriteByte(byte(protocolVersion))
	w.TryWriteByte(sequence)
	w.TryWriteByte(physical)
	w.TryWriteByte(byte(subUniverse))
	w.TryWriteByte(byte(dmxNet))
	w.TryWriteByte(byte(len(payload) >> 8)) // length, big-endian
	w.TryWriteByte(byte(len(payload)))
	w.TryWrite(payload)
	w.Close() //nolint:errcheck // every write above is byte-aligned; nothing to flush

	return buf.Bytes()
}

// enableBroadcast sets SO_BROADCAST on conn so it's permitted to send
// to a broadcast destination IP.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

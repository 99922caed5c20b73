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

package log

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, context.CancelFunc) {
	t.Helper()
	var wg sync.WaitGroup
	l := NewLogger(10, &wg)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	return l, cancel
}

func TestSubscribe(t *testing.T) {
	l, cancel := newTestLogger(t)
	defer cancel()

	feed, unsub := l.Subscribe()
	defer unsub()

	l.Info().Src("player").Player("artnet").Msg("hello")

	select {
	case log := <-feed:
		require.Equal(t, "hello", log.Msg)
		require.Equal(t, "player", log.Src)
		require.Equal(t, "artnet", log.Player)
		require.Equal(t, LevelInfo, log.Level)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log")
	}
}

func TestMsgf(t *testing.T) {
	l, cancel := newTestLogger(t)
	defer cancel()

	feed, unsub := l.Subscribe()
	defer unsub()

	l.Error().Msgf("frame %v dropped", 5)

	log := <-feed
	require.Equal(t, "frame 5 dropped", log.Msg)
	require.Equal(t, LevelError, log.Level)
}

func TestRecent(t *testing.T) {
	l, cancel := newTestLogger(t)
	defer cancel()

	feed, unsub := l.Subscribe()
	defer unsub()

	for i := 0; i < 15; i++ {
		l.Warn().Msgf("%v", i)
		<-feed // drain so the dispatch loop makes progress.
	}

	recent := l.Recent(5)
	require.Len(t, recent, 5)
	require.Equal(t, "14", recent[len(recent)-1].Msg)
	require.Equal(t, "10", recent[0].Msg)
}

func TestUnsubscribe(t *testing.T) {
	l, cancel := newTestLogger(t)
	defer cancel()

	feed, unsub := l.Subscribe()
	unsub()

	_, ok := <-feed
	require.False(t, ok)
}

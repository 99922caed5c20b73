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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lumenart/internal/frame"
	"lumenart/pkg/plugin"
)

type recordingGenerator struct {
	calls []int64
	fail  bool
}

func (g *recordingGenerator) Produce(
	frameNumber int64, _ float64, width, height int, _ plugin.Params,
) (*frame.Frame, error) {
	g.calls = append(g.calls, frameNumber)
	if g.fail {
		return nil, errors.New("boom")
	}
	return frame.New(width, height), nil
}

func TestGeneratorSourceSequence(t *testing.T) {
	ctx := context.Background()
	gen := &recordingGenerator{}
	src := NewGenerator(8, 4, 10, gen, nil)

	require.NoError(t, src.Initialize(ctx))
	for i := 0; i < 3; i++ {
		f, delay, err := src.NextFrame(ctx)
		require.NoError(t, err)
		require.Equal(t, 8, f.Width)
		require.Greater(t, delay, time.Duration(0))
	}
	require.Equal(t, []int64{0, 1, 2}, gen.calls)
	require.False(t, src.IsExhausted())
}

func TestGeneratorSourceTransientError(t *testing.T) {
	ctx := context.Background()
	gen := &recordingGenerator{fail: true}
	src := NewGenerator(8, 4, 10, gen, nil)
	require.NoError(t, src.Initialize(ctx))

	_, _, err := src.NextFrame(ctx)
	require.Error(t, err)
	var te *TransientError
	require.ErrorAs(t, err, &te)
}

func TestGeneratorSourceSeekAndReset(t *testing.T) {
	ctx := context.Background()
	gen := &recordingGenerator{}
	src := NewGenerator(8, 4, 10, gen, nil)
	require.NoError(t, src.Initialize(ctx))

	require.NoError(t, src.Seek(ctx, 42))
	require.Equal(t, int64(42), src.frameNumber)

	require.NoError(t, src.Reset(ctx))
	require.Equal(t, int64(0), src.frameNumber)
}

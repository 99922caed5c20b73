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
	"io"
	"os/exec"
	"sync"
	"time"

	"lumenart/internal/frame"
	"lumenart/pkg/ffmpeg"
	"lumenart/pkg/log"
)

// VideoDecode demuxes a container sequentially via an ffmpeg
// subprocess emitting raw RGB24 frames.
type VideoDecode struct {
	FFmpegBin     string
	Path          string
	Width, Height int
	FPS           float64
	InputArgs     []string // e.g. ["-stream_loop", "-1"]
	Logger        *log.Logger

	// mu guards only the non-sequential operations (initialize,
	// seek, cleanup); NextFrame reads the pipe lock-free once
	// running; sequential reads stay lock-free.
	mu sync.Mutex

	cmd       *exec.Cmd
	stdout    io.ReadCloser
	frameSize int
	exhausted bool
}

// NewVideoDecode constructs a VideoDecode source; call Initialize
// before the first NextFrame.
func NewVideoDecode(ffmpegBin, path string, width, height int, fps float64, logger *log.Logger) *VideoDecode {
	return &VideoDecode{
		FFmpegBin: ffmpegBin, Path: path, Width: width, Height: height, FPS: fps,
		Logger:    logger,
		frameSize: ffmpeg.RawFrameSize(width, height),
	}
}

func (v *VideoDecode) startLocked(ctx context.Context, seekSeconds float64) error {
	args := append([]string{}, v.InputArgs...)
	if seekSeconds > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", seekSeconds))
	}
	args = ffmpeg.RawVideoArgs(args, v.Path, v.Width, v.Height)

	cmd := exec.CommandContext(ctx, v.FFmpegBin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("could not open stdout pipe: %w", err)
	}
	if v.Logger != nil {
		stderr, err := cmd.StderrPipe()
		if err == nil {
			go logStderr(stderr, v.Logger)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start ffmpeg: %w", err)
	}

	v.cmd = cmd
	v.stdout = stdout
	v.exhausted = false
	return nil
}

func logStderr(r io.Reader, logger *log.Logger) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			logger.Debug().Src("frame_source").Msgf("ffmpeg: %s", buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Initialize starts the decode subprocess from the beginning.
func (v *VideoDecode) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.startLocked(ctx, 0)
}

// NextFrame reads exactly one RGB24 frame from the subprocess's
// stdout. This is the sequential, lock-free path.
func (v *VideoDecode) NextFrame(context.Context) (*frame.Frame, time.Duration, error) {
	if v.stdout == nil {
		return nil, 0, &FatalError{Err: fmt.Errorf("source not initialized")}
	}

	buf := make([]byte, v.frameSize)
	n, err := io.ReadFull(v.stdout, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		v.exhausted = true
		return nil, 0, ErrExhausted
	}
	if err != nil {
		return nil, 0, &TransientError{Err: err}
	}
	if n != v.frameSize {
		return nil, 0, &TransientError{Err: fmt.Errorf("short read: %d of %d bytes", n, v.frameSize)}
	}

	delay := time.Duration(float64(time.Second) / v.FPS)
	return &frame.Frame{Width: v.Width, Height: v.Height, Pix: buf}, delay, nil
}

// Reset restarts the subprocess from the beginning, used by overlay
// layers auto-looping at the master's tempo.
func (v *VideoDecode) Reset(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stopLocked()
	return v.startLocked(ctx, 0)
}

// Seek restarts the subprocess at the given position in seconds.
func (v *VideoDecode) Seek(ctx context.Context, positionSeconds float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stopLocked()
	return v.startLocked(ctx, positionSeconds)
}

func (v *VideoDecode) stopLocked() {
	if v.cmd == nil || v.cmd.Process == nil {
		return
	}
	v.cmd.Process.Kill() //nolint:errcheck
	v.cmd.Wait()         //nolint:errcheck
	v.cmd = nil
	v.stdout = nil
}

func (v *VideoDecode) IsExhausted() bool { return v.exhausted }

func (v *VideoDecode) Cleanup() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopLocked()
	return nil
}

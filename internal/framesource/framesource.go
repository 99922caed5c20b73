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

// Package framesource implements the pluggable producers of RGB
// frames the engine composes: VideoDecode, Generator,
// Webcam, Screencapture, Stream and Null.
package framesource

import (
	"context"
	"errors"
	"time"

	"lumenart/internal/frame"
)

// Source is the capability set every frame-source variant implements
// : initialize, next-frame, reset, seek, is-exhausted, cleanup.
type Source interface {
	// Initialize acquires any resources the source needs (subprocess,
	// socket, device handle). Resources are acquired lazily by
	// callers — on first NextFrame, not at construction.
	Initialize(ctx context.Context) error

	// NextFrame returns the next RGB frame matching the engine
	// canvas and the delay the caller should wait before the
	// following tick.
	NextFrame(ctx context.Context) (*frame.Frame, time.Duration, error)

	// Reset rewinds the source to its first frame. Used by overlay
	// layers auto-looping at the master's tempo.
	Reset(ctx context.Context) error

	// Seek moves to a specific frame number or, for sources with no
	// frame-count, a position in seconds.
	Seek(ctx context.Context, position float64) error

	// IsExhausted reports whether the prior NextFrame reached the
	// end of the source's content.
	IsExhausted() bool

	// Cleanup releases all resources. Safe to call multiple times.
	Cleanup() error
}

// TransientError marks a recoverable read failure. The play loop retries
// the read once; if that also fails it reports the error and shows a
// black frame for that tick. No seek or resync is made.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient source error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks an unrecoverable read failure: stop the player on this clip.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return "fatal source error: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// ErrExhausted is returned by NextFrame when the source has no more
// content and IsExhausted now reports true.
var ErrExhausted = errors.New("frame source exhausted")

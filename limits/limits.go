// Package limits provides centralized size limits for the stabilization pipeline.
// This ensures consistent validation across decoding, analysis and path optimization.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MinFrameDimension is the smallest frame side the detectors and the
	// tracker can work with (the largest detector filter is 27 pixels).
	MinFrameDimension = 32

	// MaxFrameDimension bounds either side of a decoded frame (16K video).
	MaxFrameDimension = 16384

	// MinFrames is the smallest video the path optimizer accepts: one
	// residual motion needs two frames.
	MinFrames = 2

	// MaxLPEntries bounds the dense constraint matrix handed to the simplex
	// solver (rows × columns). At 8 bytes per entry this is ~480 MB.
	MaxLPEntries = 60_000_000
)

var (
	// ErrFrameTooSmall indicates a frame below MinFrameDimension.
	ErrFrameTooSmall = errors.New("frame too small")

	// ErrFrameTooLarge indicates a frame above MaxFrameDimension.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrTooFewFrames indicates a video shorter than MinFrames.
	ErrTooFewFrames = errors.New("too few frames")

	// ErrProblemTooLarge indicates a linear program beyond MaxLPEntries.
	ErrProblemTooLarge = errors.New("linear program too large")
)

// ValidateFrameSize validates frame dimensions against MinFrameDimension and
// MaxFrameDimension. Returns an error with the offending size.
func ValidateFrameSize(width, height int) error {
	if width < MinFrameDimension || height < MinFrameDimension {
		return fmt.Errorf("%w: %dx%d below %d", ErrFrameTooSmall, width, height, MinFrameDimension)
	}
	if width > MaxFrameDimension || height > MaxFrameDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrFrameTooLarge, width, height, MaxFrameDimension)
	}
	return nil
}

// ValidateFrameCount validates that a video has at least MinFrames frames.
func ValidateFrameCount(frames int) error {
	if frames < MinFrames {
		return fmt.Errorf("%w: %d frames, need at least %d", ErrTooFewFrames, frames, MinFrames)
	}
	return nil
}

// ValidateProblemSize validates the dense standard-form matrix of a linear
// program against MaxLPEntries.
func ValidateProblemSize(rows, cols int) error {
	if rows*cols > MaxLPEntries {
		return fmt.Errorf("%w: %dx%d matrix exceeds %d entries", ErrProblemTooLarge, rows, cols, MaxLPEntries)
	}
	return nil
}

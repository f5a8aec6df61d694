package video

import "errors"

// Construction errors.
var (
	// ErrNoFrames indicates a video without any decodable frame.
	ErrNoFrames = errors.New("video has no frames")

	// ErrFrameSizeMismatch indicates frames of differing dimensions.
	ErrFrameSizeMismatch = errors.New("frame size differs from the first frame")
)

// Access errors.
var (
	// ErrFrameIndex indicates an index outside [0, Len()).
	ErrFrameIndex = errors.New("frame index out of range")

	// ErrCropBoxOutside indicates a crop box that is empty or not contained
	// in the frame.
	ErrCropBoxOutside = errors.New("crop box outside frame bounds")

	// ErrMaskLength indicates an outlier mask whose length differs from the
	// number of displacements.
	ErrMaskLength = errors.New("outlier mask length mismatch")

	// ErrTransformCount indicates a transform slice whose length differs
	// from the frame count.
	ErrTransformCount = errors.New("transform count mismatch")
)

// Location file errors.
var (
	// ErrMalformedLocation indicates a line that is not frameIndex,x,y.
	ErrMalformedLocation = errors.New("malformed location line")
)

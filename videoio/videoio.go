// Package videoio defines the decoded-frame source and encoded-frame sink
// the stabilizer reads from and writes to, together with two
// implementations: a directory of still images, which needs nothing beyond
// Go image decoders, and video containers through OpenCV (gocv), which is
// only compiled with the gocv build tag.
package videoio

import (
	"errors"
	"image"
)

// Info describes a source as reported by its container.
type Info struct {
	Name string
	// FrameCount is the number of frames the container claims to hold. The
	// number actually delivered by Next may be lower.
	FrameCount int
	FPS        float64
	// Codec is a container specific identifier (a FOURCC for video files)
	// that sinks reuse for the output.
	Codec  string
	Width  int
	Height int
}

// Source delivers decoded frames in decode order. Next returns io.EOF after
// the last frame.
type Source interface {
	Info() Info
	Next() (image.Image, error)
	Close() error
}

// Sink receives output frames in order.
type Sink interface {
	WriteFrame(img image.Image) error
	Close() error
}

// Source errors.
var (
	// ErrNotFound indicates the input path does not exist.
	ErrNotFound = errors.New("source not found")

	// ErrOpen indicates the input exists but could not be opened.
	ErrOpen = errors.New("source could not be opened")

	// ErrEmptySequence indicates a directory without decodable images.
	ErrEmptySequence = errors.New("no images in sequence directory")

	// ErrContainerUnsupported indicates the binary was built without a
	// container backend.
	ErrContainerUnsupported = errors.New("video containers require the gocv build tag")
)

// Sink errors.
var (
	// ErrSinkClosed indicates a write after Close.
	ErrSinkClosed = errors.New("sink is closed")

	// ErrFrameSize indicates an output frame whose size differs from the
	// first frame written.
	ErrFrameSize = errors.New("output frame size changed")
)

//go:build !gocv

package videoio

import (
	"errors"
	"fmt"
	"image"
	"os"
)

// Capture is unavailable without the gocv build tag.
type Capture struct{}

// OpenCapture reports ErrContainerUnsupported, or ErrNotFound when the path
// does not exist.
func OpenCapture(path string) (*Capture, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil, ErrContainerUnsupported
}

// Info is never reached.
func (c *Capture) Info() Info { return Info{} }

// Next is never reached.
func (c *Capture) Next() (image.Image, error) { return nil, ErrContainerUnsupported }

// Close is never reached.
func (c *Capture) Close() error { return nil }

// Writer is unavailable without the gocv build tag.
type Writer struct{}

// CreateWriter reports ErrContainerUnsupported.
func CreateWriter(path, codec string, fps float64, width, height int) (*Writer, error) {
	return nil, ErrContainerUnsupported
}

// WriteFrame is never reached.
func (w *Writer) WriteFrame(img image.Image) error { return ErrContainerUnsupported }

// Close is never reached.
func (w *Writer) Close() error { return nil }

// Package video holds a decoded video and the per-frame analysis results
// produced by the stabilization stages.
//
// Frames are created once and never added or removed. Each frame guards its
// own fields, so stages may write different frames concurrently while a
// viewer takes snapshots.
package video

import (
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/geometry"
)

// Metadata describes where a video came from.
type Metadata struct {
	Name string
	FPS  float64
	// Codec is passed through to the output container.
	Codec string
}

// Video is an ordered, fixed-length collection of frames sharing one size.
type Video struct {
	meta   Metadata
	width  int
	height int
	frames []*Frame

	mu      sync.RWMutex
	cropBox geometry.Rect
}

// New copies images into frames. All images must share the size of the
// first one. The crop box starts as the full frame.
func New(meta Metadata, images []image.Image) (*Video, error) {
	if len(images) == 0 {
		return nil, ErrNoFrames
	}
	b := images[0].Bounds()
	v := &Video{
		meta:    meta,
		width:   b.Dx(),
		height:  b.Dy(),
		frames:  make([]*Frame, len(images)),
		cropBox: geometry.Rect{Width: float64(b.Dx()), Height: float64(b.Dy())},
	}
	for i, img := range images {
		if s := img.Bounds().Size(); s.X != v.width || s.Y != v.height {
			return nil, fmt.Errorf("%w: frame %d is %dx%d, want %dx%d",
				ErrFrameSizeMismatch, i, s.X, s.Y, v.width, v.height)
		}
		v.frames[i] = NewFrame(i, img)
	}

	logrus.WithFields(logrus.Fields{
		"function": "video.New",
		"name":     meta.Name,
		"frames":   len(images),
		"width":    v.width,
		"height":   v.height,
	}).Debug("Video created")

	return v, nil
}

// Len returns the number of frames.
func (v *Video) Len() int { return len(v.frames) }

// Width returns the frame width in pixels.
func (v *Video) Width() int { return v.width }

// Height returns the frame height in pixels.
func (v *Video) Height() int { return v.height }

// Name returns the source name.
func (v *Video) Name() string { return v.meta.Name }

// FPS returns the source frame rate.
func (v *Video) FPS() float64 { return v.meta.FPS }

// Codec returns the source codec identifier.
func (v *Video) Codec() string { return v.meta.Codec }

// Metadata returns the source description.
func (v *Video) Metadata() Metadata { return v.meta }

// Frame returns frame i.
func (v *Video) Frame(i int) (*Frame, error) {
	if i < 0 || i >= len(v.frames) {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(v.frames))
	}
	return v.frames[i], nil
}

// Frames returns the frames in order. The slice is a copy; the frames are
// shared.
func (v *Video) Frames() []*Frame {
	return append([]*Frame(nil), v.frames...)
}

// CropBox returns the output window in crop coordinates.
func (v *Video) CropBox() geometry.Rect {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cropBox
}

// SetCropBox replaces the output window. The box must be non-empty and lie
// within the frame.
func (v *Video) SetCropBox(r geometry.Rect) error {
	if r.Empty() || !r.Within(float64(v.width), float64(v.height)) {
		return fmt.Errorf("%w: %v in %dx%d", ErrCropBoxOutside, r, v.width, v.height)
	}
	v.mu.Lock()
	v.cropBox = r
	v.mu.Unlock()
	return nil
}

// AffineTransforms returns every frame's transform to its predecessor.
func (v *Video) AffineTransforms() []geometry.Affine {
	out := make([]geometry.Affine, len(v.frames))
	for i, f := range v.frames {
		out[i] = f.AffineTransform()
	}
	return out
}

// UpdateTransforms returns every frame's crop window pose.
func (v *Video) UpdateTransforms() []geometry.Affine {
	out := make([]geometry.Affine, len(v.frames))
	for i, f := range v.frames {
		out[i] = f.UpdateTransform()
	}
	return out
}

// SetUpdateTransforms writes one pose per frame. Nothing is written when
// the length does not match.
func (v *Video) SetUpdateTransforms(ts []geometry.Affine) error {
	if len(ts) != len(v.frames) {
		return fmt.Errorf("%w: %d transforms for %d frames", ErrTransformCount, len(ts), len(v.frames))
	}
	for i, f := range v.frames {
		f.SetUpdateTransform(ts[i])
	}
	return nil
}

// Degenerate returns the indices of frames whose motion fit fell back to
// identity, in ascending order.
func (v *Video) Degenerate() []int {
	var out []int
	for i, f := range v.frames {
		if d, _ := f.Degenerate(); d {
			out = append(out, i)
		}
	}
	return out
}

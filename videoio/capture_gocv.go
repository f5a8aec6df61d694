//go:build gocv

package videoio

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Capture decodes a video container through OpenCV.
type Capture struct {
	vc   *gocv.VideoCapture
	buf  gocv.Mat
	info Info
}

// OpenCapture opens a video file and reads its frame count, frame rate,
// FOURCC and frame size.
func OpenCapture(path string) (*Capture, error) {
	logrus.WithFields(logrus.Fields{
		"function": "OpenCapture",
		"path":     path,
	}).Info("Opening video container")

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrOpen, path)
	}

	c := &Capture{
		vc:  vc,
		buf: gocv.NewMat(),
		info: Info{
			Name:       filepath.Base(path),
			FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
			FPS:        vc.Get(gocv.VideoCaptureFPS),
			Codec:      vc.CodecString(),
			Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		},
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpenCapture",
		"frame_count": c.info.FrameCount,
		"fps":         c.info.FPS,
		"codec":       c.info.Codec,
	}).Info("Video container opened")

	return c, nil
}

// Info returns the container description.
func (c *Capture) Info() Info {
	return c.info
}

// Next decodes the next frame.
func (c *Capture) Next() (image.Image, error) {
	if ok := c.vc.Read(&c.buf); !ok || c.buf.Empty() {
		return nil, io.EOF
	}
	img, err := c.buf.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the decoder.
func (c *Capture) Close() error {
	if err := c.buf.Close(); err != nil {
		c.vc.Close()
		return err
	}
	return c.vc.Close()
}

// Writer encodes frames into a video container through OpenCV.
type Writer struct {
	vw     *gocv.VideoWriter
	width  int
	height int
	closed bool
}

// CreateWriter opens path for writing with the given FOURCC codec, frame
// rate and frame size.
func CreateWriter(path, codec string, fps float64, width, height int) (*Writer, error) {
	logrus.WithFields(logrus.Fields{
		"function": "CreateWriter",
		"path":     path,
		"codec":    codec,
		"fps":      fps,
		"width":    width,
		"height":   height,
	}).Info("Creating video writer")

	vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}
	return &Writer{vw: vw, width: width, height: height}, nil
}

// WriteFrame encodes one frame.
func (w *Writer) WriteFrame(img image.Image) error {
	if w.closed {
		return ErrSinkClosed
	}
	if b := img.Bounds(); b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("%w: %dx%d, want %dx%d", ErrFrameSize, b.Dx(), b.Dy(), w.width, w.height)
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()
	return w.vw.Write(mat)
}

// Close flushes and closes the container.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.vw.Close()
}

// Package render produces the output frames of a stabilized video: the
// crop window cut out of each frame along its update pose, the fixed crop
// box for comparison, or the original frame annotated with the crop window
// and the motion analysis.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/video"
	"github.com/opd-ai/vidstab/videoio"
)

// Mode selects what RenderFrame produces.
type Mode int

const (
	// Stabilized cuts the crop window out of each frame along its update
	// pose.
	Stabilized Mode = iota
	// CropOnly cuts the crop box with an identity pose.
	CropOnly
	// Annotated draws the crop window and analysis overlays onto the full
	// original frame.
	Annotated
)

// ErrUnknownMode indicates a mode or policy name that does not parse.
var ErrUnknownMode = errors.New("unknown render mode")

var modeNames = map[Mode]string{
	Stabilized: "stabilized",
	CropOnly:   "crop-only",
	Annotated:  "annotated",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for k, name := range modeNames {
		if name == s {
			*m = k
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Policy decides what happens to a frame whose crop window leaves the
// frame.
type Policy int

const (
	// Skip omits the frame from the output.
	Skip Policy = iota
	// Letterbox writes a black frame of the output size.
	Letterbox
)

func (p Policy) String() string {
	switch p {
	case Skip:
		return "skip"
	case Letterbox:
		return "letterbox"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if p != Skip && p != Letterbox {
		return nil, fmt.Errorf("%w: policy %d", ErrUnknownMode, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "skip":
		*p = Skip
	case "letterbox":
		*p = Letterbox
	default:
		return fmt.Errorf("%w: policy %q", ErrUnknownMode, text)
	}
	return nil
}

// Overlay selects the annotations drawn in Annotated mode.
type Overlay struct {
	Features bool `yaml:"features"`
	Tracks   bool `yaml:"tracks"`
	Outliers bool `yaml:"outliers"`
}

// Options configures a Transformer.
type Options struct {
	Mode    Mode    `yaml:"mode"`
	Policy  Policy  `yaml:"policy"`
	Overlay Overlay `yaml:"overlay"`
}

// DefaultOptions renders stabilized frames and skips failures.
func DefaultOptions() Options {
	return Options{Mode: Stabilized, Policy: Skip}
}

// FrameError records a frame that could not be cut out.
type FrameError struct {
	Frame int
	Err   error
}

func (e FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e FrameError) Unwrap() error { return e.Err }

// Report summarizes a RenderVideo call.
type Report struct {
	Written     int
	Skipped     []int
	Letterboxed []int
	Errors      []FrameError
}

// Transformer renders frames of a video along their update transforms.
// Frame 0 is rendered through its own update like every other frame; it is
// the identity unless the path was solved with centered salient tracking,
// which leaves the first pose free.
type Transformer struct {
	opts Options
}

// NewTransformer returns a transformer using opts.
func NewTransformer(opts Options) *Transformer {
	return &Transformer{opts: opts}
}

// OutputSize returns the size of the frames produced for v.
func (t *Transformer) OutputSize(v *video.Video) image.Point {
	if t.opts.Mode == Annotated {
		return image.Pt(v.Width(), v.Height())
	}
	crop := v.CropBox()
	return image.Pt(int(math.Round(crop.Width)), int(math.Round(crop.Height)))
}

// RenderFrame renders frame i. A crop window leaving the frame yields an
// error wrapping geometry.ErrOutOfBounds.
func (t *Transformer) RenderFrame(v *video.Video, i int) (image.Image, error) {
	f, err := v.Frame(i)
	if err != nil {
		return nil, err
	}
	crop := v.CropBox()

	switch t.opts.Mode {
	case Annotated:
		return annotate(f.Snapshot(), crop, t.opts.Overlay), nil
	case CropOnly:
		return t.cut(f.Image(), geometry.TransformRectangle(geometry.Identity(), crop), v)
	default:
		return t.cut(f.Image(), geometry.TransformRectangle(f.UpdateTransform(), crop), v)
	}
}

// cut extracts rr and rescales it to the output size when the pose scaled
// the window.
func (t *Transformer) cut(img *image.RGBA, rr geometry.RotatedRect, v *video.Video) (image.Image, error) {
	out, err := geometry.CropImage(img, rr)
	if err != nil {
		return nil, err
	}
	size := t.OutputSize(v)
	if out.Bounds().Size() == size {
		return out, nil
	}
	scaled := image.NewRGBA(image.Rectangle{Max: size})
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), out, out.Bounds(), draw.Src, nil)
	return scaled, nil
}

// RenderVideo renders every frame in order into sink. Frames whose crop
// window leaves the frame are handled by the policy and recorded in the
// report; any other failure stops rendering. The sink is not closed.
func (t *Transformer) RenderVideo(ctx context.Context, v *video.Video, sink videoio.Sink) (*Report, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Transformer.RenderVideo",
		"mode":     t.opts.Mode.String(),
		"policy":   t.opts.Policy.String(),
		"frames":   v.Len(),
	})
	logger.Info("Rendering video")

	rep := &Report{}
	for i := 0; i < v.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		img, err := t.RenderFrame(v, i)
		if errors.Is(err, geometry.ErrOutOfBounds) {
			rep.Errors = append(rep.Errors, FrameError{Frame: i, Err: err})
			if t.opts.Policy == Skip {
				rep.Skipped = append(rep.Skipped, i)
				logger.WithFields(logrus.Fields{"frame": i}).Warn("Crop window leaves frame, skipping")
				continue
			}
			rep.Letterboxed = append(rep.Letterboxed, i)
			logger.WithFields(logrus.Fields{"frame": i}).Warn("Crop window leaves frame, letterboxing")
			black := image.NewRGBA(image.Rectangle{Max: t.OutputSize(v)})
			draw.Draw(black, black.Bounds(), image.Black, image.Point{}, draw.Src)
			img = black
		} else if err != nil {
			return rep, FrameError{Frame: i, Err: err}
		}
		if err := sink.WriteFrame(img); err != nil {
			return rep, fmt.Errorf("write frame %d: %w", i, err)
		}
		rep.Written++
	}

	logger.WithFields(logrus.Fields{
		"written": rep.Written,
		"skipped": len(rep.Skipped),
	}).Info("Video rendered")
	return rep, nil
}

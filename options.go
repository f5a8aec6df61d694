package vidstab

import (
	"errors"
	"fmt"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/motion"
	"github.com/opd-ai/vidstab/pathopt"
	"github.com/opd-ai/vidstab/render"
)

// ErrInvalidOptions indicates options that fail validation.
var ErrInvalidOptions = errors.New("invalid options")

// CropBox describes the output window in frame 0 coordinates. Rect, when
// set, is used as is; otherwise the window is Ratio times the frame size,
// centered.
type CropBox struct {
	Ratio float64        `yaml:"ratio"`
	Rect  *geometry.Rect `yaml:"rect,omitempty"`
}

// Resolve returns the crop box for a width × height video.
func (c CropBox) Resolve(width, height int) geometry.Rect {
	if c.Rect != nil {
		return *c.Rect
	}
	return geometry.CenteredRect(width, height, c.Ratio)
}

// Options contains configuration options for creating a Stabilizer.
type Options struct {
	Motion  motion.Options  `yaml:"motion"`
	Path    pathopt.Options `yaml:"path"`
	Render  render.Options  `yaml:"render"`
	CropBox CropBox         `yaml:"crop_box"`
	// TimeProvider times the stages reported in Report. Nil uses the
	// system clock.
	TimeProvider TimeProvider `yaml:"-"`
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Motion:  motion.DefaultOptions(),
		Path:    pathopt.DefaultOptions(),
		Render:  render.DefaultOptions(),
		CropBox: CropBox{Ratio: 0.8},
	}
}

// Validate checks every nested option set.
func (o *Options) Validate() error {
	if err := o.Motion.Validate(); err != nil {
		return fmt.Errorf("%w: motion: %v", ErrInvalidOptions, err)
	}
	if err := o.Path.Validate(); err != nil {
		return fmt.Errorf("%w: path: %v", ErrInvalidOptions, err)
	}
	if o.CropBox.Rect != nil {
		if o.CropBox.Rect.Empty() {
			return fmt.Errorf("%w: crop box %s is empty", ErrInvalidOptions, o.CropBox.Rect)
		}
	} else if o.CropBox.Ratio <= 0 || o.CropBox.Ratio > 1 {
		return fmt.Errorf("%w: crop ratio %g outside (0, 1]", ErrInvalidOptions, o.CropBox.Ratio)
	}
	return nil
}

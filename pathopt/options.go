package pathopt

import (
	"errors"
	"fmt"
	"strings"
)

// Model selects the degrees of freedom of the per-frame crop pose.
type Model int

const (
	// Translation poses shift the crop window only.
	Translation Model = iota
	// Similarity poses add uniform scale and rotation.
	Similarity
	// Affine poses allow every linear component.
	Affine
)

// ErrUnknownModel indicates a model or mode name that does not parse.
var ErrUnknownModel = errors.New("unknown pose model")

var modelNames = map[Model]string{
	Translation: "translation",
	Similarity:  "similarity",
	Affine:      "affine",
}

func (m Model) String() string {
	if s, ok := modelNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel accepts the names produced by String.
func ParseModel(s string) (Model, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modelNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Model) MarshalText() ([]byte, error) {
	if _, ok := modelNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownModel, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Model) UnmarshalText(text []byte) error {
	parsed, err := ParseModel(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// params returns the number of unknowns per free frame.
func (m Model) params() int {
	switch m {
	case Similarity:
		return 4
	case Affine:
		return 6
	}
	return 2
}

// Weights scales the objective terms.
type Weights struct {
	// D1, D2 and D3 weight the first, second and third derivative of the
	// residual motion.
	D1 float64 `yaml:"d1"`
	D2 float64 `yaml:"d2"`
	D3 float64 `yaml:"d3"`
	// Linear weights the four linear matrix entries, Translation the two
	// translation entries.
	Linear      float64 `yaml:"linear"`
	Translation float64 `yaml:"translation"`
}

// Bounds keeps the linear part [a b; c d] of each pose close to a rigid
// motion: a and d lie in [ScaleMin, ScaleMax], b and c in ±ShearMax,
// |b + c| ≤ SkewMax and |a − d| ≤ AspectMax. Translation poses have no
// linear unknowns and ignore them.
type Bounds struct {
	ScaleMin  float64 `yaml:"scale_min"`
	ScaleMax  float64 `yaml:"scale_max"`
	ShearMax  float64 `yaml:"shear_max"`
	SkewMax   float64 `yaml:"skew_max"`
	AspectMax float64 `yaml:"aspect_max"`
}

// SalientMode selects how the crop window tracks a salient region.
type SalientMode int

const (
	// Centered keeps the region's centroid at the center of the crop
	// window. Frame 0 is not pinned to the identity in this mode, so its
	// update transform can move the window like any other frame's.
	Centered SalientMode = iota
	// Anchored keeps the region at the crop position it had in the first
	// frame, which must carry a region.
	Anchored
)

func (m SalientMode) String() string {
	switch m {
	case Centered:
		return "centered"
	case Anchored:
		return "anchored"
	}
	return fmt.Sprintf("SalientMode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m SalientMode) MarshalText() ([]byte, error) {
	if m != Centered && m != Anchored {
		return nil, fmt.Errorf("%w: salient mode %d", ErrUnknownModel, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SalientMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "centered":
		*m = Centered
	case "anchored":
		*m = Anchored
	default:
		return fmt.Errorf("%w: salient mode %q", ErrUnknownModel, text)
	}
	return nil
}

// Salient configures the salient term.
type Salient struct {
	Enabled bool        `yaml:"enabled"`
	Mode    SalientMode `yaml:"mode"`
	Weight  float64     `yaml:"weight"`
}

// Options configures the L1 path model.
type Options struct {
	Model   Model   `yaml:"model"`
	Weights Weights `yaml:"weights"`
	Bounds  Bounds  `yaml:"bounds"`
	Salient Salient `yaml:"salient"`
	// Margin is the distance in pixels every crop corner keeps from the
	// frame border. Frame 0 is pinned to the identity pose, so a crop box
	// must sit at least Margin inside the frame on every side; a box that
	// touches the border, such as Rect{0, 0, W-1, H-1}, makes the program
	// infeasible even for a static video.
	Margin float64 `yaml:"margin"`
	// Tolerance is the simplex optimality tolerance.
	Tolerance float64 `yaml:"tolerance"`
}

// DefaultOptions returns the path optimization defaults.
func DefaultOptions() Options {
	return Options{
		Model: Translation,
		Weights: Weights{
			D1:          10,
			D2:          1,
			D3:          100,
			Linear:      100,
			Translation: 1,
		},
		Bounds: Bounds{
			ScaleMin:  0.9,
			ScaleMax:  1.1,
			ShearMax:  0.1,
			SkewMax:   0.05,
			AspectMax: 0.1,
		},
		Salient: Salient{
			Mode:   Centered,
			Weight: 1,
		},
		Margin:    1,
		Tolerance: 1e-10,
	}
}

// Validate rejects options that cannot form a bounded program.
func (o Options) Validate() error {
	if _, ok := modelNames[o.Model]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownModel, int(o.Model))
	}
	w := o.Weights
	if w.D1 < 0 || w.D2 < 0 || w.D3 < 0 || w.Linear < 0 || w.Translation < 0 {
		return errors.New("objective weights must not be negative")
	}
	b := o.Bounds
	if b.ScaleMin > b.ScaleMax || b.ShearMax < 0 || b.SkewMax < 0 || b.AspectMax < 0 {
		return fmt.Errorf("invalid pose bounds %+v", b)
	}
	if o.Salient.Enabled && o.Salient.Weight <= 0 {
		return fmt.Errorf("salient weight %g must be positive", o.Salient.Weight)
	}
	if o.Margin < 0 {
		return fmt.Errorf("margin %g is negative", o.Margin)
	}
	if o.Tolerance <= 0 {
		return fmt.Errorf("tolerance %g must be positive", o.Tolerance)
	}
	return nil
}

// Package features detects trackable points in luminance planes.
//
// Five detectors are available behind the Detector interface. All of them
// compute a response per candidate location and then share one selection
// step: candidates are ranked by response, weak ones are dropped relative
// to the strongest, and a minimum spacing and a maximum count are enforced.
package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

// Options tunes detection.
type Options struct {
	// MaxFeatures caps the number of returned points. Zero means no cap.
	MaxFeatures int `yaml:"max_features"`
	// Quality drops candidates whose response is below Quality times the
	// strongest response.
	Quality float64 `yaml:"quality"`
	// MinDistance is the minimum spacing between returned points in pixels.
	MinDistance float64 `yaml:"min_distance"`
	// Threshold is the FAST segment-test intensity threshold.
	Threshold float64 `yaml:"threshold"`
	// HarrisK is the Harris trace coefficient.
	HarrisK float64 `yaml:"harris_k"`
	// HessianThreshold is the minimum SURF determinant for intensities
	// scaled to [0, 1].
	HessianThreshold float64 `yaml:"hessian_threshold"`
	// ContrastThreshold is the minimum SIFT difference-of-Gaussians
	// contrast for intensities scaled to [0, 1].
	ContrastThreshold float64 `yaml:"contrast_threshold"`
	// EdgeRatio rejects SIFT extrema lying on edges.
	EdgeRatio float64 `yaml:"edge_ratio"`
}

// DefaultOptions returns the detection defaults.
func DefaultOptions() Options {
	return Options{
		MaxFeatures:       400,
		Quality:           0.01,
		MinDistance:       10,
		Threshold:         20,
		HarrisK:           0.04,
		HessianThreshold:  0.0004,
		ContrastThreshold: 0.04,
		EdgeRatio:         10,
	}
}

// Validate rejects options no detector can work with.
func (o Options) Validate() error {
	switch {
	case o.MaxFeatures < 0:
		return fmt.Errorf("max features %d is negative", o.MaxFeatures)
	case o.Quality < 0 || o.Quality > 1:
		return fmt.Errorf("quality %g outside [0, 1]", o.Quality)
	case o.MinDistance < 0:
		return fmt.Errorf("min distance %g is negative", o.MinDistance)
	case o.EdgeRatio < 1:
		return fmt.Errorf("edge ratio %g below 1", o.EdgeRatio)
	}
	return nil
}

// Detector finds feature points in a luminance plane. An empty result is
// valid. Points are returned strongest first.
type Detector interface {
	Kind() Kind
	Detect(p *imgproc.Plane, opts Options) []geometry.Point
}

// New returns the detector for kind. Builds with the gocv tag return the
// OpenCV implementation for every kind OpenCV ships in its main modules.
func New(kind Kind) (Detector, error) {
	if d, ok := accelerated(kind); ok {
		return d, nil
	}
	switch kind {
	case GFTT:
		return gftt{}, nil
	case GFTTHarris:
		return gftt{harris: true}, nil
	case FAST:
		return fast{}, nil
	case SURF:
		return surf{}, nil
	case SIFT:
		return sift{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
}

type candidate struct {
	pt       geometry.Point
	response float64
}

// selectCandidates ranks cands by response and applies the quality, spacing
// and count limits.
func selectCandidates(cands []candidate, opts Options) []geometry.Point {
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].response > cands[j].response
	})
	floor := cands[0].response * opts.Quality

	cell := math.Max(opts.MinDistance, 1)
	grid := make(map[[2]int][]geometry.Point)
	minDist2 := opts.MinDistance * opts.MinDistance

	var out []geometry.Point
	for _, c := range cands {
		if c.response < floor {
			break
		}
		gx, gy := int(c.pt.X/cell), int(c.pt.Y/cell)
		if opts.MinDistance > 0 && crowded(grid, gx, gy, c.pt, minDist2) {
			continue
		}
		grid[[2]int{gx, gy}] = append(grid[[2]int{gx, gy}], c.pt)
		out = append(out, c.pt)
		if opts.MaxFeatures > 0 && len(out) == opts.MaxFeatures {
			break
		}
	}
	return out
}

func crowded(grid map[[2]int][]geometry.Point, gx, gy int, p geometry.Point, minDist2 float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			for _, q := range grid[[2]int{gx + dx, gy + dy}] {
				ddx, ddy := p.X-q.X, p.Y-q.Y
				if ddx*ddx+ddy*ddy < minDist2 {
					return true
				}
			}
		}
	}
	return false
}

// peaks collects strict local maxima of a response plane above zero,
// ignoring a border of the given width.
func peaks(resp *imgproc.Plane, border int) []candidate {
	var out []candidate
	for y := border; y < resp.Height-border; y++ {
		for x := border; x < resp.Width-border; x++ {
			v := resp.Pix[y*resp.Width+x]
			if v <= 0 || !resp.IsLocalMax(x, y) {
				continue
			}
			out = append(out, candidate{pt: geometry.Pt(float64(x), float64(y)), response: float64(v)})
		}
	}
	return out
}

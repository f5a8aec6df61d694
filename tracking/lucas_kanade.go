// Package tracking follows feature points from one frame to the next with
// pyramidal Lucas-Kanade optical flow. Builds with the gocv tag use
// OpenCV's implementation; the native one serves every other build.
package tracking

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
	"github.com/opd-ai/vidstab/video"
)

// Options tunes the tracker.
type Options struct {
	// Radius is the half-size of the square integration window.
	Radius int `yaml:"radius"`
	// Levels is the number of pyramid levels above full resolution.
	Levels int `yaml:"levels"`
	// Iterations bounds the Newton steps per level.
	Iterations int `yaml:"iterations"`
	// Epsilon stops iterating once a step is shorter than this many pixels.
	Epsilon float64 `yaml:"epsilon"`
	// MinEigen drops points whose window has a smaller minimum eigenvalue
	// of the gradient matrix, averaged per pixel.
	MinEigen float64 `yaml:"min_eigen"`
	// MaxError drops tracks whose mean absolute intensity difference over
	// the window exceeds this value.
	MaxError float64 `yaml:"max_error"`
}

// DefaultOptions returns the tracking defaults.
func DefaultOptions() Options {
	return Options{
		Radius:     10,
		Levels:     3,
		Iterations: 30,
		Epsilon:    0.01,
		MinEigen:   0.5,
		MaxError:   20,
	}
}

// Validate rejects unusable options.
func (o Options) Validate() error {
	switch {
	case o.Radius < 1:
		return fmt.Errorf("window radius %d below 1", o.Radius)
	case o.Levels < 0:
		return fmt.Errorf("pyramid levels %d negative", o.Levels)
	case o.Iterations < 1:
		return fmt.Errorf("iterations %d below 1", o.Iterations)
	}
	return nil
}

// Tracker follows points from one luminance plane into the next. Points
// that cannot be tracked are dropped, so the result may be shorter than
// pts. Each displacement has its Source in prev and its Destination in
// next.
type Tracker interface {
	Track(prev, next *imgproc.Plane, pts []geometry.Point) []video.Displacement
}

// New returns the tracker for this build.
func New(opts Options) Tracker {
	if t, ok := accelerated(opts); ok {
		return t
	}
	return NewLucasKanade(opts)
}

// LucasKanade tracks points between consecutive luminance planes.
type LucasKanade struct {
	opts Options
}

// NewLucasKanade returns a tracker using opts.
func NewLucasKanade(opts Options) *LucasKanade {
	return &LucasKanade{opts: opts}
}

type level struct {
	img, gx, gy *imgproc.Plane
}

func (lk *LucasKanade) pyramid(p *imgproc.Plane) []level {
	planes := imgproc.Pyramid(p, lk.opts.Levels, 2*lk.opts.Radius+1)
	out := make([]level, len(planes))
	for i, pl := range planes {
		gx, gy := pl.Gradients()
		out[i] = level{img: pl, gx: gx, gy: gy}
	}
	return out
}

// Track follows pts from prev into next. Points that cannot be tracked are
// dropped, so the result may be shorter than pts. Each displacement has
// its Source in prev and its Destination in next.
func (lk *LucasKanade) Track(prev, next *imgproc.Plane, pts []geometry.Point) []video.Displacement {
	if len(pts) == 0 {
		return nil
	}
	pp := lk.pyramid(prev)
	np := lk.pyramid(next)
	top := min(len(pp), len(np)) - 1

	out := make([]video.Displacement, 0, len(pts))
	var dropped int
	for _, u := range pts {
		d, ok := lk.trackPoint(pp, np, top, u)
		if !ok {
			dropped++
			continue
		}
		out = append(out, video.Displacement{Source: u, Destination: geometry.Pt(u.X+d.X, u.Y+d.Y)})
	}

	logrus.WithFields(logrus.Fields{
		"function": "LucasKanade.Track",
		"points":   len(pts),
		"tracked":  len(out),
		"dropped":  dropped,
	}).Debug("Tracked points")

	return out
}

func (lk *LucasKanade) trackPoint(pp, np []level, top int, u geometry.Point) (geometry.Point, bool) {
	r := lk.opts.Radius
	n := float64((2*r + 1) * (2*r + 1))
	var gX, gY float64

	for l := top; l >= 0; l-- {
		scale := math.Ldexp(1, -l)
		cx, cy := u.X*scale, u.Y*scale
		I, J := pp[l], np[l]

		var gxx, gxy, gyy float64
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				ix := float64(I.gx.Sample(cx+float64(dx), cy+float64(dy)))
				iy := float64(I.gy.Sample(cx+float64(dx), cy+float64(dy)))
				gxx += ix * ix
				gxy += ix * iy
				gyy += iy * iy
			}
		}
		det := gxx*gyy - gxy*gxy
		minEig := ((gxx + gyy) - math.Sqrt((gxx-gyy)*(gxx-gyy)+4*gxy*gxy)) / 2
		if minEig/n < lk.opts.MinEigen || det == 0 {
			return geometry.Point{}, false
		}

		var vX, vY float64
		for k := 0; k < lk.opts.Iterations; k++ {
			var bx, by float64
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					x, y := cx+float64(dx), cy+float64(dy)
					diff := float64(I.img.Sample(x, y) - J.img.Sample(x+gX+vX, y+gY+vY))
					bx += diff * float64(I.gx.Sample(x, y))
					by += diff * float64(I.gy.Sample(x, y))
				}
			}
			ex := (gyy*bx - gxy*by) / det
			ey := (gxx*by - gxy*bx) / det
			vX += ex
			vY += ey
			if ex*ex+ey*ey < lk.opts.Epsilon*lk.opts.Epsilon {
				break
			}
		}

		if l > 0 {
			gX, gY = 2*(gX+vX), 2*(gY+vY)
		} else {
			gX, gY = gX+vX, gY+vY
		}
	}

	base := pp[0]
	dst := geometry.Pt(u.X+gX, u.Y+gY)
	if !np[0].img.Contains(dst.X, dst.Y) {
		return geometry.Point{}, false
	}

	var residual float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			a := base.img.Sample(u.X+float64(dx), u.Y+float64(dy))
			b := np[0].img.Sample(dst.X+float64(dx), dst.Y+float64(dy))
			residual += math.Abs(float64(a - b))
		}
	}
	if residual/n > lk.opts.MaxError {
		return geometry.Point{}, false
	}
	return geometry.Pt(gX, gY), true
}

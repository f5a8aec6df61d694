package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/spatial/r2"
)

// boundsTolerance absorbs rounding in corners that sit exactly on the image
// border.
const boundsTolerance = 1e-6

var (
	// ErrOutOfBounds indicates a crop region that is not fully inside the
	// source image.
	ErrOutOfBounds = errors.New("crop region outside image bounds")

	// ErrEmptyRegion indicates a crop region without area.
	ErrEmptyRegion = errors.New("crop region is empty")
)

// CropImage extracts the quadrilateral rr from img and returns it axis
// aligned, undoing any rotation or shear. The result is
// round(width) × round(height) pixels where width and height are rr.Size().
func CropImage(img image.Image, rr RotatedRect) (*image.RGBA, error) {
	b := img.Bounds()
	if !rr.Inside(float64(b.Dx()), float64(b.Dy()), boundsTolerance) {
		logrus.WithFields(logrus.Fields{
			"function": "CropImage",
			"corners":  fmt.Sprint(rr.Corners),
			"width":    b.Dx(),
			"height":   b.Dy(),
		}).Debug("Crop region leaves the image")
		return nil, fmt.Errorf("%w: corners %v in %dx%d image", ErrOutOfBounds, rr.Corners, b.Dx(), b.Dy())
	}

	w, h := rr.Size()
	dw, dh := int(math.Round(w)), int(math.Round(h))
	if dw <= 0 || dh <= 0 {
		return nil, fmt.Errorf("%w: %gx%g", ErrEmptyRegion, w, h)
	}

	// dst (u, v) -> src: c0 + u·(c1−c0)/dw + v·(c3−c0)/dh.
	ex := r2.Scale(1/float64(dw), r2.Sub(rr.Corners[1], rr.Corners[0]))
	ey := r2.Scale(1/float64(dh), r2.Sub(rr.Corners[3], rr.Corners[0]))
	d2s := Affine{
		A: ex.X, B: ey.X, Tx: rr.Corners[0].X + float64(b.Min.X),
		C: ex.Y, D: ey.Y, Ty: rr.Corners[0].Y + float64(b.Min.Y),
	}
	s2d, err := d2s.Invert()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyRegion, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Transform(dst, toAff3(s2d), img, b, draw.Src, nil)
	return dst, nil
}

func toAff3(a Affine) f64.Aff3 {
	return f64.Aff3{a.A, a.B, a.Tx, a.C, a.D, a.Ty}
}

// MoveToOrigin translates a frame-indexed point series so that the first
// point, in ascending key order, sits at the origin. Every other point is
// shifted by the same vector. The input is not modified.
func MoveToOrigin(series map[int]Point) map[int]Point {
	out := make(map[int]Point, len(series))
	if len(series) == 0 {
		return out
	}
	keys := make([]int, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	origin := series[keys[0]]
	for _, k := range keys {
		out[k] = r2.Sub(series[k], origin)
	}
	return out
}

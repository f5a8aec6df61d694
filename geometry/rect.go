package geometry

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Rect is an axis-aligned rectangle with its top-left corner at (X, Y).
type Rect struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Corners returns the corners in the order top-left, top-right,
// bottom-right, bottom-left.
func (r Rect) Corners() [4]Point {
	return [4]Point{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}
}

// Center returns the rectangle's center.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether r lies inside [0, width] × [0, height].
func (r Rect) Within(width, height float64) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= width && r.Y+r.Height <= height
}

// Image returns the integer rectangle covering r.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.Width)), int(math.Ceil(r.Y+r.Height)),
	)
}

func (r Rect) String() string {
	return fmt.Sprintf("%gx%g+%g+%g", r.Width, r.Height, r.X, r.Y)
}

// CenteredRect returns a rectangle of ratio·width × ratio·height centered in
// a width × height frame.
func CenteredRect(width, height int, ratio float64) Rect {
	w := math.Round(float64(width) * ratio)
	h := math.Round(float64(height) * ratio)
	return Rect{
		X:      math.Round((float64(width) - w) / 2),
		Y:      math.Round((float64(height) - h) / 2),
		Width:  w,
		Height: h,
	}
}

// BoundingRect returns the smallest axis-aligned rectangle containing pts.
// ok is false for an empty slice.
func BoundingRect(pts []Point) (r Rect, ok bool) {
	if len(pts) == 0 {
		return Rect{}, false
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// RotatedRect is the image of an axis-aligned rectangle under an affine
// transform. Corners keep the order of Rect.Corners, so the quadrilateral is
// a parallelogram whose top edge runs from Corners[0] to Corners[1].
type RotatedRect struct {
	Corners [4]Point
}

// TransformRectangle maps the four corners of r through a.
func TransformRectangle(a Affine, r Rect) RotatedRect {
	var rr RotatedRect
	for i, c := range r.Corners() {
		rr.Corners[i] = ApplyAffine(a, c)
	}
	return rr
}

// Center returns the intersection of the diagonals.
func (rr RotatedRect) Center() Point {
	return r2.Scale(0.5, r2.Add(rr.Corners[0], rr.Corners[2]))
}

// Size returns the lengths of the top and left edges.
func (rr RotatedRect) Size() (width, height float64) {
	return Distance(rr.Corners[0], rr.Corners[1]), Distance(rr.Corners[0], rr.Corners[3])
}

// Angle returns the angle of the top edge in radians, measured clockwise
// from the x axis in image coordinates.
func (rr RotatedRect) Angle() float64 {
	d := r2.Sub(rr.Corners[1], rr.Corners[0])
	return math.Atan2(d.Y, d.X)
}

// Bounds returns the axis-aligned bounding box of the quadrilateral.
func (rr RotatedRect) Bounds() Rect {
	r, _ := BoundingRect(rr.Corners[:])
	return r
}

// Inside reports whether every corner lies within [0, width] × [0, height]
// allowing tol of slack.
func (rr RotatedRect) Inside(width, height, tol float64) bool {
	for _, c := range rr.Corners {
		if c.X < -tol || c.Y < -tol || c.X > width+tol || c.Y > height+tol {
			return false
		}
	}
	return true
}

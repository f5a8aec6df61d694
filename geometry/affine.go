// Package geometry provides the stateless 2D transform math used by the
// stabilization pipeline: affine transforms, points, rectangles and the
// projection of the crop box into a frame.
//
// Points are gonum r2 vectors so that the motion and path code can share
// them with the rest of the numeric stack.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a 2D point in pixel coordinates. Pixel (i, j) covers the square
// [i, i+1) × [j, j+1).
type Point = r2.Vec

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// singularDeterminant is the smallest |det| an affine transform may have and
// still be inverted.
const singularDeterminant = 1e-12

var (
	// ErrSingular indicates an affine transform with no inverse.
	ErrSingular = errors.New("affine transform is singular")
)

// Affine is a 2×3 affine matrix
//
//	| A  B  Tx |
//	| C  D  Ty |
//
// mapping (x, y) to (A·x + B·y + Tx, C·x + D·y + Ty).
type Affine struct {
	A, B, Tx float64
	C, D, Ty float64
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, D: 1}
}

// Translation returns a pure translation by (dx, dy).
func Translation(dx, dy float64) Affine {
	return Affine{A: 1, D: 1, Tx: dx, Ty: dy}
}

// FromMatrix builds an affine transform from its row-major 2×3 entries.
func FromMatrix(m [6]float64) Affine {
	return Affine{A: m[0], B: m[1], Tx: m[2], C: m[3], D: m[4], Ty: m[5]}
}

// Matrix returns the row-major 2×3 entries (A, B, Tx, C, D, Ty).
func (a Affine) Matrix() [6]float64 {
	return [6]float64{a.A, a.B, a.Tx, a.C, a.D, a.Ty}
}

// Det returns the determinant of the linear part.
func (a Affine) Det() float64 {
	return a.A*a.D - a.B*a.C
}

// IsIdentity reports whether every entry is within tol of the identity.
func (a Affine) IsIdentity(tol float64) bool {
	return a.ApproxEqual(Identity(), tol)
}

// ApproxEqual reports whether every entry of a and b differs by at most tol.
func (a Affine) ApproxEqual(b Affine, tol float64) bool {
	am, bm := a.Matrix(), b.Matrix()
	for i := range am {
		if math.Abs(am[i]-bm[i]) > tol {
			return false
		}
	}
	return true
}

// Invert returns the inverse transform.
func (a Affine) Invert() (Affine, error) {
	det := a.Det()
	if math.Abs(det) < singularDeterminant {
		return Affine{}, fmt.Errorf("%w: determinant %g", ErrSingular, det)
	}
	inv := Affine{
		A: a.D / det,
		B: -a.B / det,
		C: -a.C / det,
		D: a.A / det,
	}
	inv.Tx = -(inv.A*a.Tx + inv.B*a.Ty)
	inv.Ty = -(inv.C*a.Tx + inv.D*a.Ty)
	return inv, nil
}

// Compose returns a∘b, the transform that applies b first and then a.
func Compose(a, b Affine) Affine {
	return Affine{
		A:  a.A*b.A + a.B*b.C,
		B:  a.A*b.B + a.B*b.D,
		Tx: a.A*b.Tx + a.B*b.Ty + a.Tx,
		C:  a.C*b.A + a.D*b.C,
		D:  a.C*b.B + a.D*b.D,
		Ty: a.C*b.Tx + a.D*b.Ty + a.Ty,
	}
}

// ApplyAffine maps p through a.
func ApplyAffine(a Affine, p Point) Point {
	return Point{
		X: a.A*p.X + a.B*p.Y + a.Tx,
		Y: a.C*p.X + a.D*p.Y + a.Ty,
	}
}

// Apply is the method form of ApplyAffine.
func (a Affine) Apply(p Point) Point {
	return ApplyAffine(a, p)
}

// Translation returns the translation component.
func (a Affine) Translation() Point {
	return Point{X: a.Tx, Y: a.Ty}
}

// String formats the matrix on one line.
func (a Affine) String() string {
	return fmt.Sprintf("[%.4f %.4f %.3f; %.4f %.4f %.3f]", a.A, a.B, a.Tx, a.C, a.D, a.Ty)
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return r2.Norm(r2.Sub(p, q))
}

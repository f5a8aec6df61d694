package motion

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/opd-ai/vidstab/geometry"
)

// Fit errors.
var (
	// ErrTooFewPoints indicates fewer than three correspondences.
	ErrTooFewPoints = errors.New("at least three correspondences required")

	// ErrSingularFit indicates correspondences that do not determine an
	// affine transform, such as collinear points.
	ErrSingularFit = errors.New("correspondences do not determine an affine transform")

	// ErrPointCount indicates slices of different lengths.
	ErrPointCount = errors.New("point slices differ in length")
)

// FitAffine returns the affine transform A minimizing Σ|A·from[i] − to[i]|²
// using a QR least-squares solve.
func FitAffine(from, to []geometry.Point) (geometry.Affine, error) {
	if len(from) != len(to) {
		return geometry.Affine{}, fmt.Errorf("%w: %d and %d", ErrPointCount, len(from), len(to))
	}
	n := len(from)
	if n < 3 {
		return geometry.Affine{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, n)
	}

	design := mat.NewDense(n, 3, nil)
	rhs := mat.NewDense(n, 2, nil)
	for i := range from {
		design.Set(i, 0, from[i].X)
		design.Set(i, 1, from[i].Y)
		design.Set(i, 2, 1)
		rhs.Set(i, 0, to[i].X)
		rhs.Set(i, 1, to[i].Y)
	}

	var sol mat.Dense
	if err := sol.Solve(design, rhs); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return geometry.Affine{}, fmt.Errorf("%w: condition number %g", ErrSingularFit, float64(cond))
		}
		return geometry.Affine{}, fmt.Errorf("%w: %v", ErrSingularFit, err)
	}

	return geometry.Affine{
		A: sol.At(0, 0), B: sol.At(1, 0), Tx: sol.At(2, 0),
		C: sol.At(0, 1), D: sol.At(1, 1), Ty: sol.At(2, 1),
	}, nil
}

// residual returns |a·from − to|.
func residual(a geometry.Affine, from, to geometry.Point) float64 {
	return geometry.Distance(a.Apply(from), to)
}

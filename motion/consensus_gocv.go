//go:build gocv

package motion

import (
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/opd-ai/vidstab/geometry"
)

const (
	ransacConfidence = 0.99
	ransacRefine     = 10
)

// consensus runs cv::estimateAffine2D with RANSAC. An empty result, which
// OpenCV returns when no sample yields a model, falls back to the native
// sampler.
func consensus(from, to []geometry.Point, opts RansacOptions) (geometry.Affine, bool) {
	src := gocv.NewPoint2fVectorFromPoints(point2f(from))
	defer src.Close()
	dst := gocv.NewPoint2fVectorFromPoints(point2f(to))
	defer dst.Close()
	inliers := gocv.NewMat()
	defer inliers.Close()

	m := gocv.EstimateAffine2DWithParams(src, dst, inliers, int(gocv.HomographyMethodRANSAC),
		opts.Threshold, uint(opts.Iterations), ransacConfidence, ransacRefine)
	defer m.Close()
	if m.Empty() || m.Rows() != 2 || m.Cols() != 3 {
		logrus.WithFields(logrus.Fields{
			"function": "motion.consensus",
			"points":   len(from),
		}).Debug("OpenCV found no affine model")
		return consensusModel(from, to, opts)
	}
	return geometry.Affine{
		A: m.GetDoubleAt(0, 0), B: m.GetDoubleAt(0, 1), Tx: m.GetDoubleAt(0, 2),
		C: m.GetDoubleAt(1, 0), D: m.GetDoubleAt(1, 1), Ty: m.GetDoubleAt(1, 2),
	}, true
}

func point2f(pts []geometry.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}

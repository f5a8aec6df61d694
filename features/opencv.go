//go:build gocv

package features

import (
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

// minQuality is the smallest quality level OpenCV's corner detector accepts.
const minQuality = 1e-6

// accelerated returns the OpenCV detector for kind. SURF lives in the
// nonfree contrib module and stays on the native implementation.
func accelerated(kind Kind) (Detector, bool) {
	switch kind {
	case GFTT:
		return cvGFTT{}, true
	case GFTTHarris:
		return cvGFTT{harris: true}, true
	case FAST:
		return cvFAST{}, true
	case SIFT:
		return cvSIFT{}, true
	}
	return nil, false
}

// matOrFallback converts p, logging and returning ok=false when OpenCV
// cannot take the plane.
func matOrFallback(kind Kind, p *imgproc.Plane) (gocv.Mat, bool) {
	m, err := p.Mat()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "features.matOrFallback",
			"detector": kind.String(),
			"error":    err.Error(),
		}).Warn("Using native detector")
		return gocv.Mat{}, false
	}
	return m, true
}

// cvGFTT runs cv::goodFeaturesToTrack. The binding has no Harris switch,
// so the Harris variant takes every Shi-Tomasi corner and re-ranks them by
// the Harris response.
type cvGFTT struct {
	harris bool
}

func (g cvGFTT) Kind() Kind {
	if g.harris {
		return GFTTHarris
	}
	return GFTT
}

func (g cvGFTT) Detect(p *imgproc.Plane, opts Options) []geometry.Point {
	img, ok := matOrFallback(g.Kind(), p)
	if !ok {
		return gftt{harris: g.harris}.Detect(p, opts)
	}
	defer img.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	quality := math.Max(opts.Quality, minQuality)
	if !g.harris {
		gocv.GoodFeaturesToTrack(img, &corners, opts.MaxFeatures, quality, opts.MinDistance)
		return cornerPoints(corners)
	}

	gocv.GoodFeaturesToTrack(img, &corners, 0, minQuality, 0)
	resp := gftt{harris: true}.response(p, opts)
	pts := cornerPoints(corners)
	cands := make([]candidate, 0, len(pts))
	for _, pt := range pts {
		r := resp.At(int(math.Round(pt.X)), int(math.Round(pt.Y)))
		if r > 0 {
			cands = append(cands, candidate{pt: pt, response: float64(r)})
		}
	}
	return selectCandidates(cands, opts)
}

// cornerPoints reads an N×1 two-channel float matrix of corners.
func cornerPoints(corners gocv.Mat) []geometry.Point {
	if corners.Empty() {
		return nil
	}
	out := make([]geometry.Point, corners.Rows())
	for i := range out {
		v := corners.GetVecfAt(i, 0)
		out[i] = geometry.Pt(float64(v[0]), float64(v[1]))
	}
	return out
}

// cvFAST runs cv::FastFeatureDetector with non-maximum suppression on the
// 9/16 segment test.
type cvFAST struct{}

func (cvFAST) Kind() Kind { return FAST }

func (f cvFAST) Detect(p *imgproc.Plane, opts Options) []geometry.Point {
	img, ok := matOrFallback(FAST, p)
	if !ok {
		return fast{}.Detect(p, opts)
	}
	defer img.Close()

	det := gocv.NewFastFeatureDetectorWithParams(int(math.Round(opts.Threshold)), true, gocv.FastFeatureDetectorType916)
	defer det.Close()
	return selectCandidates(keyPointCandidates(det.Detect(img)), opts)
}

// cvSIFT runs cv::SIFT with the configured contrast and edge thresholds.
type cvSIFT struct{}

func (cvSIFT) Kind() Kind { return SIFT }

func (s cvSIFT) Detect(p *imgproc.Plane, opts Options) []geometry.Point {
	img, ok := matOrFallback(SIFT, p)
	if !ok {
		return sift{}.Detect(p, opts)
	}
	defer img.Close()

	n := opts.MaxFeatures
	contrast := opts.ContrastThreshold
	edge := opts.EdgeRatio
	det := gocv.NewSIFTWithParams(&n, nil, &contrast, &edge, nil)
	defer det.Close()
	return selectCandidates(keyPointCandidates(det.Detect(img)), opts)
}

func keyPointCandidates(kps []gocv.KeyPoint) []candidate {
	out := make([]candidate, len(kps))
	for i, kp := range kps {
		out[i] = candidate{pt: geometry.Pt(kp.X, kp.Y), response: math.Abs(kp.Response)}
	}
	return out
}

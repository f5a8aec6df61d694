//go:build gocv

package tracking

import (
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
	"github.com/opd-ai/vidstab/video"
)

// cvMinEigen is OpenCV's own minimum eigenvalue threshold. Its gradients
// are scaled differently from the native tracker's, so MinEigen does not
// carry over.
const cvMinEigen = 1e-4

func accelerated(opts Options) (Tracker, bool) {
	return NewPyrLK(opts), true
}

// PyrLK tracks points with cv::calcOpticalFlowPyrLK.
type PyrLK struct {
	opts   Options
	native *LucasKanade
}

// NewPyrLK returns an OpenCV tracker using opts. Planes OpenCV cannot take
// are tracked natively.
func NewPyrLK(opts Options) *PyrLK {
	return &PyrLK{opts: opts, native: NewLucasKanade(opts)}
}

// Track follows pts from prev into next. OpenCV's per-point error is the
// mean absolute intensity difference over the window, which MaxError
// bounds the same way the native tracker does.
func (lk *PyrLK) Track(prev, next *imgproc.Plane, pts []geometry.Point) []video.Displacement {
	if len(pts) == 0 {
		return nil
	}
	logger := logrus.WithFields(logrus.Fields{
		"function": "PyrLK.Track",
		"points":   len(pts),
	})

	prevImg, err := prev.Mat()
	if err != nil {
		logger.WithError(err).Warn("Tracking natively")
		return lk.native.Track(prev, next, pts)
	}
	defer prevImg.Close()
	nextImg, err := next.Mat()
	if err != nil {
		logger.WithError(err).Warn("Tracking natively")
		return lk.native.Track(prev, next, pts)
	}
	defer nextImg.Close()

	prevPts := gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV32F)
	defer prevPts.Close()
	for i, p := range pts {
		prevPts.SetFloatAt(i, 0, float32(p.X))
		prevPts.SetFloatAt(i, 1, float32(p.Y))
	}
	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	win := 2*lk.opts.Radius + 1
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, lk.opts.Iterations, lk.opts.Epsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(prevImg, nextImg, prevPts, nextPts, &status, &errMat,
		image.Pt(win, win), lk.opts.Levels, criteria, 0, cvMinEigen)

	out := make([]video.Displacement, 0, len(pts))
	for i, u := range pts {
		if i >= status.Rows() || status.GetUCharAt(i, 0) != 1 {
			continue
		}
		if lk.opts.MaxError > 0 && float64(errMat.GetFloatAt(i, 0)) > lk.opts.MaxError {
			continue
		}
		dst := geometry.Pt(float64(nextPts.GetFloatAt(i, 0)), float64(nextPts.GetFloatAt(i, 1)))
		if !next.Contains(dst.X, dst.Y) {
			continue
		}
		out = append(out, video.Displacement{Source: u, Destination: dst})
	}

	logger.WithFields(logrus.Fields{
		"tracked": len(out),
		"dropped": len(pts) - len(out),
	}).Debug("Tracked points")

	return out
}

// Package motion estimates the inter-frame camera motion of a video.
//
// Estimation runs four stages over the whole video: feature detection,
// feature tracking, outlier rejection and affine fitting. Each stage
// processes frames in parallel and completes for every frame before the
// next stage starts. The result is one affine transform per frame mapping
// that frame's coordinates into the previous frame's.
package motion

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/vidstab/features"
	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/tracking"
	"github.com/opd-ai/vidstab/video"
)

// Step identifies an estimation stage.
type Step int

const (
	StepDetect Step = iota
	StepTrack
	StepReject
	StepFit
)

func (s Step) String() string {
	switch s {
	case StepDetect:
		return "detect"
	case StepTrack:
		return "track"
	case StepReject:
		return "reject"
	case StepFit:
		return "fit"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Degenerate reasons recorded on frames whose fit fell back to identity.
const (
	ReasonNoFeatures          = "no features"
	ReasonInsufficientInliers = "insufficient inliers"
	ReasonSingularFit         = "singular fit"
)

// ProgressFunc receives the completed fraction of a stage. Within one
// stage the fraction never decreases and the last call reports 1.
type ProgressFunc func(step Step, fraction float64)

// Options configures the estimator.
type Options struct {
	Detector features.Kind    `yaml:"detector"`
	Features features.Options `yaml:"features"`
	Tracking tracking.Options `yaml:"tracking"`
	Ransac   RansacOptions    `yaml:"ransac"`
	// MinInliers is the smallest inlier count accepted for a fit.
	MinInliers int `yaml:"min_inliers"`
	// Workers bounds per-stage parallelism.
	Workers int `yaml:"workers"`
	// PreserveFeatures skips detection on frames that already carry
	// features, such as imported manual locations.
	PreserveFeatures bool `yaml:"preserve_features"`
}

// DefaultOptions returns the estimation defaults.
func DefaultOptions() Options {
	return Options{
		Detector:   features.GFTT,
		Features:   features.DefaultOptions(),
		Tracking:   tracking.DefaultOptions(),
		Ransac:     DefaultRansacOptions(),
		MinInliers: 6,
		Workers:    runtime.NumCPU(),
	}
}

// Validate checks the nested options.
func (o Options) Validate() error {
	if err := o.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := o.Tracking.Validate(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}
	if o.Ransac.Iterations < 1 || o.Ransac.Threshold <= 0 {
		return errors.New("ransac: iterations and threshold must be positive")
	}
	if o.MinInliers < 3 {
		return fmt.Errorf("min inliers %d below 3", o.MinInliers)
	}
	return nil
}

// Estimator runs the motion stages on a video.
type Estimator struct {
	opts     Options
	detector features.Detector
	tracker  tracking.Tracker
	progress ProgressFunc
}

// NewEstimator validates opts and builds the configured detector.
func NewEstimator(opts Options) (*Estimator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	det, err := features.New(opts.Detector)
	if err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Estimator{
		opts:     opts,
		detector: det,
		tracker:  tracking.New(opts.Tracking),
	}, nil
}

// OnProgress registers fn to receive progress. It must be set before a
// stage starts.
func (e *Estimator) OnProgress(fn ProgressFunc) {
	e.progress = fn
}

// Run executes the four stages in order. The context is checked before
// each stage; results of completed stages stay on the frames.
func (e *Estimator) Run(ctx context.Context, v *video.Video) error {
	stages := []func(context.Context, *video.Video) error{
		e.DetectFeatures,
		e.TrackFeatures,
		e.RejectOutliers,
		e.FitMotion,
	}
	for _, stage := range stages {
		if err := stage(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// DetectFeatures fills every frame's feature set.
func (e *Estimator) DetectFeatures(ctx context.Context, v *video.Video) error {
	frames := v.Frames()
	return e.forEach(ctx, StepDetect, len(frames), func(i int) error {
		f := frames[i]
		if e.opts.PreserveFeatures && len(f.Features()) > 0 {
			return nil
		}
		f.SetFeatures(e.detector.Detect(f.Luminance(), e.opts.Features))
		return nil
	})
}

// TrackFeatures follows frame t−1's features into frame t and stores the
// displacements on frame t. Frame 0 gets none.
func (e *Estimator) TrackFeatures(ctx context.Context, v *video.Video) error {
	frames := v.Frames()
	frames[0].SetDisplacements(nil)
	return e.forEach(ctx, StepTrack, len(frames)-1, func(i int) error {
		prev, cur := frames[i], frames[i+1]
		cur.SetDisplacements(e.tracker.Track(prev.Luminance(), cur.Luminance(), prev.Features()))
		return nil
	})
}

// RejectOutliers classifies every frame's displacements.
func (e *Estimator) RejectOutliers(ctx context.Context, v *video.Video) error {
	frames := v.Frames()
	return e.forEach(ctx, StepReject, len(frames), func(i int) error {
		f := frames[i]
		return f.SetOutlierMask(RejectOutliers(f.Displacements(), e.opts.Ransac))
	})
}

// FitMotion fits each frame's affine transform to its inliers. Frame 0 is
// the identity. Frames without enough inliers fall back to the identity and
// are flagged degenerate.
func (e *Estimator) FitMotion(ctx context.Context, v *video.Video) error {
	frames := v.Frames()
	frames[0].SetAffineTransform(geometry.Identity())
	return e.forEach(ctx, StepFit, len(frames)-1, func(i int) error {
		f := frames[i+1]
		src, dst := f.Inliers()
		reason := ""
		switch {
		case len(f.Displacements()) == 0:
			reason = ReasonNoFeatures
		case len(src) < e.opts.MinInliers:
			reason = ReasonInsufficientInliers
		default:
			a, err := FitAffine(dst, src)
			if err != nil {
				reason = ReasonSingularFit
				break
			}
			f.SetAffineTransform(a)
		}
		if reason != "" {
			f.MarkDegenerate(reason)
			logrus.WithFields(logrus.Fields{
				"function": "Estimator.FitMotion",
				"frame":    f.Index(),
				"inliers":  len(src),
				"reason":   reason,
			}).Warn("Falling back to identity motion")
		}
		return nil
	})
}

// forEach runs fn for 0..n−1 on at most Workers goroutines and waits for
// all of them.
func (e *Estimator) forEach(ctx context.Context, step Step, n int, fn func(int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logrus.WithFields(logrus.Fields{
		"function": "Estimator.forEach",
		"step":     step.String(),
		"items":    n,
	})
	logger.Debug("Stage started")

	reporter := newProgress(step, n, e.progress)
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := fn(i); err != nil {
				return err
			}
			reporter.done()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Stage failed")
		return fmt.Errorf("%s: %w", step, err)
	}
	reporter.finish()
	logger.Debug("Stage finished")
	return nil
}

type progress struct {
	mu       sync.Mutex
	step     Step
	total    int
	count    int
	last     float64
	callback ProgressFunc
}

func newProgress(step Step, total int, cb ProgressFunc) *progress {
	return &progress{step: step, total: total, callback: cb}
}

func (p *progress) done() {
	if p.callback == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	p.report(float64(p.count) / float64(p.total))
}

func (p *progress) finish() {
	if p.callback == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last < 1 {
		p.report(1)
	}
}

func (p *progress) report(fraction float64) {
	if fraction < p.last {
		return
	}
	p.last = fraction
	p.callback(p.step, fraction)
}

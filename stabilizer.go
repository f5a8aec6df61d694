package vidstab

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/limits"
	"github.com/opd-ai/vidstab/motion"
	"github.com/opd-ai/vidstab/pathopt"
	"github.com/opd-ai/vidstab/render"
	"github.com/opd-ai/vidstab/video"
	"github.com/opd-ai/vidstab/videoio"
)

// DegenerateFrame is a frame whose motion fell back to identity.
type DegenerateFrame struct {
	Frame  int    `yaml:"frame"`
	Reason string `yaml:"reason"`
}

// Report summarizes the stages run on the current video.
type Report struct {
	RunID   string
	Video   string
	Frames  int
	CropBox geometry.Rect
	// Degenerate lists the frames whose motion could not be estimated.
	Degenerate []DegenerateFrame
	// Durations accumulates the wall time of each stage run.
	Durations map[Stage]time.Duration
	Path      *pathopt.Result
	Render    *render.Report
}

func (r Report) clone() Report {
	out := r
	out.Degenerate = append([]DegenerateFrame(nil), r.Degenerate...)
	out.Durations = make(map[Stage]time.Duration, len(r.Durations))
	for k, v := range r.Durations {
		out.Durations[k] = v
	}
	return out
}

// Stabilizer runs the stabilization pipeline on one video at a time.
// Stages are run by one caller in order; observers and Video may be used
// concurrently from other goroutines.
type Stabilizer struct {
	opts      Options
	tp        TimeProvider
	estimator *motion.Estimator

	mu        sync.RWMutex
	video     *video.Video
	estimated bool
	optimized bool
	observers []Observer
	report    Report
}

// NewStabilizer validates opts and returns an idle Stabilizer. A nil opts
// uses NewOptions.
func NewStabilizer(opts *Options) (*Stabilizer, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, &Error{Code: CodeConfig, Stage: StageLoad, FirstFrame: -1, LastFrame: -1, Err: err}
	}
	est, err := motion.NewEstimator(opts.Motion)
	if err != nil {
		return nil, &Error{Code: CodeConfig, Stage: StageDetect, FirstFrame: -1, LastFrame: -1, Err: err}
	}
	s := &Stabilizer{
		opts:      *opts,
		tp:        getTimeProvider(opts.TimeProvider),
		estimator: est,
	}
	est.OnProgress(func(step motion.Step, fraction float64) {
		s.notifyProgress(stageOf(step), fraction)
	})
	return s, nil
}

// AddObserver registers o for stage and progress notifications.
func (s *Stabilizer) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Video returns the current video, or nil before a successful Load.
func (s *Stabilizer) Video() *video.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.video
}

// Report returns a copy of the current report.
func (s *Stabilizer) Report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report.clone()
}

func (s *Stabilizer) notifyStage(stage Stage, status Status) {
	s.mu.RLock()
	obs := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range obs {
		o.StageChanged(stage, status)
	}
}

func (s *Stabilizer) notifyProgress(stage Stage, fraction float64) {
	s.mu.RLock()
	obs := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range obs {
		o.ProgressChanged(stage, fraction)
	}
}

// runStage checks ctx, then runs fn between started and finished/failed
// notifications and records its duration.
func (s *Stabilizer) runStage(ctx context.Context, stage Stage, frames int, fn func() error) error {
	s.mu.RLock()
	runID := s.report.RunID
	s.mu.RUnlock()
	logger := logrus.WithFields(logrus.Fields{
		"function": "Stabilizer.runStage",
		"run_id":   runID,
		"stage":    stage.String(),
	})

	if err := ctx.Err(); err != nil {
		logger.Info("Cancelled before stage")
		return newError(stage, 0, err)
	}

	logger.Debug("Stage started")
	s.notifyStage(stage, StatusStarted)
	start := s.tp.Now()
	err := fn()
	elapsed := s.tp.Since(start)

	s.mu.Lock()
	if s.report.Durations == nil {
		s.report.Durations = make(map[Stage]time.Duration)
	}
	s.report.Durations[stage] += elapsed
	s.mu.Unlock()

	if err != nil {
		e := newError(stage, frames, err)
		s.notifyStage(stage, StatusFailed)
		logger.WithFields(logrus.Fields{
			"code":  e.Code.String(),
			"error": e.Err.Error(),
		}).Error("Stage failed")
		return e
	}
	s.notifyStage(stage, StatusFinished)
	logger.WithFields(logrus.Fields{"elapsed": elapsed}).Debug("Stage finished")
	return nil
}

// Load decodes every frame of src and makes it the current video with a
// fresh report and run id. On failure the previous video and its results
// are kept.
func (s *Stabilizer) Load(ctx context.Context, src videoio.Source) error {
	return s.runStage(ctx, StageLoad, 0, func() error {
		v, err := video.Load(ctx, src)
		if err != nil {
			return err
		}
		if err := s.check(v); err != nil {
			return err
		}
		s.install(v)
		s.notifyProgress(StageLoad, 1)
		return nil
	})
}

// SetVideo makes v the current video, as Load does for a decoded source.
func (s *Stabilizer) SetVideo(v *video.Video) error {
	if err := s.check(v); err != nil {
		return newError(StageLoad, 0, err)
	}
	s.install(v)
	return nil
}

// check validates v's size and applies the configured crop box to it.
func (s *Stabilizer) check(v *video.Video) error {
	if err := limits.ValidateFrameSize(v.Width(), v.Height()); err != nil {
		return err
	}
	return v.SetCropBox(s.opts.CropBox.Resolve(v.Width(), v.Height()))
}

func (s *Stabilizer) install(v *video.Video) {
	runID := uuid.New().String()
	s.mu.Lock()
	s.video = v
	s.estimated, s.optimized = false, false
	s.report = Report{
		RunID:     runID,
		Video:     v.Name(),
		Frames:    v.Len(),
		CropBox:   v.CropBox(),
		Durations: make(map[Stage]time.Duration),
	}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Stabilizer.install",
		"run_id":   runID,
		"video":    v.Name(),
		"frames":   v.Len(),
		"width":    v.Width(),
		"height":   v.Height(),
		"crop_box": v.CropBox().String(),
	}).Info("Video loaded")
}

// current returns the video, failing for stage when none is loaded.
func (s *Stabilizer) current(stage Stage) (*video.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.video == nil {
		return nil, &Error{Code: CodeSource, Stage: stage, FirstFrame: -1, LastFrame: -1, Err: ErrNoVideo}
	}
	return s.video, nil
}

// EstimateMotion runs detection, tracking, outlier rejection and fitting.
// The context is checked before each of them; results of completed stages
// stay on the frames.
func (s *Stabilizer) EstimateMotion(ctx context.Context) error {
	v, err := s.current(StageDetect)
	if err != nil {
		return err
	}
	steps := []struct {
		stage Stage
		run   func(context.Context, *video.Video) error
	}{
		{StageDetect, s.estimator.DetectFeatures},
		{StageTrack, s.estimator.TrackFeatures},
		{StageReject, s.estimator.RejectOutliers},
		{StageFit, s.estimator.FitMotion},
	}
	for _, step := range steps {
		if err := s.runStage(ctx, step.stage, v.Len(), func() error {
			return step.run(ctx, v)
		}); err != nil {
			return err
		}
	}

	var degenerate []DegenerateFrame
	for _, i := range v.Degenerate() {
		f, _ := v.Frame(i)
		_, reason := f.Degenerate()
		degenerate = append(degenerate, DegenerateFrame{Frame: i, Reason: reason})
	}
	sort.Slice(degenerate, func(a, b int) bool { return degenerate[a].Frame < degenerate[b].Frame })

	s.mu.Lock()
	s.estimated, s.optimized = true, false
	s.report.Degenerate = degenerate
	runID := s.report.RunID
	s.mu.Unlock()

	if len(degenerate) > 0 {
		logrus.WithFields(logrus.Fields{
			"function":   "Stabilizer.EstimateMotion",
			"run_id":     runID,
			"degenerate": len(degenerate),
		}).Warn("Some frames fell back to identity motion")
	}
	return nil
}

// OptimizePath solves the crop path and writes the update transforms. On
// failure no frame is updated.
func (s *Stabilizer) OptimizePath(ctx context.Context) (*pathopt.Result, error) {
	v, err := s.current(StageOptimize)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	estimated := s.estimated
	s.mu.RUnlock()
	if !estimated {
		return nil, &Error{Code: CodeConfig, Stage: StageOptimize, FirstFrame: -1, LastFrame: -1,
			Err: fmt.Errorf("%w: motion not estimated", ErrStageOrder)}
	}

	model, err := pathopt.NewL1Model(s.opts.Path)
	if err != nil {
		return nil, newError(StageOptimize, 0, err)
	}
	var res *pathopt.Result
	err = s.runStage(ctx, StageOptimize, v.Len(), func() error {
		var err error
		res, err = model.Optimize(v)
		if err == nil {
			s.notifyProgress(StageOptimize, 1)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.optimized = true
	s.report.Path = res
	s.mu.Unlock()
	return res, nil
}

// Render writes every output frame into sink. The sink is not closed.
// Stabilized output needs an optimized path; the other modes only need a
// video.
func (s *Stabilizer) Render(ctx context.Context, sink videoio.Sink) (*render.Report, error) {
	v, err := s.current(StageRender)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	optimized := s.optimized
	s.mu.RUnlock()
	if s.opts.Render.Mode == render.Stabilized && !optimized {
		return nil, &Error{Code: CodeConfig, Stage: StageRender, FirstFrame: -1, LastFrame: -1,
			Err: fmt.Errorf("%w: path not optimized", ErrStageOrder)}
	}

	tr := render.NewTransformer(s.opts.Render)
	counted := &progressSink{Sink: sink, total: v.Len(), report: func(f float64) {
		s.notifyProgress(StageRender, f)
	}}
	var rep *render.Report
	err = s.runStage(ctx, StageRender, v.Len(), func() error {
		var err error
		rep, err = tr.RenderVideo(ctx, v, counted)
		if err == nil {
			s.notifyProgress(StageRender, 1)
		}
		return err
	})

	s.mu.Lock()
	s.report.Render = rep
	s.mu.Unlock()
	return rep, err
}

// Run loads src, estimates motion, optimizes the path and, when sink is
// non-nil, renders into it.
func (s *Stabilizer) Run(ctx context.Context, src videoio.Source, sink videoio.Sink) (*Report, error) {
	if err := s.Load(ctx, src); err != nil {
		return nil, err
	}
	if err := s.EstimateMotion(ctx); err != nil {
		rep := s.Report()
		return &rep, err
	}
	if _, err := s.OptimizePath(ctx); err != nil {
		rep := s.Report()
		return &rep, err
	}
	if sink != nil {
		if _, err := s.Render(ctx, sink); err != nil {
			rep := s.Report()
			return &rep, err
		}
	}
	rep := s.Report()
	logrus.WithFields(logrus.Fields{
		"function":   "Stabilizer.Run",
		"run_id":     rep.RunID,
		"frames":     rep.Frames,
		"degenerate": len(rep.Degenerate),
	}).Info("Stabilization complete")
	return &rep, nil
}

// progressSink reports the fraction of frames written.
type progressSink struct {
	videoio.Sink
	total   int
	written int
	report  func(float64)
}

func (p *progressSink) WriteFrame(img image.Image) error {
	if err := p.Sink.WriteFrame(img); err != nil {
		return err
	}
	p.written++
	p.report(float64(p.written) / float64(p.total))
	return nil
}

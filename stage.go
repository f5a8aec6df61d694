package vidstab

import (
	"fmt"

	"github.com/opd-ai/vidstab/motion"
)

// Stage identifies a pipeline stage.
type Stage int

const (
	StageLoad Stage = iota
	StageDetect
	StageTrack
	StageReject
	StageFit
	StageOptimize
	StageRender
)

var stageNames = [...]string{
	StageLoad:     "load",
	StageDetect:   "detect",
	StageTrack:    "track",
	StageReject:   "reject",
	StageFit:      "fit",
	StageOptimize: "optimize",
	StageRender:   "render",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageLoad, StageDetect, StageTrack, StageReject, StageFit, StageOptimize, StageRender}
}

func stageOf(step motion.Step) Stage {
	switch step {
	case motion.StepDetect:
		return StageDetect
	case motion.StepTrack:
		return StageTrack
	case motion.StepReject:
		return StageReject
	}
	return StageFit
}

// Status is the state of a stage reported to observers.
type Status int

const (
	StatusStarted Status = iota
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Observer receives pipeline notifications. Calls for one stage arrive in
// order but may come from worker goroutines, so implementations must be
// safe for concurrent use.
type Observer interface {
	// StageChanged reports a stage starting, finishing or failing.
	StageChanged(stage Stage, status Status)
	// ProgressChanged reports the completed fraction of a running stage.
	// Within one stage the fraction never decreases.
	ProgressChanged(stage Stage, fraction float64)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	OnStage    func(stage Stage, status Status)
	OnProgress func(stage Stage, fraction float64)
}

// StageChanged implements Observer.
func (o ObserverFuncs) StageChanged(stage Stage, status Status) {
	if o.OnStage != nil {
		o.OnStage(stage, status)
	}
}

// ProgressChanged implements Observer.
func (o ObserverFuncs) ProgressChanged(stage Stage, fraction float64) {
	if o.OnProgress != nil {
		o.OnProgress(stage, fraction)
	}
}

package vidstab

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/vidstab/limits"
	"github.com/opd-ai/vidstab/pathopt"
	"github.com/opd-ai/vidstab/render"
	"github.com/opd-ai/vidstab/video"
	"github.com/opd-ai/vidstab/videoio"
)

// Code classifies a pipeline failure.
type Code int

const (
	// CodeNone is returned by CodeOf for nil or foreign errors.
	CodeNone Code = iota
	// CodeSource indicates the input could not be opened or decoded.
	CodeSource
	// CodeNoFrames indicates an input without enough frames.
	CodeNoFrames
	// CodeCancelled indicates the context was cancelled between stages.
	CodeCancelled
	// CodeInfeasible indicates that no crop path fits the crop box.
	CodeInfeasible
	// CodeSolver indicates a numerical failure of the path solver.
	CodeSolver
	// CodeRender indicates an output frame could not be produced or
	// written.
	CodeRender
	// CodeConfig indicates invalid options.
	CodeConfig
)

var codeNames = map[Code]string{
	CodeNone:       "none",
	CodeSource:     "source",
	CodeNoFrames:   "no-frames",
	CodeCancelled:  "cancelled",
	CodeInfeasible: "infeasible",
	CodeSolver:     "solver",
	CodeRender:     "render",
	CodeConfig:     "config",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Pipeline errors.
var (
	// ErrNoVideo indicates a stage called before a video was loaded.
	ErrNoVideo = errors.New("no video loaded")

	// ErrStageOrder indicates a stage called before the stage it depends on.
	ErrStageOrder = errors.New("stage run out of order")
)

// Error is the failure returned by every Stabilizer operation. It names the
// stage and, where known, the frame range involved.
type Error struct {
	Code  Code
	Stage Stage
	// FirstFrame and LastFrame bound the frames involved; both are -1 when
	// the failure is not tied to frames.
	FirstFrame int
	LastFrame  int
	Err        error
}

func (e *Error) Error() string {
	if e.FirstFrame < 0 {
		return fmt.Sprintf("vidstab %s (%s): %v", e.Stage, e.Code, e.Err)
	}
	if e.FirstFrame == e.LastFrame {
		return fmt.Sprintf("vidstab %s (%s) frame %d: %v", e.Stage, e.Code, e.FirstFrame, e.Err)
	}
	return fmt.Sprintf("vidstab %s (%s) frames %d-%d: %v", e.Stage, e.Code, e.FirstFrame, e.LastFrame, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}

// newError classifies err for stage. frames is the video length, or 0 when
// the failure concerns no frames.
func newError(stage Stage, frames int, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	e := &Error{Code: classify(stage, err), Stage: stage, FirstFrame: -1, LastFrame: -1, Err: err}
	var fe render.FrameError
	switch {
	case errors.As(err, &fe):
		e.FirstFrame, e.LastFrame = fe.Frame, fe.Frame
	case frames > 0:
		e.FirstFrame, e.LastFrame = 0, frames-1
	}
	return e
}

func classify(stage Stage, err error) Code {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.Is(err, video.ErrNoFrames), errors.Is(err, pathopt.ErrTooFewFrames),
		errors.Is(err, videoio.ErrEmptySequence):
		return CodeNoFrames
	case errors.Is(err, pathopt.ErrInfeasible):
		return CodeInfeasible
	case errors.Is(err, pathopt.ErrSolver), errors.Is(err, limits.ErrProblemTooLarge):
		return CodeSolver
	case errors.Is(err, pathopt.ErrNoSalientAnchor), errors.Is(err, video.ErrCropBoxOutside):
		return CodeConfig
	}
	switch stage {
	case StageLoad:
		return CodeSource
	case StageRender:
		return CodeRender
	case StageOptimize:
		return CodeSolver
	}
	return CodeConfig
}

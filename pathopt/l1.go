// Package pathopt computes the crop window path of a stabilized video.
//
// The camera path is smoothed by solving one linear program over the whole
// video. Its unknowns are per-frame poses B_t mapping crop coordinates into
// frame t. With A_t the motion from frame t into frame t−1, the residual
// motion R_t = A_{t+1}·B_{t+1} − B_t is what remains visible after cropping.
// The program minimizes a weighted L1 norm of the first three differences
// of R, keeps every crop corner inside its frame and bounds the linear part
// of each pose. An optional salient term pulls the crop window toward a
// designated region.
package pathopt

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/limits"
	"github.com/opd-ai/vidstab/video"
)

// Solve errors.
var (
	// ErrInfeasible indicates that no pose sequence keeps the crop window
	// inside every frame under the configured bounds.
	ErrInfeasible = errors.New("path optimization infeasible")

	// ErrSolver indicates a numerical failure of the simplex solver.
	ErrSolver = errors.New("path optimization solver failure")

	// ErrTooFewFrames indicates a video with fewer than two frames.
	ErrTooFewFrames = errors.New("path optimization needs at least two frames")

	// ErrNoSalientAnchor indicates anchored salient mode without a region
	// on the first frame.
	ErrNoSalientAnchor = errors.New("anchored salient mode needs a region on frame 0")
)

// Lifecycle errors.
var (
	// ErrNotPrepared indicates SetObjectives or Solve before Prepare.
	ErrNotPrepared = errors.New("model not prepared")

	// ErrNotSolved indicates Commit before a successful Solve.
	ErrNotSolved = errors.New("model not solved")

	// ErrFrameCount indicates Commit to a video of another length.
	ErrFrameCount = errors.New("video frame count differs from the solved model")
)

// Result is the outcome of a successful solve.
type Result struct {
	// Updates holds one crop pose per frame.
	Updates []geometry.Affine
	// Objective is the optimal objective value.
	Objective float64
	// Slack sums the derivative slacks per order.
	Slack [3]float64
	// Salient sums the salient slacks.
	Salient float64
	Rows    int
	Columns int
}

type stage int

const (
	stageNew stage = iota
	stagePrepared
	stageObjective
	stageSolved
)

// L1Model is one path optimization. Its steps run in order: Prepare,
// SetObjectives, Solve, Commit. A model is not safe for concurrent use.
type L1Model struct {
	opts     Options
	builders []builder

	stage   stage
	snap    *snapshot
	index   *Index
	program *program
	result  *Result
}

// NewL1Model validates opts and composes the builders.
func NewL1Model(opts Options) (*L1Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m := &L1Model{opts: opts}
	m.builders = []builder{pathBuilder{
		model:   opts.Model,
		weights: opts.Weights,
		bounds:  opts.Bounds,
		margin:  opts.Margin,
	}}
	if opts.Salient.Enabled {
		m.builders = append(m.builders, salientBuilder{
			model:  opts.Model,
			mode:   opts.Salient.Mode,
			weight: opts.Salient.Weight,
		})
	}
	return m, nil
}

// Optimize prepares, solves and commits in one call. The video's update
// transforms are left untouched on failure.
func (m *L1Model) Optimize(v *video.Video) (*Result, error) {
	if err := m.Prepare(v); err != nil {
		return nil, err
	}
	if err := m.SetObjectives(); err != nil {
		return nil, err
	}
	res, err := m.Solve()
	if err != nil {
		return nil, err
	}
	if err := m.Commit(v); err != nil {
		return nil, err
	}
	return res, nil
}

// Prepare snapshots the motion, crop box and salient regions of v and
// builds the constraint rows. Any earlier result is discarded.
func (m *L1Model) Prepare(v *video.Video) error {
	m.stage, m.result = stageNew, nil
	n := v.Len()
	if err := limits.ValidateFrameCount(n); err != nil {
		return fmt.Errorf("%w: %v", ErrTooFewFrames, err)
	}

	s := &snapshot{
		width:   float64(v.Width()),
		height:  float64(v.Height()),
		crop:    v.CropBox(),
		affines: v.AffineTransforms(),
		salient: make([]*geometry.Rect, n),
	}
	for t, f := range v.Frames() {
		if r, ok := f.SalientRegion(); ok {
			s.salient[t] = &r
		}
	}

	firstFree := 1
	var salientFrames []int
	if m.opts.Salient.Enabled {
		if m.opts.Salient.Mode == Centered {
			firstFree = 0
		}
		for t := firstFree; t < n; t++ {
			if s.salient[t] != nil {
				salientFrames = append(salientFrames, t)
			}
		}
	}

	ix := NewIndex(n, m.opts.Model, firstFree, salientFrames)
	p := newProgram(ix)
	for _, b := range m.builders {
		if err := b.constraints(p, s); err != nil {
			return err
		}
	}
	if len(p.violated) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "L1Model.Prepare",
			"crop_box": s.crop.String(),
			"margin":   m.opts.Margin,
			"rows":     p.violated,
		}).Warn("Constant constraints violated")
		return fmt.Errorf("%w: %s cannot hold", ErrInfeasible, p.violated[0])
	}
	if err := limits.ValidateProblemSize(len(p.rows), ix.Len()+ix.Poses()+len(p.rows)); err != nil {
		return err
	}

	m.snap, m.index, m.program = s, ix, p
	m.stage = stagePrepared

	logrus.WithFields(logrus.Fields{
		"function": "L1Model.Prepare",
		"frames":   n,
		"model":    m.opts.Model.String(),
		"salient":  len(salientFrames),
		"program":  p.String(),
	}).Debug("Path model prepared")
	return nil
}

// SetObjectives fills the cost vector.
func (m *L1Model) SetObjectives() error {
	if m.stage < stagePrepared {
		return ErrNotPrepared
	}
	for i := range m.program.cost {
		m.program.cost[i] = 0
	}
	for _, b := range m.builders {
		b.objective(m.program)
	}
	m.stage = stageObjective
	return nil
}

// Index returns the column layout of the prepared model.
func (m *L1Model) Index() (*Index, error) {
	if m.stage < stagePrepared {
		return nil, ErrNotPrepared
	}
	return m.index, nil
}

// Solve converts the rows to standard form and runs the simplex method.
// The solve starts from a point built from the compensated camera path and
// hands the solver a feasible basis at that point, so it only has to
// improve on it.
func (m *L1Model) Solve() (*Result, error) {
	if m.stage < stageObjective {
		return nil, ErrNotPrepared
	}
	p := m.program

	var best *start
	for _, x0 := range startingPoses(p.index, m.opts.Model, m.snap, m.opts.Margin) {
		if st := p.startAt(x0); st.better(best, p) {
			best = st
		}
	}
	sf := p.standardForm(best)
	rows, cols := sf.A.Dims()

	logger := logrus.WithFields(logrus.Fields{
		"function": "L1Model.Solve",
		"rows":     rows,
		"columns":  cols,
		"feasible": best.feasible(),
	})
	logger.Debug("Solving linear program")

	_, y, err := lp.Simplex(sf.c, sf.A, sf.b, m.opts.Tolerance, sf.basis)
	if err != nil {
		logger.WithError(err).Error("Simplex failed")
		if errors.Is(err, lp.ErrInfeasible) {
			return nil, fmt.Errorf("%w: %w", ErrInfeasible, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSolver, err)
	}
	if sf.infeasible(y) {
		logger.WithField("violation", best.violation()).Warn("No pose sequence satisfies every row")
		return nil, fmt.Errorf("%w: %w", ErrInfeasible, lp.ErrInfeasible)
	}

	res := m.extract(sf.point(y))
	res.Rows, res.Columns = rows, cols
	m.result = res
	m.stage = stageSolved

	logger.WithFields(logrus.Fields{
		"objective": res.Objective,
	}).Info("Path optimized")
	return res, nil
}

func (m *L1Model) extract(x []float64) *Result {
	ix := m.index
	res := &Result{Updates: make([]geometry.Affine, ix.Frames())}
	for col, v := range x {
		res.Objective += m.program.cost[col] * v
	}
	for t := range res.Updates {
		pose := poseMatrix(ix, m.opts.Model, t)
		var entries [6]float64
		for e, ex := range pose {
			v := ex.c
			for col, coef := range ex.terms {
				v += coef * x[col]
			}
			entries[e] = cleanZero(v)
		}
		res.Updates[t] = geometry.FromMatrix(entries)
	}
	for col, v := range x {
		vr, _ := ix.Lookup(col)
		switch vr.Kind {
		case VarD1, VarD2, VarD3:
			res.Slack[vr.Kind-VarD1] += v
		case VarSalient:
			res.Salient += v
		}
	}
	return res
}

// cleanZero maps solver noise around zero to zero.
func cleanZero(v float64) float64 {
	if math.Abs(v) < 1e-12 {
		return 0
	}
	return v
}

// Result returns the last successful solve.
func (m *L1Model) Result() (*Result, error) {
	if m.stage < stageSolved {
		return nil, ErrNotSolved
	}
	return m.result, nil
}

// Commit writes every frame's update transform. Nothing is written unless
// the last Solve succeeded and v has the solved frame count.
func (m *L1Model) Commit(v *video.Video) error {
	if m.stage < stageSolved {
		return ErrNotSolved
	}
	if v.Len() != len(m.result.Updates) {
		return fmt.Errorf("%w: %d frames, solved %d", ErrFrameCount, v.Len(), len(m.result.Updates))
	}
	return v.SetUpdateTransforms(m.result.Updates)
}

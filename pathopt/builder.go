package pathopt

import (
	"fmt"
	"math"

	"github.com/opd-ai/vidstab/geometry"
)

// snapshot is the video state a model is built from.
type snapshot struct {
	width, height float64
	crop          geometry.Rect
	affines       []geometry.Affine
	salient       []*geometry.Rect
}

// builder contributes rows and costs to a program. The path term and the
// salient term are separate builders composed by the model.
type builder interface {
	constraints(p *program, s *snapshot) error
	objective(p *program)
}

// poseMatrix returns the expression matrix of frame t's pose.
func poseMatrix(ix *Index, model Model, t int) matrix {
	if !ix.Free(t) {
		return constantMatrix(geometry.Identity())
	}
	v := func(p int) expr { return variable(ix.Pose(t, p), 1) }
	switch model {
	case Similarity:
		return matrix{v(0), v(1).scale(-1), v(2), v(1), v(0), v(3)}
	case Affine:
		return matrix{v(0), v(1), v(4), v(2), v(3), v(5)}
	}
	return matrix{constant(1), constant(0), v(0), constant(0), constant(1), v(1)}
}

// startingPoses returns candidate pose values for the free frames. Linear
// parts are the identity. Translations follow the camera path that keeps
// the crop window fixed in frame 0, once scaled down uniformly and once
// clamped per frame until every crop corner is at least margin inside the
// frame.
func startingPoses(ix *Index, model Model, s *snapshot, margin float64) [][]float64 {
	n := ix.Frames()
	comp := make([]geometry.Point, n)
	acc := geometry.Identity()
	for t := 1; t < n; t++ {
		acc = geometry.Compose(acc, s.affines[t])
		if inv, err := acc.Invert(); err == nil {
			comp[t] = inv.Translation()
		} else {
			comp[t] = comp[t-1]
		}
	}

	lo := geometry.Pt(margin-s.crop.X, margin-s.crop.Y)
	hi := geometry.Pt(s.width-margin-s.crop.X-s.crop.Width, s.height-margin-s.crop.Y-s.crop.Height)
	scale := 1.0
	for t := ix.firstFree; t < n; t++ {
		scale = min(scale, fitScale(comp[t].X, lo.X, hi.X), fitScale(comp[t].Y, lo.Y, hi.Y))
	}

	scaled := make([]float64, ix.Poses())
	clamped := make([]float64, ix.Poses())
	for t := ix.firstFree; t < n; t++ {
		setPose(ix, model, scaled, t, geometry.Pt(scale*comp[t].X, scale*comp[t].Y))
		setPose(ix, model, clamped, t, geometry.Pt(
			math.Max(lo.X, math.Min(hi.X, comp[t].X)),
			math.Max(lo.Y, math.Min(hi.Y, comp[t].Y)),
		))
	}
	return [][]float64{scaled, clamped}
}

// fitScale returns the largest factor in [0, 1] bringing v into [lo, hi].
func fitScale(v, lo, hi float64) float64 {
	switch {
	case v > hi && hi > 0:
		return hi / v
	case v < lo && lo < 0:
		return lo / v
	case v > hi || v < lo:
		return 0
	}
	return 1
}

func setPose(ix *Index, model Model, x []float64, t int, d geometry.Point) {
	switch model {
	case Similarity:
		x[ix.Pose(t, 0)] = 1
	case Affine:
		x[ix.Pose(t, 0)] = 1
		x[ix.Pose(t, 3)] = 1
	}
	k := model.params()
	x[ix.Pose(t, k-2)] = d.X
	x[ix.Pose(t, k-1)] = d.Y
}

// pathBuilder adds the smoothness objective on the residual motion, the
// inclusion of the crop window in every frame and the proximity bounds.
type pathBuilder struct {
	model   Model
	weights Weights
	bounds  Bounds
	margin  float64
}

func (b pathBuilder) constraints(p *program, s *snapshot) error {
	ix := p.index
	n := ix.Frames()

	poses := make([]matrix, n)
	for t := range poses {
		poses[t] = poseMatrix(ix, b.model, t)
	}

	residuals := make([]matrix, n-1)
	for t := range residuals {
		residuals[t] = combine([]matrix{poses[t+1].leftMul(s.affines[t+1]), poses[t]}, []float64{1, -1})
	}

	stencils := [3][]float64{{1}, {-1, 1}, {1, -2, 1}}
	for o := 1; o <= 3; o++ {
		for t := 0; t < ix.Residuals(o); t++ {
			d := combine(residuals[t:t+o], stencils[o-1])
			for i, e := range ix.Entries() {
				p.abs(d[e], ix.Slack(o, t, i), fmt.Sprintf("d%d[%d]", o, t))
			}
		}
	}

	for t := 0; t < n; t++ {
		what := fmt.Sprintf("inclusion[%d]", t)
		for _, k := range s.crop.Corners() {
			x, y := poses[t].apply(k)
			p.ge(x, b.margin, what)
			p.le(x, s.width-b.margin, what)
			p.ge(y, b.margin, what)
			p.le(y, s.height-b.margin, what)
		}
		if b.model == Translation || !ix.Free(t) {
			continue
		}
		m := poses[t]
		what = fmt.Sprintf("bounds[%d]", t)
		for _, e := range []int{entryA, entryD} {
			p.ge(m[e], b.bounds.ScaleMin, what)
			p.le(m[e], b.bounds.ScaleMax, what)
		}
		for _, e := range []int{entryB, entryC} {
			p.ge(m[e], -b.bounds.ShearMax, what)
			p.le(m[e], b.bounds.ShearMax, what)
		}
		skew := m[entryB].plus(m[entryC], 1)
		p.ge(skew, -b.bounds.SkewMax, what)
		p.le(skew, b.bounds.SkewMax, what)
		aspect := m[entryA].plus(m[entryD], -1)
		p.ge(aspect, -b.bounds.AspectMax, what)
		p.le(aspect, b.bounds.AspectMax, what)
	}
	return nil
}

func (b pathBuilder) objective(p *program) {
	ix := p.index
	orders := [3]float64{b.weights.D1, b.weights.D2, b.weights.D3}
	for o := 1; o <= 3; o++ {
		for t := 0; t < ix.Residuals(o); t++ {
			for i, e := range ix.Entries() {
				w := b.weights.Translation
				if isLinearEntry(e) {
					w = b.weights.Linear
				}
				p.cost[ix.Slack(o, t, i)] = orders[o-1] * w
			}
		}
	}
}

// salientBuilder pulls the crop corners toward targets derived from each
// frame's salient region.
type salientBuilder struct {
	model  Model
	mode   SalientMode
	weight float64
}

func (b salientBuilder) constraints(p *program, s *snapshot) error {
	ix := p.index
	corners := s.crop.Corners()

	var anchor geometry.Point
	switch b.mode {
	case Anchored:
		if s.salient[0] == nil {
			return ErrNoSalientAnchor
		}
		anchor = s.salient[0].Center()
	default:
		anchor = s.crop.Center()
	}

	for _, t := range ix.SalientFrames() {
		c := s.salient[t].Center()
		pose := poseMatrix(ix, b.model, t)
		what := fmt.Sprintf("salient[%d]", t)
		for j, k := range corners {
			x, y := pose.apply(k)
			p.abs(x.plus(constant(c.X+k.X-anchor.X), -1), ix.Salient(t, j, 0), what)
			p.abs(y.plus(constant(c.Y+k.Y-anchor.Y), -1), ix.Salient(t, j, 1), what)
		}
	}
	return nil
}

func (b salientBuilder) objective(p *program) {
	ix := p.index
	for _, t := range ix.SalientFrames() {
		for j := 0; j < 4; j++ {
			for axis := 0; axis < 2; axis++ {
				p.cost[ix.Salient(t, j, axis)] = b.weight
			}
		}
	}
}

package features

import (
	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

// surfOctaves lists the box filter side lengths per octave; the sampling
// step doubles with each octave.
var surfOctaves = [][4]int{
	{9, 15, 21, 27},
	{15, 27, 39, 51},
}

// surf finds scale-space maxima of the approximated Hessian determinant
// computed with box filters on an integral image.
type surf struct{}

func (surf) Kind() Kind { return SURF }

type hessianLayer struct {
	filter int
	step   int
	resp   []float32
	w, h   int
}

func (surf) Detect(p *imgproc.Plane, opts Options) []geometry.Point {
	ii := imgproc.NewIntegral(p)
	var cands []candidate
	for o, filters := range surfOctaves {
		step := 1 << o
		var layers [4]*hessianLayer
		for i, f := range filters {
			layers[i] = buildHessianLayer(ii, f, step)
		}
		for i := 1; i <= 2; i++ {
			cands = append(cands, hessianExtrema(layers[i-1], layers[i], layers[i+1], opts.HessianThreshold)...)
		}
	}
	return selectCandidates(cands, opts)
}

func buildHessianLayer(ii *imgproc.Integral, filter, step int) *hessianLayer {
	w, h := ii.Width/step, ii.Height/step
	l := &hessianLayer{filter: filter, step: step, w: w, h: h, resp: make([]float32, w*h)}
	lobe := filter / 3
	b := (filter - 1) / 2
	norm := 1 / (float64(filter*filter) * 255)
	for gy := 0; gy < h; gy++ {
		for gx := 0; gx < w; gx++ {
			x, y := gx*step, gy*step
			dxx := ii.Sum(x-b, y-lobe+1, filter, 2*lobe-1) -
				3*ii.Sum(x-lobe/2, y-lobe+1, lobe, 2*lobe-1)
			dyy := ii.Sum(x-lobe+1, y-b, 2*lobe-1, filter) -
				3*ii.Sum(x-lobe+1, y-lobe/2, 2*lobe-1, lobe)
			dxy := ii.Sum(x+1, y-lobe, lobe, lobe) + ii.Sum(x-lobe, y+1, lobe, lobe) -
				ii.Sum(x-lobe, y-lobe, lobe, lobe) - ii.Sum(x+1, y+1, lobe, lobe)
			dxx *= norm
			dyy *= norm
			dxy *= norm
			l.resp[gy*w+gx] = float32(dxx*dyy - 0.81*dxy*dxy)
		}
	}
	return l
}

// hessianExtrema returns the points of mid that exceed threshold and every
// one of their 26 scale-space neighbours. The layers share one sampling
// grid.
func hessianExtrema(below, mid, above *hessianLayer, threshold float64) []candidate {
	border := (above.filter-1)/(2*mid.step) + 1
	var out []candidate
	for y := border; y < mid.h-border; y++ {
		for x := border; x < mid.w-border; x++ {
			v := mid.resp[y*mid.w+x]
			if float64(v) < threshold {
				continue
			}
			if !isScaleExtremum(x, y, mid.w, below.resp, mid.resp, above.resp, 1) {
				continue
			}
			out = append(out, candidate{
				pt:       geometry.Pt(float64(x*mid.step), float64(y*mid.step)),
				response: float64(v),
			})
		}
	}
	return out
}

// isScaleExtremum reports whether sign·mid at (x, y) is strictly greater
// than sign times each of its 26 neighbours in the three layers, all of row
// length w.
func isScaleExtremum(x, y, w int, below, mid, above []float32, sign float32) bool {
	v := sign * mid[y*w+x]
	for l, layer := range [3][]float32{below, mid, above} {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if l == 1 && dx == 0 && dy == 0 {
					continue
				}
				if sign*layer[(y+dy)*w+x+dx] >= v {
					return false
				}
			}
		}
	}
	return true
}

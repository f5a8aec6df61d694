package features

import (
	"math"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

const (
	siftLayers     = 3
	siftSigma      = 1.6
	siftInputSigma = 0.5
	siftMinSize    = 16
	siftMaxOctaves = 4
	siftBorder     = 5
)

// sift finds extrema of the difference-of-Gaussians scale space, rejecting
// low contrast and edge-like responses.
type sift struct{}

func (sift) Kind() Kind { return SIFT }

func (sift) Detect(p *imgproc.Plane, opts Options) []geometry.Point {
	base := p.GaussianBlur(math.Sqrt(siftSigma*siftSigma - siftInputSigma*siftInputSigma))
	threshold := float32(opts.ContrastThreshold * 255 / siftLayers)
	edge := (opts.EdgeRatio + 1) * (opts.EdgeRatio + 1) / opts.EdgeRatio

	var cands []candidate
	scale := 1.0
	for o := 0; o < siftMaxOctaves; o++ {
		if base.Width < siftMinSize || base.Height < siftMinSize {
			break
		}
		gauss := gaussianOctave(base)
		dog := make([]*imgproc.Plane, len(gauss)-1)
		for i := range dog {
			dog[i] = gauss[i+1].Sub(gauss[i])
		}
		for i := 1; i <= siftLayers; i++ {
			for _, c := range dogExtrema(dog[i-1], dog[i], dog[i+1], threshold, edge) {
				c.pt = geometry.Pt(c.pt.X*scale, c.pt.Y*scale)
				cands = append(cands, c)
			}
		}
		base = gauss[siftLayers].Downsample()
		scale *= 2
	}
	return selectCandidates(cands, opts)
}

// gaussianOctave returns siftLayers+3 images with sigma growing by
// 2^(1/siftLayers) from siftSigma. Each image is blurred incrementally
// from the previous one.
func gaussianOctave(base *imgproc.Plane) []*imgproc.Plane {
	k := math.Pow(2, 1.0/siftLayers)
	out := []*imgproc.Plane{base}
	prev := siftSigma
	for i := 1; i < siftLayers+3; i++ {
		next := prev * k
		out = append(out, out[i-1].GaussianBlur(math.Sqrt(next*next-prev*prev)))
		prev = next
	}
	return out
}

func dogExtrema(below, mid, above *imgproc.Plane, threshold float32, edge float64) []candidate {
	w := mid.Width
	var out []candidate
	for y := siftBorder; y < mid.Height-siftBorder; y++ {
		for x := siftBorder; x < w-siftBorder; x++ {
			v := mid.Pix[y*w+x]
			if v > -threshold && v < threshold {
				continue
			}
			sign := float32(1)
			if v < 0 {
				sign = -1
			}
			if !isScaleExtremum(x, y, w, below.Pix, mid.Pix, above.Pix, sign) {
				continue
			}
			if onEdge(mid, x, y, edge) {
				continue
			}
			out = append(out, candidate{
				pt:       geometry.Pt(float64(x), float64(y)),
				response: math.Abs(float64(v)),
			})
		}
	}
	return out
}

// onEdge applies the principal curvature ratio test on the 2×2 Hessian.
func onEdge(d *imgproc.Plane, x, y int, edge float64) bool {
	v := float64(d.At(x, y))
	dxx := float64(d.At(x+1, y)) + float64(d.At(x-1, y)) - 2*v
	dyy := float64(d.At(x, y+1)) + float64(d.At(x, y-1)) - 2*v
	dxy := (float64(d.At(x+1, y+1)) - float64(d.At(x-1, y+1)) -
		float64(d.At(x+1, y-1)) + float64(d.At(x-1, y-1))) / 4
	tr := dxx + dyy
	det := dxx*dyy - dxy*dxy
	if det <= 0 {
		return true
	}
	return tr*tr/det >= edge
}

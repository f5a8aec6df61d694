package features

import (
	"math"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

// gftt scores pixels from the 3×3 summed structure tensor of Sobel
// gradients.
type gftt struct {
	harris bool
}

func (g gftt) Kind() Kind {
	if g.harris {
		return GFTTHarris
	}
	return GFTT
}

func (g gftt) Detect(p *imgproc.Plane, opts Options) []geometry.Point {
	return selectCandidates(peaks(g.response(p, opts), 2), opts)
}

// response returns the corner score of every pixel.
func (g gftt) response(p *imgproc.Plane, opts Options) *imgproc.Plane {
	gx, gy := p.Gradients()
	xx := imgproc.NewPlane(p.Width, p.Height)
	yy := imgproc.NewPlane(p.Width, p.Height)
	xy := imgproc.NewPlane(p.Width, p.Height)
	for i := range gx.Pix {
		xx.Pix[i] = gx.Pix[i] * gx.Pix[i]
		yy.Pix[i] = gy.Pix[i] * gy.Pix[i]
		xy.Pix[i] = gx.Pix[i] * gy.Pix[i]
	}
	xx, yy, xy = xx.BoxSum(1), yy.BoxSum(1), xy.BoxSum(1)

	resp := imgproc.NewPlane(p.Width, p.Height)
	for i := range resp.Pix {
		a, b, c := float64(xx.Pix[i]), float64(xy.Pix[i]), float64(yy.Pix[i])
		var r float64
		if g.harris {
			r = a*c - b*b - opts.HarrisK*(a+c)*(a+c)
		} else {
			r = (a+c)/2 - math.Sqrt((a-c)*(a-c)/4+b*b)
		}
		resp.Pix[i] = float32(r)
	}
	return resp
}

package imgproc

import "math"

// GaussianBlur returns p convolved with a separable Gaussian of the given
// sigma. Borders are clamped.
func (p *Plane) GaussianBlur(sigma float64) *Plane {
	if sigma <= 0 {
		out := NewPlane(p.Width, p.Height)
		copy(out.Pix, p.Pix)
		return out
	}
	kernel := gaussianKernel(sigma)
	r := len(kernel) / 2

	tmp := NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			var s float32
			for k, w := range kernel {
				s += w * p.At(x+k-r, y)
			}
			tmp.Pix[y*p.Width+x] = s
		}
	}
	out := NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			var s float32
			for k, w := range kernel {
				s += w * tmp.At(x, y+k-r)
			}
			out.Pix[y*p.Width+x] = s
		}
	}
	return out
}

func gaussianKernel(sigma float64) []float32 {
	r := int(math.Ceil(3 * sigma))
	if r < 1 {
		r = 1
	}
	k := make([]float32, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = float32(v)
		sum += v
	}
	for i := range k {
		k[i] /= float32(sum)
	}
	return k
}

// Downsample halves the plane in each dimension by averaging 2×2 blocks.
func (p *Plane) Downsample() *Plane {
	w, h := (p.Width+1)/2, (p.Height+1)/2
	out := NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := p.At(2*x, 2*y) + p.At(2*x+1, 2*y) + p.At(2*x, 2*y+1) + p.At(2*x+1, 2*y+1)
			out.Pix[y*w+x] = s / 4
		}
	}
	return out
}

// Pyramid returns levels+1 planes: p itself followed by successively
// blurred and halved copies. Building stops early once a level would drop
// below minSize pixels on either side.
func Pyramid(p *Plane, levels, minSize int) []*Plane {
	out := []*Plane{p}
	cur := p
	for i := 0; i < levels; i++ {
		if cur.Width/2 < minSize || cur.Height/2 < minSize {
			break
		}
		cur = cur.GaussianBlur(1.0).Downsample()
		out = append(out, cur)
	}
	return out
}

// Gradients returns the horizontal and vertical Sobel derivatives,
// normalized so that a unit ramp yields a gradient of 1.
func (p *Plane) Gradients() (gx, gy *Plane) {
	gx = NewPlane(p.Width, p.Height)
	gy = NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			tl, t, tr := p.At(x-1, y-1), p.At(x, y-1), p.At(x+1, y-1)
			l, r := p.At(x-1, y), p.At(x+1, y)
			bl, b, br := p.At(x-1, y+1), p.At(x, y+1), p.At(x+1, y+1)
			gx.Pix[y*p.Width+x] = ((tr + 2*r + br) - (tl + 2*l + bl)) / 8
			gy.Pix[y*p.Width+x] = ((bl + 2*b + br) - (tl + 2*t + tr)) / 8
		}
	}
	return gx, gy
}

// BoxSum returns, for every pixel, the sum of p over the (2r+1)² window
// centred on it.
func (p *Plane) BoxSum(r int) *Plane {
	ii := NewIntegral(p)
	out := NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			out.Pix[y*p.Width+x] = float32(ii.Sum(x-r, y-r, 2*r+1, 2*r+1))
		}
	}
	return out
}

// Integral is a summed-area table with one row and column of padding.
type Integral struct {
	Width  int
	Height int
	sums   []float64
}

// NewIntegral builds the summed-area table of p.
func NewIntegral(p *Plane) *Integral {
	w, h := p.Width+1, p.Height+1
	ii := &Integral{Width: p.Width, Height: p.Height, sums: make([]float64, w*h)}
	for y := 1; y < h; y++ {
		var row float64
		for x := 1; x < w; x++ {
			row += float64(p.Pix[(y-1)*p.Width+x-1])
			ii.sums[y*w+x] = ii.sums[(y-1)*w+x] + row
		}
	}
	return ii
}

// Sum returns the sum over the rectangle with top-left (x, y) and the given
// size, clipped to the plane.
func (ii *Integral) Sum(x, y, width, height int) float64 {
	x0, y0 := clamp(x, 0, ii.Width), clamp(y, 0, ii.Height)
	x1, y1 := clamp(x+width, 0, ii.Width), clamp(y+height, 0, ii.Height)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	w := ii.Width + 1
	return ii.sums[y1*w+x1] - ii.sums[y0*w+x1] - ii.sums[y1*w+x0] + ii.sums[y0*w+x0]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

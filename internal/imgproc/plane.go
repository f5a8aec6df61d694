// Package imgproc holds the float luminance planes the detectors and the
// optical-flow tracker operate on, plus the handful of filters they share.
package imgproc

import (
	"image"
	"image/color"
	"math"
)

// Plane is a single-channel float32 image stored row-major. Values are
// luminance in [0, 255].
type Plane struct {
	Width  int
	Height int
	Pix    []float32
}

// NewPlane allocates a zeroed plane.
func NewPlane(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// FromImage converts img to luminance using Rec. 601 weights.
func FromImage(img image.Image) *Plane {
	b := img.Bounds()
	p := NewPlane(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < p.Height; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(b.Min.X-src.Rect.Min.X)*4:]
			for x := 0; x < p.Width; x++ {
				r, g, bl := row[4*x], row[4*x+1], row[4*x+2]
				p.Pix[y*p.Width+x] = 0.299*float32(r) + 0.587*float32(g) + 0.114*float32(bl)
			}
		}
	case *image.Gray:
		for y := 0; y < p.Height; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(b.Min.X-src.Rect.Min.X):]
			for x := 0; x < p.Width; x++ {
				p.Pix[y*p.Width+x] = float32(row[x])
			}
		}
	default:
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				g := color.GrayModel.Convert(img.At(x+b.Min.X, y+b.Min.Y)).(color.Gray)
				p.Pix[y*p.Width+x] = float32(g.Y)
			}
		}
	}
	return p
}

// At returns the value at (x, y), clamping coordinates to the border.
func (p *Plane) At(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= p.Width {
		x = p.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.Height {
		y = p.Height - 1
	}
	return p.Pix[y*p.Width+x]
}

// Set stores v at (x, y). Out-of-range coordinates are ignored.
func (p *Plane) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return
	}
	p.Pix[y*p.Width+x] = v
}

// Sample bilinearly interpolates at (x, y) where integer coordinates are
// pixel centers.
func (p *Plane) Sample(x, y float64) float32 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := float32(x - x0)
	fy := float32(y - y0)
	ix, iy := int(x0), int(y0)
	a := p.At(ix, iy)
	b := p.At(ix+1, iy)
	c := p.At(ix, iy+1)
	d := p.At(ix+1, iy+1)
	top := a + (b-a)*fx
	bottom := c + (d-c)*fx
	return top + (bottom-top)*fy
}

// Contains reports whether (x, y) lies within the sampled area.
func (p *Plane) Contains(x, y float64) bool {
	return x >= 0 && y >= 0 && x <= float64(p.Width-1) && y <= float64(p.Height-1)
}

// Bytes returns the plane as 8-bit luminance, rounded and clamped to
// [0, 255], row-major without padding.
func (p *Plane) Bytes() []byte {
	out := make([]byte, len(p.Pix))
	for i, v := range p.Pix {
		out[i] = uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
	}
	return out
}

// Max returns the largest value in the plane.
func (p *Plane) Max() float32 {
	var m float32 = -math.MaxFloat32
	for _, v := range p.Pix {
		if v > m {
			m = v
		}
	}
	return m
}

// Sub returns p − q. Both planes must have the same size.
func (p *Plane) Sub(q *Plane) *Plane {
	out := NewPlane(p.Width, p.Height)
	for i := range p.Pix {
		out.Pix[i] = p.Pix[i] - q.Pix[i]
	}
	return out
}

// IsLocalMax reports whether the value at (x, y) is strictly greater than
// or equal to all eight neighbours and strictly greater than at least the
// ones before it in scan order, so plateaus yield a single maximum.
func (p *Plane) IsLocalMax(x, y int) bool {
	v := p.Pix[y*p.Width+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := p.At(x+dx, y+dy)
			if n > v {
				return false
			}
			if n == v && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

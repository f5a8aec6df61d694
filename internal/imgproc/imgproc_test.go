package imgproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampPlane(w, h int) *Plane {
	p := NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p.Pix[y*w+x] = float32(x)
		}
	}
	return p
}

func TestFromImage(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 2))
	rgba.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	p := FromImage(rgba)
	require.Equal(t, 4, p.Width)
	require.Equal(t, 2, p.Height)
	assert.InDelta(t, 255, p.At(1, 1), 0.01)
	assert.InDelta(t, 0, p.At(0, 0), 0.01)

	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	gray.SetGray(2, 2, color.Gray{Y: 100})
	assert.InDelta(t, 100, FromImage(gray).At(2, 2), 0.01)

	// Generic path.
	paletted := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	paletted.SetColorIndex(0, 1, 1)
	assert.InDelta(t, 255, FromImage(paletted).At(0, 1), 0.01)
}

func TestSample_Bilinear(t *testing.T) {
	p := rampPlane(10, 10)
	assert.InDelta(t, 3.5, p.Sample(3.5, 4.2), 1e-5)
	assert.InDelta(t, 0, p.Sample(-2, 0), 1e-5, "clamped at the border")
	assert.InDelta(t, 9, p.Sample(12, 3), 1e-5)
}

func TestGradients_Ramp(t *testing.T) {
	gx, gy := rampPlane(8, 8).Gradients()
	assert.InDelta(t, 1, gx.At(4, 4), 1e-6)
	assert.InDelta(t, 0, gy.At(4, 4), 1e-6)
}

func TestGaussianBlur_PreservesConstant(t *testing.T) {
	p := NewPlane(16, 16)
	for i := range p.Pix {
		p.Pix[i] = 42
	}
	b := p.GaussianBlur(1.6)
	for _, v := range b.Pix {
		assert.InDelta(t, 42, v, 1e-3)
	}
}

func TestPyramid(t *testing.T) {
	levels := Pyramid(NewPlane(64, 48), 3, 8)
	require.Len(t, levels, 3, "64x48 -> 32x24 -> 16x12, 8x6 is below minimum")
	assert.Equal(t, 16, levels[2].Width)
	assert.Equal(t, 12, levels[2].Height)
}

func TestIntegral_Sum(t *testing.T) {
	p := NewPlane(5, 4)
	for i := range p.Pix {
		p.Pix[i] = 1
	}
	ii := NewIntegral(p)
	assert.Equal(t, 20.0, ii.Sum(0, 0, 5, 4))
	assert.Equal(t, 6.0, ii.Sum(1, 1, 3, 2))
	assert.Equal(t, 4.0, ii.Sum(-1, -1, 3, 3), "clipped to the plane")
	assert.Equal(t, 0.0, ii.Sum(10, 10, 2, 2))
}

func TestIsLocalMax_Plateau(t *testing.T) {
	p := NewPlane(5, 5)
	p.Set(2, 2, 5)
	p.Set(3, 2, 5)
	assert.True(t, p.IsLocalMax(2, 2))
	assert.False(t, p.IsLocalMax(3, 2))
	assert.False(t, p.IsLocalMax(0, 0))
}

func TestBytes_RoundsAndClamps(t *testing.T) {
	p := &Plane{Width: 3, Height: 2, Pix: []float32{-4, 0.4, 0.6, 127.5, 254.9, 300}}
	assert.Equal(t, []byte{0, 0, 1, 128, 255, 255}, p.Bytes())
}

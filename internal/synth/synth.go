// Package synth renders analytic textured frames with known camera motion.
package synth

import (
	"image"
	"image/color"
	"math"
)

// Texture is a smooth, non-repeating intensity field in [0, 255].
func Texture(x, y float64) float64 {
	v := 128 +
		40*math.Sin(x/6)*math.Cos(y/8) +
		30*math.Sin((x-2*y)/11) +
		20*math.Cos((3*x+y)/13)
	return math.Max(0, math.Min(255, v))
}

// Frame renders Texture sampled at (x+ox, y+oy), so increasing the offset
// moves content toward smaller coordinates.
func Frame(width, height int, ox, oy float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(math.Round(Texture(float64(x)+ox, float64(y)+oy)))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// Pan renders n frames where frame t samples the texture at offset
// (vx·t, vy·t). Frame t maps into frame t−1 by a translation of (vx, vy).
func Pan(n, width, height int, vx, vy float64) []image.Image {
	out := make([]image.Image, n)
	for t := range out {
		out[t] = Frame(width, height, vx*float64(t), vy*float64(t))
	}
	return out
}

// Static renders n identical frames.
func Static(n, width, height int) []image.Image {
	return Pan(n, width, height, 0, 0)
}

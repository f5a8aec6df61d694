package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/video"
)

// Overlay colors.
var (
	CropColor    = color.RGBA{R: 0, G: 160, B: 255, A: 255}
	FeatureColor = color.RGBA{R: 255, G: 220, B: 0, A: 255}
	TrackColor   = color.RGBA{R: 0, G: 220, B: 0, A: 255}
	OutlierColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

const (
	lineWidth  = 2
	markerSize = 3
)

// annotate copies the frame and draws the projected crop window plus the
// selected overlays.
func annotate(s video.FrameSnapshot, crop geometry.Rect, ov Overlay) *image.RGBA {
	b := s.Image.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, s.Image, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	if ov.Tracks || ov.Outliers {
		inliers := vector.NewRasterizer(w, h)
		outliers := vector.NewRasterizer(w, h)
		var nIn, nOut int
		for i, d := range s.Displacements {
			if i < len(s.Outliers) && s.Outliers[i] {
				if ov.Outliers {
					segment(outliers, d.Source, d.Destination, lineWidth)
					nOut++
				}
			} else if ov.Tracks {
				segment(inliers, d.Source, d.Destination, lineWidth)
				nIn++
			}
		}
		if nIn > 0 {
			inliers.Draw(dst, b, image.NewUniform(TrackColor), image.Point{})
		}
		if nOut > 0 {
			outliers.Draw(dst, b, image.NewUniform(OutlierColor), image.Point{})
		}
	}

	if ov.Features && len(s.Features) > 0 {
		z := vector.NewRasterizer(w, h)
		for _, p := range s.Features {
			marker(z, p, markerSize)
		}
		z.Draw(dst, b, image.NewUniform(FeatureColor), image.Point{})
	}

	quad := geometry.TransformRectangle(s.Update, crop)
	z := vector.NewRasterizer(w, h)
	for i := range quad.Corners {
		segment(z, quad.Corners[i], quad.Corners[(i+1)%4], lineWidth)
	}
	z.Draw(dst, b, image.NewUniform(CropColor), image.Point{})
	return dst
}

// segment adds a filled rectangle of the given width around p–q.
func segment(z *vector.Rasterizer, p, q geometry.Point, width float64) {
	dx, dy := q.X-p.X, q.Y-p.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		marker(z, p, width)
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	z.MoveTo(float32(p.X+nx), float32(p.Y+ny))
	z.LineTo(float32(q.X+nx), float32(q.Y+ny))
	z.LineTo(float32(q.X-nx), float32(q.Y-ny))
	z.LineTo(float32(p.X-nx), float32(p.Y-ny))
	z.ClosePath()
}

// marker adds a diamond of the given half-size centered on p, wound the
// same way as segment so overlapping shapes add up.
func marker(z *vector.Rasterizer, p geometry.Point, r float64) {
	z.MoveTo(float32(p.X), float32(p.Y-r))
	z.LineTo(float32(p.X-r), float32(p.Y))
	z.LineTo(float32(p.X), float32(p.Y+r))
	z.LineTo(float32(p.X+r), float32(p.Y))
	z.ClosePath()
}

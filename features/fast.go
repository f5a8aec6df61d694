package features

import (
	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

// circle is the Bresenham circle of radius 3 in clockwise order.
var circle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

const fastArc = 9

// fast implements the FAST-9 segment test. The score of a corner is the
// summed absolute difference of the circle pixels beyond the threshold.
type fast struct{}

func (fast) Kind() Kind { return FAST }

func (fast) Detect(p *imgproc.Plane, opts Options) []geometry.Point {
	t := float32(opts.Threshold)
	score := imgproc.NewPlane(p.Width, p.Height)
	for y := 3; y < p.Height-3; y++ {
		for x := 3; x < p.Width-3; x++ {
			c := p.Pix[y*p.Width+x]
			var ring [16]float32
			for i, o := range circle {
				ring[i] = p.Pix[(y+o[1])*p.Width+x+o[0]] - c
			}
			if s, ok := segmentScore(ring, t); ok {
				score.Pix[y*p.Width+x] = s
			}
		}
	}
	return selectCandidates(peaks(score, 3), opts)
}

// segmentScore reports whether fastArc contiguous ring entries are all
// brighter than t or all darker than −t, wrapping around the circle.
func segmentScore(ring [16]float32, t float32) (float32, bool) {
	var brighter, darker, run int
	var sumB, sumD float32
	for i := 0; i < 32; i++ {
		d := ring[i%16]
		if d > t {
			run = max(run, 0) + 1
		} else if d < -t {
			run = min(run, 0) - 1
		} else {
			run = 0
		}
		brighter = max(brighter, run)
		darker = max(darker, -run)
		if i < 16 {
			if d > t {
				sumB += d - t
			} else if d < -t {
				sumD += -d - t
			}
		}
	}
	switch {
	case brighter >= fastArc && darker >= fastArc:
		return max(sumB, sumD), true
	case brighter >= fastArc:
		return sumB, true
	case darker >= fastArc:
		return sumD, true
	}
	return 0, false
}

package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

func texture(x, y float64) float64 {
	return 128 + 50*math.Sin(x/5)*math.Cos(y/7) + 30*math.Sin((x+y)/9)
}

// shiftedPlane renders texture moved by (dx, dy): content at p appears at
// p + (dx, dy).
func shiftedPlane(size int, dx, dy float64) *imgproc.Plane {
	p := imgproc.NewPlane(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p.Set(x, y, float32(texture(float64(x)-dx, float64(y)-dy)))
		}
	}
	return p
}

func gridPoints(from, to, step int) []geometry.Point {
	var pts []geometry.Point
	for y := from; y <= to; y += step {
		for x := from; x <= to; x += step {
			pts = append(pts, geometry.Pt(float64(x), float64(y)))
		}
	}
	return pts
}

func TestTrack_RecoversShift(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy float64
	}{
		{"subpixel", 0.4, -0.3},
		{"pan", 3, -1.5},
		{"large", 7, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := shiftedPlane(128, 0, 0)
			next := shiftedPlane(128, tt.dx, tt.dy)
			pts := gridPoints(40, 88, 16)

			ds := NewLucasKanade(DefaultOptions()).Track(prev, next, pts)
			require.Len(t, ds, len(pts))
			for _, d := range ds {
				v := d.Vector()
				assert.InDelta(t, tt.dx, v.X, 0.1)
				assert.InDelta(t, tt.dy, v.Y, 0.1)
			}
		})
	}
}

func TestNew_RecoversPan(t *testing.T) {
	prev := shiftedPlane(128, 0, 0)
	next := shiftedPlane(128, 3, -1.5)
	pts := gridPoints(40, 88, 16)

	var tr Tracker = New(DefaultOptions())
	ds := tr.Track(prev, next, pts)
	require.GreaterOrEqual(t, len(ds), len(pts)*3/4)
	for _, d := range ds {
		v := d.Vector()
		assert.InDelta(t, 3, v.X, 0.25)
		assert.InDelta(t, -1.5, v.Y, 0.25)
	}
	assert.Empty(t, tr.Track(prev, next, nil))
}

func TestTrack_DropsUntrackable(t *testing.T) {
	flat := imgproc.NewPlane(64, 64)
	for i := range flat.Pix {
		flat.Pix[i] = 100
	}
	lk := NewLucasKanade(DefaultOptions())
	assert.Empty(t, lk.Track(flat, flat, []geometry.Point{geometry.Pt(32, 32)}), "flat window")

	prev := shiftedPlane(128, 0, 0)
	next := shiftedPlane(128, 4, 0)
	ds := lk.Track(prev, next, []geometry.Point{geometry.Pt(126, 64), geometry.Pt(64, 64)})
	require.Len(t, ds, 1, "destination outside the frame is dropped")
	assert.Equal(t, geometry.Pt(64, 64), ds[0].Source)

	assert.Nil(t, lk.Track(prev, next, nil))
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	o := DefaultOptions()
	o.Radius = 0
	assert.Error(t, o.Validate())
}

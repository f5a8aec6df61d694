package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

func squarePlane(size, x0, x1 int) *imgproc.Plane {
	p := imgproc.NewPlane(size, size)
	for y := x0; y < x1; y++ {
		for x := x0; x < x1; x++ {
			p.Set(x, y, 220)
		}
	}
	return p
}

func blobPlane(size int, sigma float64, centers []geometry.Point) *imgproc.Plane {
	p := imgproc.NewPlane(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := 20.0
			for _, c := range centers {
				dx, dy := float64(x)-c.X, float64(y)-c.Y
				v += 200 * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			}
			p.Set(x, y, float32(v))
		}
	}
	return p
}

func nearest(pts []geometry.Point, q geometry.Point) float64 {
	best := math.Inf(1)
	for _, p := range pts {
		best = math.Min(best, geometry.Distance(p, q))
	}
	return best
}

func TestKind_TextRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		text, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	k, err := ParseKind(" GFTT-Harris ")
	require.NoError(t, err)
	assert.Equal(t, GFTTHarris, k)

	_, err = ParseKind("orb")
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = Kind(42).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = New(Kind(42))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDetect_FlatPlaneHasNoFeatures(t *testing.T) {
	flat := imgproc.NewPlane(64, 64)
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	for _, k := range Kinds() {
		d, err := New(k)
		require.NoError(t, err)
		assert.Equal(t, k, d.Kind())
		assert.Empty(t, d.Detect(flat, DefaultOptions()), k.String())
	}
}

func TestDetect_SquareCorners(t *testing.T) {
	p := squarePlane(64, 20, 44)
	corners := []geometry.Point{geometry.Pt(20, 20), geometry.Pt(43, 20), geometry.Pt(43, 43), geometry.Pt(20, 43)}

	for _, k := range []Kind{GFTT, GFTTHarris, FAST} {
		t.Run(k.String(), func(t *testing.T) {
			d, err := New(k)
			require.NoError(t, err)
			pts := d.Detect(p, DefaultOptions())
			require.NotEmpty(t, pts)
			for _, c := range corners {
				assert.LessOrEqual(t, nearest(pts, c), 3.0, "corner %v", c)
			}
		})
	}
}

func TestDetect_BlobCenters(t *testing.T) {
	centers := []geometry.Point{geometry.Pt(32, 32), geometry.Pt(96, 32), geometry.Pt(32, 96), geometry.Pt(96, 96)}
	p := blobPlane(128, 2.5, centers)

	for _, k := range []Kind{SURF, SIFT} {
		t.Run(k.String(), func(t *testing.T) {
			d, err := New(k)
			require.NoError(t, err)
			pts := d.Detect(p, DefaultOptions())
			require.NotEmpty(t, pts)
			for _, c := range centers {
				assert.LessOrEqual(t, nearest(pts, c), 3.0, "blob %v", c)
			}
		})
	}
}

func TestSelectCandidates(t *testing.T) {
	cands := []candidate{
		{pt: geometry.Pt(0, 0), response: 5},
		{pt: geometry.Pt(3, 0), response: 9},
		{pt: geometry.Pt(50, 50), response: 1},
		{pt: geometry.Pt(80, 80), response: 0.001},
		{pt: geometry.Pt(20, 0), response: 4},
	}
	opts := DefaultOptions()
	got := selectCandidates(cands, opts)
	assert.Equal(t, []geometry.Point{geometry.Pt(3, 0), geometry.Pt(20, 0), geometry.Pt(50, 50)}, got,
		"strongest first, spacing enforced, weak response dropped")

	opts.MaxFeatures = 2
	assert.Len(t, selectCandidates(cands, opts), 2)

	assert.Nil(t, selectCandidates(nil, opts))
}

func TestDetect_RespectsLimits(t *testing.T) {
	p := imgproc.NewPlane(96, 96)
	for y := 0; y < 96; y++ {
		for x := 0; x < 96; x++ {
			if (x/8+y/8)%2 == 0 {
				p.Set(x, y, 200)
			}
		}
	}
	opts := DefaultOptions()
	opts.MaxFeatures = 12
	opts.MinDistance = 7

	d, err := New(GFTT)
	require.NoError(t, err)
	pts := d.Detect(p, opts)
	require.Len(t, pts, 12)
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			assert.GreaterOrEqual(t, geometry.Distance(pts[i], pts[j]), 7.0)
		}
	}
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	o := DefaultOptions()
	o.Quality = 2
	assert.Error(t, o.Validate())

	o = DefaultOptions()
	o.MaxFeatures = -1
	assert.Error(t, o.Validate())
}

package geometry

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func TestApplyAffine_InverseRoundTrip(t *testing.T) {
	transforms := []Affine{
		Identity(),
		Translation(12.5, -3),
		{A: 0.98, B: -0.05, Tx: 4, C: 0.05, D: 0.98, Ty: -7},
		{A: 1.2, B: 0.3, Tx: -20, C: -0.1, D: 0.7, Ty: 3.25},
		{A: -1, B: 0, Tx: 640, C: 0, D: 1, Ty: 0},
	}
	points := []Point{Pt(0, 0), Pt(1, 1), Pt(-40.5, 13), Pt(639, 479), Pt(1e4, -1e4)}

	for _, a := range transforms {
		inv, err := a.Invert()
		require.NoError(t, err, "transform %v", a)
		for _, p := range points {
			got := ApplyAffine(inv, ApplyAffine(a, p))
			assert.InDelta(t, p.X, got.X, 1e-7, "x for %v through %v", p, a)
			assert.InDelta(t, p.Y, got.Y, 1e-7, "y for %v through %v", p, a)
		}
	}
}

func TestInvert_Singular(t *testing.T) {
	_, err := Affine{A: 1, B: 2, C: 2, D: 4}.Invert()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSingular)
}

func TestCompose_Order(t *testing.T) {
	scale := Affine{A: 2, D: 2}
	shift := Translation(3, 0)

	// shift first, then scale: (1,0) -> (4,0) -> (8,0)
	got := ApplyAffine(Compose(scale, shift), Pt(1, 0))
	assert.InDelta(t, 8, got.X, tol)

	// scale first, then shift: (1,0) -> (2,0) -> (5,0)
	got = ApplyAffine(Compose(shift, scale), Pt(1, 0))
	assert.InDelta(t, 5, got.X, tol)
}

func TestTransformRectangle_Identity(t *testing.T) {
	rects := []Rect{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 32, Y: 24, Width: 256, Height: 192},
		{X: 1.5, Y: 2.25, Width: 0.5, Height: 100},
	}
	for _, r := range rects {
		rr := TransformRectangle(Identity(), r)
		assert.Equal(t, r.Corners(), rr.Corners)
		w, h := rr.Size()
		assert.InDelta(t, r.Width, w, tol)
		assert.InDelta(t, r.Height, h, tol)
		assert.InDelta(t, 0, rr.Angle(), tol)
		assert.Equal(t, r, rr.Bounds())
		assert.InDelta(t, r.Center().X, rr.Center().X, tol)
		assert.InDelta(t, r.Center().Y, rr.Center().Y, tol)
	}
}

func TestTransformRectangle_Rotation(t *testing.T) {
	theta := math.Pi / 6
	rot := Affine{A: math.Cos(theta), B: -math.Sin(theta), C: math.Sin(theta), D: math.Cos(theta)}
	rr := TransformRectangle(rot, Rect{Width: 10, Height: 4})

	w, h := rr.Size()
	assert.InDelta(t, 10, w, 1e-9)
	assert.InDelta(t, 4, h, 1e-9)
	assert.InDelta(t, theta, rr.Angle(), 1e-9)
}

func TestMoveToOrigin(t *testing.T) {
	in := map[int]Point{0: Pt(5, 5), 1: Pt(7, 5), 2: Pt(5, 9)}
	out := MoveToOrigin(in)

	assert.Equal(t, map[int]Point{0: Pt(0, 0), 1: Pt(2, 0), 2: Pt(0, 4)}, out)
	assert.Equal(t, Pt(5, 5), in[0], "input must not be modified")
}

func TestMoveToOrigin_KeyOrder(t *testing.T) {
	out := MoveToOrigin(map[int]Point{9: Pt(1, 1), 3: Pt(4, -2), 5: Pt(0, 0)})
	assert.Equal(t, Pt(0, 0), out[3])
	assert.Equal(t, Pt(-3, 3), out[9])
	assert.Equal(t, Pt(-4, 2), out[5])

	assert.Empty(t, MoveToOrigin(nil))
}

func TestCenteredRect(t *testing.T) {
	r := CenteredRect(200, 100, 0.8)
	assert.Equal(t, Rect{X: 20, Y: 10, Width: 160, Height: 80}, r)
	assert.True(t, r.Within(200, 100))
	assert.False(t, Rect{X: 50, Width: 160, Height: 10}.Within(200, 100))
}

func TestBoundingRect(t *testing.T) {
	r, ok := BoundingRect([]Point{Pt(3, 4), Pt(-1, 10), Pt(6, 2)})
	require.True(t, ok)
	assert.Equal(t, Rect{X: -1, Y: 2, Width: 7, Height: 8}, r)

	_, ok = BoundingRect(nil)
	assert.False(t, ok)
}

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 64, A: 255})
		}
	}
	return img
}

func TestCropImage_Unrotated(t *testing.T) {
	img := gradientImage(64, 48)
	r := Rect{X: 8, Y: 6, Width: 32, Height: 24}

	out, err := CropImage(img, TransformRectangle(Identity(), r))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), out.Bounds())

	for _, p := range []image.Point{{0, 0}, {10, 5}, {31, 23}} {
		want := img.RGBAAt(p.X+8, p.Y+6)
		got := out.RGBAAt(p.X, p.Y)
		assert.InDelta(t, float64(want.R), float64(got.R), 1, "R at %v", p)
		assert.InDelta(t, float64(want.G), float64(got.G), 1, "G at %v", p)
	}
}

func TestCropImage_Rotated(t *testing.T) {
	img := gradientImage(100, 100)
	theta := math.Pi / 2
	// Rotate a 20x10 rectangle by 90° about its own center.
	r := Rect{X: 40, Y: 45, Width: 20, Height: 10}
	c := r.Center()
	rot := Compose(Translation(c.X, c.Y), Compose(
		Affine{A: math.Cos(theta), B: -math.Sin(theta), C: math.Sin(theta), D: math.Cos(theta)},
		Translation(-c.X, -c.Y)))

	out, err := CropImage(img, TransformRectangle(rot, r))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), out.Bounds())
}

func TestCropImage_Errors(t *testing.T) {
	img := gradientImage(50, 50)

	tests := []struct {
		name string
		rr   RotatedRect
		err  error
	}{
		{
			name: "partially outside",
			rr:   TransformRectangle(Translation(40, 0), Rect{Width: 20, Height: 20}),
			err:  ErrOutOfBounds,
		},
		{
			name: "wholly outside",
			rr:   TransformRectangle(Translation(-100, -100), Rect{Width: 20, Height: 20}),
			err:  ErrOutOfBounds,
		},
		{
			name: "empty",
			rr:   TransformRectangle(Identity(), Rect{X: 5, Y: 5, Width: 0, Height: 10}),
			err:  ErrEmptyRegion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := CropImage(img, tt.rr)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

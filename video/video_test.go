package video

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/videoio"
)

func solidImages(n, w, h int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p] = uint8(i * 10)
			img.Pix[p+3] = 255
		}
		out[i] = img
	}
	return out
}

func TestNew(t *testing.T) {
	v, err := New(Metadata{Name: "clip", FPS: 30, Codec: "MJPG"}, solidImages(3, 64, 48))
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())
	assert.Equal(t, 64, v.Width())
	assert.Equal(t, 48, v.Height())
	assert.Equal(t, "MJPG", v.Codec())
	assert.Equal(t, geometry.Rect{Width: 64, Height: 48}, v.CropBox())

	f, err := v.Frame(2)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Index())
	assert.True(t, f.AffineTransform().IsIdentity(0))
	assert.True(t, f.UpdateTransform().IsIdentity(0))

	_, err = v.Frame(3)
	assert.ErrorIs(t, err, ErrFrameIndex)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Metadata{}, nil)
	assert.ErrorIs(t, err, ErrNoFrames)

	imgs := solidImages(2, 64, 48)
	imgs = append(imgs, image.NewRGBA(image.Rect(0, 0, 32, 32)))
	_, err = New(Metadata{}, imgs)
	assert.ErrorIs(t, err, ErrFrameSizeMismatch)
}

func TestNewFrame_CopiesPixels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	f := NewFrame(0, src)
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	assert.Equal(t, uint8(0), f.Image().Pix[0])
}

func TestSetCropBox(t *testing.T) {
	v, err := New(Metadata{}, solidImages(2, 100, 80))
	require.NoError(t, err)

	require.NoError(t, v.SetCropBox(geometry.Rect{X: 10, Y: 10, Width: 80, Height: 60}))
	assert.Equal(t, 80.0, v.CropBox().Width)

	tests := []geometry.Rect{
		{X: 30, Y: 0, Width: 80, Height: 60},
		{X: -1, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: 0, Width: 0, Height: 10},
	}
	for _, r := range tests {
		assert.ErrorIs(t, v.SetCropBox(r), ErrCropBoxOutside, r.String())
	}
}

func TestSetUpdateTransforms(t *testing.T) {
	v, err := New(Metadata{}, solidImages(3, 40, 40))
	require.NoError(t, err)

	err = v.SetUpdateTransforms([]geometry.Affine{geometry.Identity()})
	assert.ErrorIs(t, err, ErrTransformCount)

	ts := []geometry.Affine{geometry.Identity(), geometry.Translation(1, 0), geometry.Translation(2, 0)}
	require.NoError(t, v.SetUpdateTransforms(ts))
	assert.Equal(t, ts, v.UpdateTransforms())
}

func TestFrame_OutlierMask(t *testing.T) {
	f := NewFrame(1, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	f.SetDisplacements([]Displacement{
		{Source: geometry.Pt(1, 1), Destination: geometry.Pt(2, 1)},
		{Source: geometry.Pt(5, 5), Destination: geometry.Pt(9, 9)},
	})
	assert.Equal(t, []bool{false, false}, f.OutlierMask())

	assert.ErrorIs(t, f.SetOutlierMask([]bool{true}), ErrMaskLength)
	require.NoError(t, f.SetOutlierMask([]bool{false, true}))

	src, dst := f.Inliers()
	assert.Equal(t, []geometry.Point{geometry.Pt(1, 1)}, src)
	assert.Equal(t, []geometry.Point{geometry.Pt(2, 1)}, dst)
	src, _ = f.Outliers()
	assert.Equal(t, []geometry.Point{geometry.Pt(5, 5)}, src)
	assert.Len(t, f.Displacements(), 2, "outliers are flagged, not removed")

	assert.Len(t, f.DisplacementsInCell(0, 0, 4), 1)
	assert.Equal(t, geometry.Pt(1, 0), f.Displacements()[0].Vector())
}

func TestFrame_Degenerate(t *testing.T) {
	f := NewFrame(1, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	f.SetAffineTransform(geometry.Translation(3, 0))
	f.MarkDegenerate("no features")

	d, reason := f.Degenerate()
	assert.True(t, d)
	assert.Equal(t, "no features", reason)
	assert.True(t, f.AffineTransform().IsIdentity(0))

	f.SetAffineTransform(geometry.Translation(1, 1))
	d, _ = f.Degenerate()
	assert.False(t, d)
}

func TestFrame_SnapshotIsolated(t *testing.T) {
	f := NewFrame(0, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	f.SetFeatures([]geometry.Point{geometry.Pt(1, 2)})
	r := geometry.Rect{X: 1, Y: 1, Width: 2, Height: 2}
	f.SetSalientRegion(&r)

	snap := f.Snapshot()
	f.SetFeatures(nil)
	f.SetSalientRegion(nil)

	assert.Len(t, snap.Features, 1)
	require.NotNil(t, snap.Salient)
	assert.Equal(t, r, *snap.Salient)
	_, ok := f.SalientRegion()
	assert.False(t, ok)
}

func TestFrame_ConcurrentWritersAndSnapshots(t *testing.T) {
	f := NewFrame(0, image.NewRGBA(image.Rect(0, 0, 8, 8)))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			f.SetDisplacements(make([]Displacement, i))
		}(i)
		go func() {
			defer wg.Done()
			s := f.Snapshot()
			assert.Equal(t, len(s.Displacements), len(s.Outliers))
		}()
	}
	wg.Wait()
}

type memSource struct {
	info   videoio.Info
	images []image.Image
}

func (m *memSource) Info() videoio.Info { return m.info }
func (m *memSource) Close() error       { return nil }
func (m *memSource) Next() (image.Image, error) {
	if len(m.images) == 0 {
		return nil, io.EOF
	}
	img := m.images[0]
	m.images = m.images[1:]
	return img, nil
}

func TestLoad(t *testing.T) {
	src := &memSource{
		info:   videoio.Info{Name: "short", FrameCount: 5, FPS: 24, Codec: "avc1"},
		images: solidImages(3, 40, 30),
	}
	v, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len(), "fewer frames than reported is accepted")
	assert.Equal(t, 24.0, v.FPS())
	assert.Equal(t, "short", v.Name())

	_, err = Load(context.Background(), &memSource{})
	assert.ErrorIs(t, err, ErrNoFrames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, &memSource{images: solidImages(2, 8, 8)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadLocations(t *testing.T) {
	in := "# frame,x,y\n0,10,20\n\n0,30,40\n2, 5, 6\n"
	locs, err := ReadLocations(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, locs.FrameIndices())
	assert.Equal(t, []geometry.Point{geometry.Pt(10, 20), geometry.Pt(30, 40)}, locs[0])
	assert.Equal(t, geometry.Pt(5, 6), locs[2][0])

	tests := []struct {
		name string
		in   string
	}{
		{"too few fields", "0,1\n"},
		{"not an integer", "0,1,2\n1,a,3\n"},
		{"negative frame", "-1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadLocations(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ErrMalformedLocation)
			assert.Contains(t, err.Error(), "line")
		})
	}
}

func TestFeatureRoundTrip(t *testing.T) {
	v, err := New(Metadata{}, solidImages(3, 40, 40))
	require.NoError(t, err)

	require.NoError(t, v.ImportFeatures(Locations{1: {geometry.Pt(3, 4)}, 2: {geometry.Pt(7, 8), geometry.Pt(1, 1)}}))
	var buf bytes.Buffer
	require.NoError(t, v.WriteFeatures(&buf))
	assert.Equal(t, "1,3,4\n2,7,8\n2,1,1\n", buf.String())

	assert.Error(t, v.ImportFeatures(Locations{9: {geometry.Pt(0, 0)}}))
}

func TestSetSalientFromLocations(t *testing.T) {
	v, err := New(Metadata{}, solidImages(2, 40, 40))
	require.NoError(t, err)
	require.NoError(t, v.SetSalientFromLocations(Locations{1: {geometry.Pt(2, 3), geometry.Pt(10, 13)}}))

	f, _ := v.Frame(1)
	r, ok := f.SalientRegion()
	require.True(t, ok)
	assert.Equal(t, geometry.Rect{X: 2, Y: 3, Width: 8, Height: 10}, r)

	f0, _ := v.Frame(0)
	_, ok = f0.SalientRegion()
	assert.False(t, ok)
}

func TestLocations_OutOfRangeWritesNothing(t *testing.T) {
	v, err := New(Metadata{}, solidImages(3, 40, 40))
	require.NoError(t, err)
	bad := Locations{
		0: {geometry.Pt(2, 3), geometry.Pt(10, 13)},
		1: {geometry.Pt(5, 5)},
		7: {geometry.Pt(1, 1)},
	}

	err = v.ImportFeatures(bad)
	assert.ErrorIs(t, err, ErrFrameIndex)
	assert.Empty(t, v.ExportFeatures())

	err = v.SetSalientFromLocations(bad)
	assert.ErrorIs(t, err, ErrFrameIndex)
	for i, f := range v.Frames() {
		_, ok := f.SalientRegion()
		assert.False(t, ok, "frame %d", i)
	}
}

package motion

import (
	"context"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/synth"
	"github.com/opd-ai/vidstab/video"
)

var trueMotion = geometry.Affine{A: 1.02, B: -0.05, Tx: 4, C: 0.03, D: 0.98, Ty: -2}

func syntheticDisplacements(n int) []video.Displacement {
	ds := make([]video.Displacement, n)
	for i := range ds {
		dst := geometry.Pt(float64(10+(i*37)%180), float64(15+(i*53)%130))
		ds[i] = video.Displacement{Source: trueMotion.Apply(dst), Destination: dst}
	}
	return ds
}

func TestFitAffine_Exact(t *testing.T) {
	ds := syntheticDisplacements(12)
	var from, to []geometry.Point
	for _, d := range ds {
		from = append(from, d.Destination)
		to = append(to, d.Source)
	}
	a, err := FitAffine(from, to)
	require.NoError(t, err)
	assert.True(t, a.ApproxEqual(trueMotion, 1e-9), a.String())
}

func TestFitAffine_Errors(t *testing.T) {
	p := []geometry.Point{geometry.Pt(0, 0), geometry.Pt(1, 1)}
	_, err := FitAffine(p, p)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, err = FitAffine(p, p[:1])
	assert.ErrorIs(t, err, ErrPointCount)

	line := []geometry.Point{geometry.Pt(0, 0), geometry.Pt(1, 1), geometry.Pt(2, 2), geometry.Pt(3, 3)}
	_, err = FitAffine(line, line)
	assert.ErrorIs(t, err, ErrSingularFit)
}

func TestRejectOutliers_SingleInjectedOutlier(t *testing.T) {
	ds := syntheticDisplacements(30)
	ds[17].Source = geometry.Pt(ds[17].Source.X+15, ds[17].Source.Y-10)

	mask := RejectOutliers(ds, DefaultRansacOptions())
	require.Len(t, mask, len(ds))
	for i, out := range mask {
		assert.Equal(t, i == 17, out, "displacement %d", i)
	}

	var from, to []geometry.Point
	for i, d := range ds {
		if !mask[i] {
			from = append(from, d.Destination)
			to = append(to, d.Source)
		}
	}
	a, err := FitAffine(from, to)
	require.NoError(t, err)
	assert.True(t, a.ApproxEqual(trueMotion, 1e-6), a.String())
}

func TestConsensus_RecoversDominantMotion(t *testing.T) {
	ds := syntheticDisplacements(40)
	for _, i := range []int{2, 9, 21, 33} {
		ds[i].Source = geometry.Pt(ds[i].Source.X-25, ds[i].Source.Y+12)
	}
	from := make([]geometry.Point, len(ds))
	to := make([]geometry.Point, len(ds))
	for i, d := range ds {
		from[i], to[i] = d.Destination, d.Source
	}

	a, ok := consensus(from, to, DefaultRansacOptions())
	require.True(t, ok)
	assert.True(t, a.ApproxEqual(trueMotion, 1e-3), a.String())
}

func TestRejectOutliers_Deterministic(t *testing.T) {
	ds := syntheticDisplacements(40)
	for _, i := range []int{3, 11, 25} {
		ds[i].Source.X += 30
	}
	assert.Equal(t, RejectOutliers(ds, DefaultRansacOptions()), RejectOutliers(ds, DefaultRansacOptions()))
}

func TestRejectOutliers_TooFew(t *testing.T) {
	ds := syntheticDisplacements(2)
	assert.Equal(t, []bool{false, false}, RejectOutliers(ds, DefaultRansacOptions()))
	assert.Empty(t, RejectOutliers(nil, DefaultRansacOptions()))
}

type progressLog struct {
	mu    sync.Mutex
	steps map[Step][]float64
}

func (p *progressLog) record(s Step, f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[s] = append(p.steps[s], f)
}

func TestEstimator_Pan(t *testing.T) {
	v, err := video.New(video.Metadata{Name: "pan"}, synth.Pan(4, 160, 120, 2, 0))
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Workers = 2
	e, err := NewEstimator(opts)
	require.NoError(t, err)
	log := &progressLog{steps: map[Step][]float64{}}
	e.OnProgress(log.record)

	require.NoError(t, e.Run(context.Background(), v))

	for i, a := range v.AffineTransforms() {
		if i == 0 {
			assert.True(t, a.IsIdentity(0))
			continue
		}
		assert.True(t, a.ApproxEqual(geometry.Translation(2, 0), 0.05), "frame %d: %v", i, a)
	}
	assert.Empty(t, v.Degenerate())

	for _, s := range []Step{StepDetect, StepTrack, StepReject, StepFit} {
		fr := log.steps[s]
		require.NotEmpty(t, fr, s.String())
		assert.Equal(t, 1.0, fr[len(fr)-1])
		for i := 1; i < len(fr); i++ {
			assert.GreaterOrEqual(t, fr[i], fr[i-1])
		}
	}
}

func TestEstimator_DegenerateFallback(t *testing.T) {
	flat := make([]image.Image, 3)
	for i := range flat {
		img := image.NewRGBA(image.Rect(0, 0, 64, 64))
		for p := range img.Pix {
			img.Pix[p] = 90
		}
		flat[i] = img
	}
	v, err := video.New(video.Metadata{}, flat)
	require.NoError(t, err)

	e, err := NewEstimator(DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), v))

	assert.Equal(t, []int{1, 2}, v.Degenerate())
	f, _ := v.Frame(1)
	_, reason := f.Degenerate()
	assert.Equal(t, ReasonNoFeatures, reason)
	assert.True(t, f.AffineTransform().IsIdentity(0))
}

func TestEstimator_PreservesImportedFeatures(t *testing.T) {
	v, err := video.New(video.Metadata{}, synth.Static(2, 96, 96))
	require.NoError(t, err)
	manual := []geometry.Point{geometry.Pt(40, 40)}
	require.NoError(t, v.ImportFeatures(video.Locations{0: manual}))

	opts := DefaultOptions()
	opts.PreserveFeatures = true
	e, err := NewEstimator(opts)
	require.NoError(t, err)
	require.NoError(t, e.DetectFeatures(context.Background(), v))

	f0, _ := v.Frame(0)
	f1, _ := v.Frame(1)
	assert.Equal(t, manual, f0.Features())
	assert.NotEmpty(t, f1.Features())
}

func TestEstimator_Cancelled(t *testing.T) {
	v, err := video.New(video.Metadata{}, synth.Static(2, 64, 64))
	require.NoError(t, err)
	e, err := NewEstimator(DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx, v), context.Canceled)
	f, _ := v.Frame(0)
	assert.Empty(t, f.Features())
}

func TestOptions_Validate(t *testing.T) {
	o := DefaultOptions()
	o.MinInliers = 2
	_, err := NewEstimator(o)
	assert.Error(t, err)
}

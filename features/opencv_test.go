//go:build gocv

package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab/geometry"
)

func TestNew_DispatchesToOpenCV(t *testing.T) {
	tests := []struct {
		kind Kind
		want Detector
	}{
		{GFTT, cvGFTT{}},
		{GFTTHarris, cvGFTT{harris: true}},
		{FAST, cvFAST{}},
		{SIFT, cvSIFT{}},
		{SURF, surf{}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			d, err := New(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestCVGFTT_HarrisRanksCorners(t *testing.T) {
	p := squarePlane(64, 20, 44)
	opts := DefaultOptions()
	opts.MaxFeatures = 4

	pts := cvGFTT{harris: true}.Detect(p, opts)
	require.Len(t, pts, 4)
	for _, c := range []geometry.Point{geometry.Pt(20, 20), geometry.Pt(43, 20), geometry.Pt(43, 43), geometry.Pt(20, 43)} {
		assert.LessOrEqual(t, nearest(pts, c), 3.0, "corner %v", c)
	}
}

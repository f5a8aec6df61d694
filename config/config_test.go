package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/vidstab"
	"github.com/opd-ai/vidstab/features"
	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/pathopt"
	"github.com/opd-ai/vidstab/render"
)

func TestDecode_Overlay(t *testing.T) {
	doc := `
motion:
  detector: gftt-harris
  tracking:
    radius: 15
path:
  model: similarity
  salient:
    enabled: true
    mode: anchored
render:
  mode: annotated
  policy: letterbox
crop_box:
  rect: {x: 10, y: 10, width: 100, height: 80}
`
	opts, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)

	def := vidstab.NewOptions()
	assert.Equal(t, features.GFTTHarris, opts.Motion.Detector)
	assert.Equal(t, 15, opts.Motion.Tracking.Radius)
	assert.Equal(t, def.Motion.Tracking.Levels, opts.Motion.Tracking.Levels, "unset keys keep defaults")
	assert.Equal(t, pathopt.Similarity, opts.Path.Model)
	assert.True(t, opts.Path.Salient.Enabled)
	assert.Equal(t, pathopt.Anchored, opts.Path.Salient.Mode)
	assert.Equal(t, def.Path.Weights, opts.Path.Weights)
	assert.Equal(t, render.Annotated, opts.Render.Mode)
	assert.Equal(t, render.Letterbox, opts.Render.Policy)
	require.NotNil(t, opts.CropBox.Rect)
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 100, Height: 80}, *opts.CropBox.Rect)
}

func TestDecode_Empty(t *testing.T) {
	opts, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, vidstab.NewOptions(), opts)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"unknown key", "motion:\n  colour: red\n", ErrParse},
		{"unknown detector", "motion:\n  detector: orb\n", ErrParse},
		{"unknown model", "path:\n  model: homography\n", ErrParse},
		{"malformed", "path: [", ErrParse},
		{"invalid crop ratio", "crop_box:\n  ratio: 1.5\n", vidstab.ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vidstab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crop_box:\n  ratio: 0.7\n"), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, opts.CropBox.Ratio)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrRead)
}

func TestWrite_RoundTrip(t *testing.T) {
	opts := vidstab.NewOptions()
	opts.Motion.Detector = features.SIFT
	opts.Path.Model = pathopt.Affine
	opts.Render.Mode = render.CropOnly

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, opts))
	assert.Contains(t, buf.String(), "detector: sift")
	assert.NotContains(t, buf.String(), "timeprovider")

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, opts, back)
}

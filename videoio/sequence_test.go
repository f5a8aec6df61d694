package videoio

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, v uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestOpenSequence_ReadsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_002.png"), 40, 30, 20)
	writePNG(t, filepath.Join(dir, "frame_000.png"), 40, 30, 0)
	writePNG(t, filepath.Join(dir, "frame_001.png"), 40, 30, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	src, err := OpenSequence(dir, 25)
	require.NoError(t, err)
	defer src.Close()

	info := src.Info()
	assert.Equal(t, 3, info.FrameCount)
	assert.Equal(t, 25.0, info.FPS)
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 30, info.Height)
	assert.Equal(t, SequenceCodec, info.Codec)

	for _, want := range []uint8{0, 10, 20} {
		img, err := src.Next()
		require.NoError(t, err)
		r, _, _, _ := img.At(5, 5).RGBA()
		assert.Equal(t, uint32(want)*0x101, r)
	}
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenSequence_Errors(t *testing.T) {
	_, err := OpenSequence(filepath.Join(t.TempDir(), "missing"), 30)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = OpenSequence(t.TempDir(), 30)
	assert.ErrorIs(t, err, ErrEmptySequence)
}

func TestSequenceSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := CreateSequence(dir, "stab_")
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	require.NoError(t, sink.WriteFrame(img))
	require.NoError(t, sink.WriteFrame(img))
	assert.Equal(t, 2, sink.Count())

	err = sink.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, ErrFrameSize)

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.WriteFrame(img), ErrSinkClosed)

	_, err = os.Stat(filepath.Join(dir, "stab_000001.png"))
	assert.NoError(t, err)

	src, err := OpenSequence(dir, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Info().FrameCount)
}

package videoio

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF frames
	_ "image/jpeg" // register JPEG frames
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"  // register BMP frames
	_ "golang.org/x/image/tiff" // register TIFF frames
	_ "golang.org/x/image/webp" // register WebP frames
)

// SequenceCodec is the codec identifier reported by image sequences.
const SequenceCodec = "PNG "

var sequenceExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// SequenceSource reads a directory of still images, one frame per file,
// in lexical file name order.
type SequenceSource struct {
	dir   string
	files []string
	next  int
	info  Info
}

// OpenSequence lists dir and decodes the first frame to learn the frame
// size. fps is recorded as the sequence's frame rate.
func OpenSequence(dir string, fps float64) (*SequenceSource, error) {
	logrus.WithFields(logrus.Fields{
		"function": "OpenSequence",
		"dir":      dir,
		"fps":      fps,
	}).Info("Opening image sequence")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !sequenceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySequence, dir)
	}
	sort.Strings(files)

	first, err := decodeFile(files[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	b := first.Bounds()

	s := &SequenceSource{
		dir:   dir,
		files: files,
		info: Info{
			Name:       filepath.Base(filepath.Clean(dir)),
			FrameCount: len(files),
			FPS:        fps,
			Codec:      SequenceCodec,
			Width:      b.Dx(),
			Height:     b.Dy(),
		},
	}

	logrus.WithFields(logrus.Fields{
		"function": "OpenSequence",
		"frames":   len(files),
		"width":    b.Dx(),
		"height":   b.Dy(),
	}).Info("Image sequence opened")

	return s, nil
}

// Info returns the sequence description.
func (s *SequenceSource) Info() Info {
	return s.info
}

// Next decodes the next file. Files that fail to decode end the sequence
// with the decode error.
func (s *SequenceSource) Next() (image.Image, error) {
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++
	img, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Close is a no-op; files are opened per frame.
func (s *SequenceSource) Close() error {
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// SequenceSink writes each frame as a zero-padded PNG file.
type SequenceSink struct {
	dir    string
	prefix string
	count  int
	size   image.Point
	closed bool
}

// CreateSequence creates dir if needed and returns a sink writing
// <prefix><index>.png files into it.
func CreateSequence(dir, prefix string) (*SequenceSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sequence directory: %w", err)
	}
	return &SequenceSink{dir: dir, prefix: prefix}, nil
}

// WriteFrame encodes img as the next PNG in the sequence.
func (s *SequenceSink) WriteFrame(img image.Image) error {
	if s.closed {
		return ErrSinkClosed
	}
	size := img.Bounds().Size()
	if s.count == 0 {
		s.size = size
	} else if size != s.size {
		return fmt.Errorf("%w: %v, want %v", ErrFrameSize, size, s.size)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s%06d.png", s.prefix, s.count))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SequenceSink.WriteFrame",
		"path":     path,
	}).Debug("Frame written")

	s.count++
	return nil
}

// Count returns the number of frames written so far.
func (s *SequenceSink) Count() int {
	return s.count
}

// Close marks the sink closed.
func (s *SequenceSink) Close() error {
	s.closed = true
	return nil
}

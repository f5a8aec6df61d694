package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/videoio"
)

// Load drains src into a new Video. A source delivering fewer frames than
// it reported is accepted with a warning. The source is not closed.
func Load(ctx context.Context, src videoio.Source) (*Video, error) {
	info := src.Info()
	logger := logrus.WithFields(logrus.Fields{
		"function": "video.Load",
		"name":     info.Name,
		"reported": info.FrameCount,
	})
	logger.Info("Loading frames")

	images := make([]image.Image, 0, max(info.FrameCount, 0))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", len(images), err)
		}
		images = append(images, img)
	}

	if len(images) == 0 {
		return nil, ErrNoFrames
	}
	if info.FrameCount > 0 && len(images) < info.FrameCount {
		logger.WithFields(logrus.Fields{
			"decoded": len(images),
		}).Warn("Source delivered fewer frames than reported")
	}

	v, err := New(Metadata{Name: info.Name, FPS: info.FPS, Codec: info.Codec}, images)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"decoded": len(images),
	}).Info("Frames loaded")
	return v, nil
}

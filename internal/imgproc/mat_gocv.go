//go:build gocv

package imgproc

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Mat copies the plane into a single-channel 8-bit OpenCV matrix. The
// caller owns the result and must Close it.
func (p *Plane) Mat() (gocv.Mat, error) {
	m, err := gocv.NewMatFromBytes(p.Height, p.Width, gocv.MatTypeCV8U, p.Bytes())
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("plane to mat: %w", err)
	}
	return m, nil
}

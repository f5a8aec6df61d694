package video

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/internal/imgproc"
)

// Displacement is one tracked feature: its position in the previous frame
// (Source) and in this frame (Destination).
type Displacement struct {
	Source      geometry.Point
	Destination geometry.Point
}

// Vector returns the motion from Source to Destination.
func (d Displacement) Vector() geometry.Point {
	return geometry.Pt(d.Destination.X-d.Source.X, d.Destination.Y-d.Source.Y)
}

// Frame owns one decoded image and the analysis results attached to it.
//
// Every field is guarded by a per-frame lock. Writers hold it only for the
// duration of a single field update; readers either use the getters, which
// return copies, or take a Snapshot for a consistent view of all fields.
type Frame struct {
	mu sync.RWMutex

	index int
	image *image.RGBA
	luma  *imgproc.Plane

	features      []geometry.Point
	displacements []Displacement
	outliers      []bool

	affine geometry.Affine
	update geometry.Affine

	degenerate       bool
	degenerateReason string

	salient *geometry.Rect
}

// NewFrame copies img into a frame owned buffer.
func NewFrame(index int, img image.Image) *Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Frame{
		index:  index,
		image:  rgba,
		affine: geometry.Identity(),
		update: geometry.Identity(),
	}
}

// Index returns the frame's position in its video.
func (f *Frame) Index() int {
	return f.index
}

// Image returns the decoded pixels. The buffer is never written after
// construction and must be treated as read-only.
func (f *Frame) Image() *image.RGBA {
	return f.image
}

// Size returns the frame dimensions.
func (f *Frame) Size() (width, height int) {
	b := f.image.Bounds()
	return b.Dx(), b.Dy()
}

// Luminance returns the cached luminance plane, computing it on first use.
// The plane is shared and must not be modified.
func (f *Frame) Luminance() *imgproc.Plane {
	f.mu.RLock()
	luma := f.luma
	f.mu.RUnlock()
	if luma != nil {
		return luma
	}

	luma = imgproc.FromImage(f.image)
	f.mu.Lock()
	if f.luma == nil {
		f.luma = luma
	}
	luma = f.luma
	f.mu.Unlock()
	return luma
}

// SetFeatures replaces the detected feature points.
func (f *Frame) SetFeatures(features []geometry.Point) {
	cp := append([]geometry.Point(nil), features...)
	f.mu.Lock()
	f.features = cp
	f.mu.Unlock()
}

// Features returns a copy of the detected feature points.
func (f *Frame) Features() []geometry.Point {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]geometry.Point(nil), f.features...)
}

// SetDisplacements replaces the tracked displacements and resets the
// outlier mask to all inliers.
func (f *Frame) SetDisplacements(ds []Displacement) {
	cp := append([]Displacement(nil), ds...)
	mask := make([]bool, len(cp))
	f.mu.Lock()
	f.displacements = cp
	f.outliers = mask
	f.mu.Unlock()
}

// Displacements returns a copy of the tracked displacements.
func (f *Frame) Displacements() []Displacement {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Displacement(nil), f.displacements...)
}

// DisplacementsInCell returns the displacements whose source lies in the
// gridSize × gridSize cell with top-left corner (x, y).
func (f *Frame) DisplacementsInCell(x, y, gridSize int) []Displacement {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []Displacement
	for _, d := range f.displacements {
		if d.Source.X >= float64(x) && d.Source.X < float64(x+gridSize) &&
			d.Source.Y >= float64(y) && d.Source.Y < float64(y+gridSize) {
			out = append(out, d)
		}
	}
	return out
}

// SetOutlierMask records the outlier classification, one entry per
// displacement (true = outlier). Displacements themselves are kept.
func (f *Frame) SetOutlierMask(mask []bool) error {
	cp := append([]bool(nil), mask...)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(cp) != len(f.displacements) {
		return fmt.Errorf("%w: frame %d has %d displacements, mask has %d",
			ErrMaskLength, f.index, len(f.displacements), len(cp))
	}
	f.outliers = cp
	return nil
}

// OutlierMask returns a copy of the outlier mask.
func (f *Frame) OutlierMask() []bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]bool(nil), f.outliers...)
}

// Inliers returns the source and destination points of every displacement
// not flagged as an outlier.
func (f *Frame) Inliers() (src, dst []geometry.Point) {
	return f.partition(false)
}

// Outliers returns the source and destination points of every displacement
// flagged as an outlier.
func (f *Frame) Outliers() (src, dst []geometry.Point) {
	return f.partition(true)
}

func (f *Frame) partition(outlier bool) (src, dst []geometry.Point) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, d := range f.displacements {
		if f.outliers[i] == outlier {
			src = append(src, d.Source)
			dst = append(dst, d.Destination)
		}
	}
	return src, dst
}

// SetAffineTransform stores the transform mapping this frame's coordinates
// into the previous frame's and clears any degenerate flag.
func (f *Frame) SetAffineTransform(a geometry.Affine) {
	f.mu.Lock()
	f.affine = a
	f.degenerate = false
	f.degenerateReason = ""
	f.mu.Unlock()
}

// MarkDegenerate falls back to the identity transform and records why.
func (f *Frame) MarkDegenerate(reason string) {
	f.mu.Lock()
	f.affine = geometry.Identity()
	f.degenerate = true
	f.degenerateReason = reason
	f.mu.Unlock()
}

// AffineTransform returns the transform to the previous frame.
func (f *Frame) AffineTransform() geometry.Affine {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.affine
}

// Degenerate reports whether the motion fit fell back to identity.
func (f *Frame) Degenerate() (bool, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degenerate, f.degenerateReason
}

// SetUpdateTransform stores where the crop window sits in this frame.
func (f *Frame) SetUpdateTransform(a geometry.Affine) {
	f.mu.Lock()
	f.update = a
	f.mu.Unlock()
}

// UpdateTransform returns where the crop window sits in this frame.
func (f *Frame) UpdateTransform() geometry.Affine {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.update
}

// SetSalientRegion designates the region the crop window should follow.
// A nil region clears it.
func (f *Frame) SetSalientRegion(r *geometry.Rect) {
	var cp *geometry.Rect
	if r != nil {
		v := *r
		cp = &v
	}
	f.mu.Lock()
	f.salient = cp
	f.mu.Unlock()
}

// SalientRegion returns the designated region, if any.
func (f *Frame) SalientRegion() (geometry.Rect, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.salient == nil {
		return geometry.Rect{}, false
	}
	return *f.salient, true
}

// FrameSnapshot is an immutable copy of a frame's state taken under a
// single lock acquisition.
type FrameSnapshot struct {
	Index            int
	Image            *image.RGBA
	Features         []geometry.Point
	Displacements    []Displacement
	Outliers         []bool
	Affine           geometry.Affine
	Update           geometry.Affine
	Degenerate       bool
	DegenerateReason string
	Salient          *geometry.Rect
}

// Snapshot returns a consistent copy of every field. The image buffer is
// shared since it is immutable.
func (f *Frame) Snapshot() FrameSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := FrameSnapshot{
		Index:            f.index,
		Image:            f.image,
		Features:         append([]geometry.Point(nil), f.features...),
		Displacements:    append([]Displacement(nil), f.displacements...),
		Outliers:         append([]bool(nil), f.outliers...),
		Affine:           f.affine,
		Update:           f.update,
		Degenerate:       f.degenerate,
		DegenerateReason: f.degenerateReason,
	}
	if f.salient != nil {
		r := *f.salient
		s.Salient = &r
	}
	return s
}

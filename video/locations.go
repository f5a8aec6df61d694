package video

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab/geometry"
)

// Locations maps a frame index to manually placed points on that frame.
type Locations map[int][]geometry.Point

// FrameIndices returns the keys in ascending order.
func (l Locations) FrameIndices() []int {
	keys := make([]int, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// ReadLocations parses "frameIndex,x,y" lines. Blank lines and lines
// starting with '#' are skipped.
func ReadLocations(r io.Reader) (Locations, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	locs := Locations{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLocation, pe.Line, pe.Err)
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		var vals [3]int
		for i, field := range rec {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %q is not an integer", ErrMalformedLocation, line, field)
			}
			vals[i] = n
		}
		if vals[0] < 0 {
			return nil, fmt.Errorf("%w: line %d: negative frame index", ErrMalformedLocation, line)
		}
		locs[vals[0]] = append(locs[vals[0]], geometry.Pt(float64(vals[1]), float64(vals[2])))
	}
	return locs, nil
}

// WriteLocations writes l in ascending frame order, points rounded to the
// nearest pixel.
func WriteLocations(w io.Writer, l Locations) error {
	cw := csv.NewWriter(w)
	for _, idx := range l.FrameIndices() {
		for _, p := range l[idx] {
			rec := []string{
				strconv.Itoa(idx),
				strconv.Itoa(int(math.Round(p.X))),
				strconv.Itoa(int(math.Round(p.Y))),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// framesFor resolves every index in l before anything is written, so an
// out-of-range index leaves the video untouched.
func (v *Video) framesFor(l Locations) ([]int, []*Frame, error) {
	indices := l.FrameIndices()
	frames := make([]*Frame, len(indices))
	for i, idx := range indices {
		f, err := v.Frame(idx)
		if err != nil {
			return nil, nil, err
		}
		frames[i] = f
	}
	return indices, frames, nil
}

// ImportFeatures overwrites the feature set of every frame named in l. An
// index outside the video fails with ErrFrameIndex and changes nothing.
func (v *Video) ImportFeatures(l Locations) error {
	indices, frames, err := v.framesFor(l)
	if err != nil {
		return err
	}
	for i, f := range frames {
		f.SetFeatures(l[indices[i]])
	}
	logrus.WithFields(logrus.Fields{
		"function": "Video.ImportFeatures",
		"frames":   len(l),
	}).Info("Imported feature locations")
	return nil
}

// ExportFeatures collects the feature set of every frame that has one.
func (v *Video) ExportFeatures() Locations {
	l := Locations{}
	for i, f := range v.frames {
		if pts := f.Features(); len(pts) > 0 {
			l[i] = pts
		}
	}
	return l
}

// WriteFeatures writes ExportFeatures in location-file format.
func (v *Video) WriteFeatures(w io.Writer) error {
	return WriteLocations(w, v.ExportFeatures())
}

// SetSalientFromLocations sets, for every frame named in l, the salient
// region to the bounding box of that frame's points. Frames not named keep
// their current region. An index outside the video fails with
// ErrFrameIndex and changes nothing.
func (v *Video) SetSalientFromLocations(l Locations) error {
	indices, frames, err := v.framesFor(l)
	if err != nil {
		return err
	}
	for i, f := range frames {
		r, ok := geometry.BoundingRect(l[indices[i]])
		if !ok {
			continue
		}
		f.SetSalientRegion(&r)
	}
	return nil
}

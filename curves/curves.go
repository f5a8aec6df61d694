// Package curves exports the motion of a video as named series: the
// estimated inter-frame motion, the crop window poses and the accumulated
// camera path, so they can be plotted or compared between runs.
package curves

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/vidstab/geometry"
	"github.com/opd-ai/vidstab/video"
)

// Collection names.
const (
	OriginalGlobalMotion = "originalGlobalMotion"
	NewGlobalMotion      = "newGlobalMotion"
	GlobalPathName       = "globalPath"
	StabilizedPathName   = "stabilizedPath"
	LocationPathName     = "locationPath"
)

// ErrMalformed indicates a document that does not decode.
var ErrMalformed = errors.New("malformed curves document")

// Entry is one frame's 2×3 matrix.
type Entry struct {
	Frame  int           `yaml:"frame"`
	Matrix [2][3]float64 `yaml:"matrix,flow"`
}

// Collection is a named series of matrices.
type Collection struct {
	Name    string  `yaml:"name"`
	Entries []Entry `yaml:"entries"`
}

// PathPoint is one frame's position on a path.
type PathPoint struct {
	Frame int     `yaml:"frame"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
}

// Path is a named point series.
type Path struct {
	Name   string      `yaml:"name"`
	Points []PathPoint `yaml:"points"`
}

// Document is the exported file.
type Document struct {
	Video       string       `yaml:"video"`
	Digest      string       `yaml:"digest,omitempty"`
	Frames      int          `yaml:"frames"`
	Collections []Collection `yaml:"collections"`
	Paths       []Path       `yaml:"paths,omitempty"`
}

// Collection returns the collection called name.
func (d Document) Collection(name string) (Collection, bool) {
	for _, c := range d.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// Path returns the path called name.
func (d Document) Path(name string) (Path, bool) {
	for _, p := range d.Paths {
		if p.Name == name {
			return p, true
		}
	}
	return Path{}, false
}

func entry(frame int, a geometry.Affine) Entry {
	return Entry{Frame: frame, Matrix: [2][3]float64{{a.A, a.B, a.Tx}, {a.C, a.D, a.Ty}}}
}

// Affine returns the entry as a transform.
func (e Entry) Affine() geometry.Affine {
	m := e.Matrix
	return geometry.Affine{A: m[0][0], B: m[0][1], Tx: m[0][2], C: m[1][0], D: m[1][1], Ty: m[1][2]}
}

func seriesCollection(name string, ts []geometry.Affine) Collection {
	c := Collection{Name: name}
	for t := 1; t < len(ts); t++ {
		c.Entries = append(c.Entries, entry(t, ts[t]))
	}
	return c
}

// OriginalMotion collects the estimated motion of frames 1..N−1.
func OriginalMotion(v *video.Video) Collection {
	return seriesCollection(OriginalGlobalMotion, v.AffineTransforms())
}

// NewMotion collects the crop window poses of frames 1..N−1.
func NewMotion(v *video.Video) Collection {
	return seriesCollection(NewGlobalMotion, v.UpdateTransforms())
}

// GlobalPath accumulates the inter-frame motion into the position of each
// frame's origin in frame 0 coordinates, moved so frame 0 sits at the
// origin.
func GlobalPath(affines []geometry.Affine) map[int]geometry.Point {
	path := make(map[int]geometry.Point, len(affines))
	acc := geometry.Identity()
	for t, a := range affines {
		if t > 0 {
			acc = geometry.Compose(acc, a)
		}
		path[t] = acc.Translation()
	}
	return geometry.MoveToOrigin(path)
}

// StabilizedPath accumulates motion and crop poses into the position of
// the crop window origin in frame 0 coordinates.
func StabilizedPath(affines, updates []geometry.Affine) map[int]geometry.Point {
	path := make(map[int]geometry.Point, len(affines))
	acc := geometry.Identity()
	for t := range affines {
		if t > 0 {
			acc = geometry.Compose(acc, affines[t])
		}
		path[t] = geometry.Compose(acc, updates[t]).Translation()
	}
	return geometry.MoveToOrigin(path)
}

// LocationPath returns the centroid of each frame's manual locations,
// moved so the first located frame sits at the origin.
func LocationPath(l video.Locations) map[int]geometry.Point {
	path := make(map[int]geometry.Point, len(l))
	for frame, pts := range l {
		if len(pts) == 0 {
			continue
		}
		var c geometry.Point
		for _, p := range pts {
			c.X += p.X
			c.Y += p.Y
		}
		n := float64(len(pts))
		path[frame] = geometry.Pt(c.X/n, c.Y/n)
	}
	return geometry.MoveToOrigin(path)
}

// NamedPath orders a point series by frame.
func NamedPath(name string, series map[int]geometry.Point) Path {
	frames := make([]int, 0, len(series))
	for f := range series {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	p := Path{Name: name, Points: make([]PathPoint, len(frames))}
	for i, f := range frames {
		p.Points[i] = PathPoint{Frame: f, X: series[f].X, Y: series[f].Y}
	}
	return p
}

// Build assembles the standard document for v: both motion collections,
// the global and stabilized paths and the pixel digest.
func Build(v *video.Video) (Document, error) {
	digest, err := Digest(v)
	if err != nil {
		return Document{}, err
	}
	affines, updates := v.AffineTransforms(), v.UpdateTransforms()
	return Document{
		Video:       v.Name(),
		Digest:      digest,
		Frames:      v.Len(),
		Collections: []Collection{OriginalMotion(v), NewMotion(v)},
		Paths: []Path{
			NamedPath(GlobalPathName, GlobalPath(affines)),
			NamedPath(StabilizedPathName, StabilizedPath(affines, updates)),
		},
	}, nil
}

// Export writes doc as YAML.
func Export(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode curves: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode curves: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":    "curves.Export",
		"video":       doc.Video,
		"collections": len(doc.Collections),
		"paths":       len(doc.Paths),
	}).Debug("Curves exported")
	return nil
}

// Import reads a document written by Export.
func Import(r io.Reader) (Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return doc, nil
}

// Digest returns the hex BLAKE2b-256 of the frame sizes and pixels, so an
// exported document can be matched to its source.
func Digest(v *video.Video) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(v.Width()))
	binary.BigEndian.PutUint32(hdr[4:], uint32(v.Height()))
	h.Write(hdr[:])
	for _, f := range v.Frames() {
		img := f.Image()
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			h.Write(img.Pix[off : off+4*b.Dx()])
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package pathopt

import "fmt"

// VarKind classifies a column of the linear program.
type VarKind int

const (
	VarPose VarKind = iota
	VarD1
	VarD2
	VarD3
	VarSalient
)

func (k VarKind) String() string {
	switch k {
	case VarPose:
		return "pose"
	case VarD1:
		return "d1"
	case VarD2:
		return "d2"
	case VarD3:
		return "d3"
	case VarSalient:
		return "salient"
	}
	return fmt.Sprintf("VarKind(%d)", int(k))
}

// Var names one unknown. Component is the pose parameter for VarPose, the
// matrix entry (0..5 in row-major order) for the slack kinds, and
// 2·corner + axis for VarSalient.
type Var struct {
	Kind      VarKind
	Frame     int
	Component int
}

func (v Var) String() string {
	return fmt.Sprintf("%s[%d,%d]", v.Kind, v.Frame, v.Component)
}

// Index maps unknowns to columns. Columns are laid out in blocks: poses of
// the free frames, then D1, D2 and D3 slacks per residual index and active
// matrix entry, then salient slacks per frame with a region.
type Index struct {
	frames    int
	firstFree int
	params    int
	entries   []int
	salient   []int
	salientAt map[int]int

	derivBase [3]int
	salBase   int
	total     int
}

// salientSlacks is the number of salient slack columns per frame: one per
// crop corner and axis.
const salientSlacks = 8

// NewIndex lays out the columns for a video of n frames.
func NewIndex(n int, model Model, firstFree int, salientFrames []int) *Index {
	ix := &Index{
		frames:    n,
		firstFree: firstFree,
		params:    model.params(),
		entries:   activeEntries(model),
		salient:   append([]int(nil), salientFrames...),
		salientAt: make(map[int]int, len(salientFrames)),
	}
	col := (n - firstFree) * ix.params
	for o := 0; o < 3; o++ {
		ix.derivBase[o] = col
		col += max(n-1-o, 0) * len(ix.entries)
	}
	ix.salBase = col
	for i, t := range ix.salient {
		ix.salientAt[t] = i
	}
	ix.total = col + len(ix.salient)*salientSlacks
	return ix
}

// activeEntries lists the residual matrix entries that depend on the
// unknowns. Translation poses leave the linear entries constant.
func activeEntries(model Model) []int {
	if model == Translation {
		return []int{entryTx, entryTy}
	}
	return []int{entryA, entryB, entryTx, entryC, entryD, entryTy}
}

// Len returns the number of columns.
func (ix *Index) Len() int { return ix.total }

// Poses returns the number of pose columns. They come first.
func (ix *Index) Poses() int { return ix.derivBase[0] }

// Frames returns the number of frames.
func (ix *Index) Frames() int { return ix.frames }

// Free reports whether frame t has pose unknowns.
func (ix *Index) Free(t int) bool { return t >= ix.firstFree && t < ix.frames }

// Pose returns the column of parameter p of frame t, or −1 for a pinned
// frame.
func (ix *Index) Pose(t, p int) int {
	if !ix.Free(t) {
		return -1
	}
	return (t-ix.firstFree)*ix.params + p
}

// Residuals returns the number of residual indices of derivative order o
// (1..3).
func (ix *Index) Residuals(o int) int {
	return max(ix.frames-o, 0)
}

// Entries returns the active matrix entries.
func (ix *Index) Entries() []int { return ix.entries }

// Slack returns the column of the order o (1..3) slack for residual index t
// and the i-th active entry.
func (ix *Index) Slack(o, t, i int) int {
	return ix.derivBase[o-1] + t*len(ix.entries) + i
}

// SalientFrames returns the frames carrying salient slacks.
func (ix *Index) SalientFrames() []int { return ix.salient }

// Salient returns the column of the salient slack for frame t, crop corner
// j and axis (0 = x, 1 = y), or −1 when t has none.
func (ix *Index) Salient(t, j, axis int) int {
	i, ok := ix.salientAt[t]
	if !ok {
		return -1
	}
	return ix.salBase + i*salientSlacks + 2*j + axis
}

// Lookup is the inverse of the column functions.
func (ix *Index) Lookup(col int) (Var, bool) {
	switch {
	case col < 0 || col >= ix.total:
		return Var{}, false
	case col < ix.derivBase[0]:
		return Var{Kind: VarPose, Frame: ix.firstFree + col/ix.params, Component: col % ix.params}, true
	case col < ix.salBase:
		o := 2
		for o > 0 && col < ix.derivBase[o] {
			o--
		}
		rel := col - ix.derivBase[o]
		n := len(ix.entries)
		return Var{Kind: VarD1 + VarKind(o), Frame: rel / n, Component: ix.entries[rel%n]}, true
	default:
		rel := col - ix.salBase
		return Var{Kind: VarSalient, Frame: ix.salient[rel/salientSlacks], Component: rel % salientSlacks}, true
	}
}

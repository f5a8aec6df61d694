package pathopt

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/opd-ai/vidstab/geometry"
)

// Row-major positions of the 2×3 matrix entries.
const (
	entryA = iota
	entryB
	entryTx
	entryC
	entryD
	entryTy
)

func isLinearEntry(e int) bool {
	return e != entryTx && e != entryTy
}

// expr is an affine expression Σ coef·x[col] + c over program columns.
type expr struct {
	terms map[int]float64
	c     float64
}

func constant(c float64) expr {
	return expr{c: c}
}

func variable(col int, coef float64) expr {
	return expr{terms: map[int]float64{col: coef}}
}

// plus returns e + k·o.
func (e expr) plus(o expr, k float64) expr {
	out := expr{terms: make(map[int]float64, len(e.terms)+len(o.terms)), c: e.c + k*o.c}
	for col, v := range e.terms {
		out.terms[col] = v
	}
	for col, v := range o.terms {
		out.terms[col] += k * v
	}
	for col, v := range out.terms {
		if v == 0 {
			delete(out.terms, col)
		}
	}
	return out
}

func (e expr) scale(k float64) expr {
	return constant(0).plus(e, k)
}

// matrix is a 2×3 affine matrix whose entries are expressions.
type matrix [6]expr

func constantMatrix(a geometry.Affine) matrix {
	var m matrix
	for i, v := range a.Matrix() {
		m[i] = constant(v)
	}
	return m
}

// leftMul returns k·m for a known transform k.
func (m matrix) leftMul(k geometry.Affine) matrix {
	return matrix{
		constant(0).plus(m[entryA], k.A).plus(m[entryC], k.B),
		constant(0).plus(m[entryB], k.A).plus(m[entryD], k.B),
		constant(k.Tx).plus(m[entryTx], k.A).plus(m[entryTy], k.B),
		constant(0).plus(m[entryA], k.C).plus(m[entryC], k.D),
		constant(0).plus(m[entryB], k.C).plus(m[entryD], k.D),
		constant(k.Ty).plus(m[entryTx], k.C).plus(m[entryTy], k.D),
	}
}

// combine returns Σ k[i]·ms[i] entrywise.
func combine(ms []matrix, k []float64) matrix {
	var out matrix
	for e := range out {
		acc := constant(0)
		for i, m := range ms {
			acc = acc.plus(m[e], k[i])
		}
		out[e] = acc
	}
	return out
}

// apply returns the expressions of m·p.
func (m matrix) apply(p geometry.Point) (x, y expr) {
	x = m[entryTx].plus(m[entryA], p.X).plus(m[entryB], p.Y)
	y = m[entryTy].plus(m[entryC], p.X).plus(m[entryD], p.Y)
	return x, y
}

// row is the inequality Σ coefs[i]·x[cols[i]] ≤ rhs.
type row struct {
	cols  []int
	coefs []float64
	rhs   float64
}

// program accumulates deduplicated inequality rows and a cost vector over
// the columns of an Index.
type program struct {
	index *Index
	rows  []row
	seen  map[string]int
	cost  []float64

	// violated records constant rows that can never hold.
	violated []string
}

func newProgram(ix *Index) *program {
	return &program{
		index: ix,
		seen:  make(map[string]int),
		cost:  make([]float64, ix.Len()),
	}
}

// le adds e ≤ rhs. Rows with identical terms keep the tightest bound.
// Rows without terms are checked immediately and recorded when violated.
func (p *program) le(e expr, rhs float64, what string) {
	rhs -= e.c
	if len(e.terms) == 0 {
		if rhs < -1e-9 {
			p.violated = append(p.violated, what)
		}
		return
	}
	cols := make([]int, 0, len(e.terms))
	for col := range e.terms {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	coefs := make([]float64, len(cols))
	var key strings.Builder
	for i, col := range cols {
		coefs[i] = e.terms[col]
		key.WriteString(strconv.Itoa(col))
		key.WriteByte(':')
		key.WriteString(strconv.FormatFloat(coefs[i], 'g', -1, 64))
		key.WriteByte(';')
	}
	if i, ok := p.seen[key.String()]; ok {
		p.rows[i].rhs = min(p.rows[i].rhs, rhs)
		return
	}
	p.seen[key.String()] = len(p.rows)
	p.rows = append(p.rows, row{cols: cols, coefs: coefs, rhs: rhs})
}

// ge adds e ≥ lhs.
func (p *program) ge(e expr, lhs float64, what string) {
	p.le(e.scale(-1), -lhs, what)
}

// abs adds |e| ≤ s for a slack column s.
func (p *program) abs(e expr, slack int, what string) {
	p.le(e.plus(variable(slack, 1), -1), 0, what)
	p.le(e.scale(-1).plus(variable(slack, 1), -1), 0, what)
}

func (p *program) String() string {
	return fmt.Sprintf("%d rows × %d columns", len(p.rows), p.index.Len())
}

// startTol is how far a row may be violated at a starting point before it
// counts as violated. Smaller violations are rounding and are absorbed into
// the right-hand side.
const startTol = 1e-9

// start is a point of the program: values for the pose columns and the
// smallest slack values that satisfy every row at those poses. Rows that no
// slack column can satisfy are recorded with their violation.
type start struct {
	poses []float64
	slack map[int]float64
	// tight is the row that determines each positive slack value.
	tight map[int]int
	// short maps violated rows to the amount they are violated by.
	short map[int]float64
}

// startAt completes pose values x0 into a point of the program.
func (p *program) startAt(x0 []float64) *start {
	poses := p.index.Poses()
	st := &start{
		poses: x0,
		slack: make(map[int]float64),
		tight: make(map[int]int),
		short: make(map[int]float64),
	}
	for i, r := range p.rows {
		rhs := p.rowRHS(r, x0)
		if rhs >= -startTol {
			continue
		}
		col, coef := r.slackColumn(poses)
		if col < 0 || coef >= 0 {
			if rhs < -startTol {
				st.short[i] = -rhs
			}
			continue
		}
		if v := rhs / coef; v > st.slack[col] {
			st.slack[col] = v
			st.tight[col] = i
		}
	}
	return st
}

func (st *start) feasible() bool {
	return len(st.short) == 0
}

// violation returns the largest row violation.
func (st *start) violation() float64 {
	var v float64
	for _, s := range st.short {
		v = max(v, s)
	}
	return v
}

// objective returns the cost of the point.
func (st *start) objective(p *program) float64 {
	var f float64
	for col, v := range st.poses {
		f += p.cost[col] * v
	}
	for col, v := range st.slack {
		f += p.cost[col] * v
	}
	return f
}

// better reports whether st is a better starting point than o: feasible
// before infeasible, then by objective or by violation.
func (st *start) better(o *start, p *program) bool {
	switch {
	case o == nil:
		return true
	case st.feasible() != o.feasible():
		return st.feasible()
	case st.feasible():
		return st.objective(p) < o.objective(p)
	}
	return st.violation() < o.violation()
}

// rowRHS returns the right-hand side of r once the pose columns are fixed
// at x0.
func (p *program) rowRHS(r row, x0 []float64) float64 {
	poses := p.index.Poses()
	rhs := r.rhs
	for k, col := range r.cols {
		if col < poses {
			rhs -= r.coefs[k] * x0[col]
		}
	}
	return rhs
}

// slackColumn returns the only non-pose column of r and its coefficient,
// or −1 when r has none or several.
func (r row) slackColumn(poses int) (int, float64) {
	col, coef := -1, 0.0
	for k, c := range r.cols {
		if c < poses {
			continue
		}
		if col >= 0 {
			return -1, 0
		}
		col, coef = c, r.coefs[k]
	}
	return col, coef
}

// standardForm is the program as min cᵀy subject to Ay = b, y ≥ 0, written
// around a starting point. Pose columns are free and split as
// x = x0 + y⁺ − y⁻; y⁺ keeps the pose column's position and the y⁻ columns
// follow all program columns. The remaining program columns are
// non-negative slacks and keep their value. Every row then gets its own
// slack column. When the starting point violates rows, one artificial
// column with a large cost absorbs the violation; a solution that still
// uses it proves the program infeasible.
type standardForm struct {
	A     *mat.Dense
	b     []float64
	c     []float64
	basis []int

	x0         []float64
	vars       int
	poses      int
	artificial int
}

// bigM scales the cost of the artificial column above every program cost.
const bigM = 1e4

// lift is the largest amount a row is relaxed by so that no basic variable
// of the starting basis is zero. Rows get distinct lifts.
const lift = 1e-10

func (p *program) standardForm(st *start) *standardForm {
	ix := p.index
	vars, poses, rows := ix.Len(), ix.Poses(), len(p.rows)
	cols := vars + poses + rows
	artificial := -1
	if !st.feasible() {
		artificial = cols
		cols++
	}
	sf := &standardForm{
		A:          mat.NewDense(rows, cols, nil),
		b:          make([]float64, rows),
		c:          make([]float64, cols),
		x0:         st.poses,
		vars:       vars,
		poses:      poses,
		artificial: artificial,
	}
	copy(sf.c, p.cost)
	maxCost := 1.0
	for col, c := range p.cost {
		maxCost = max(maxCost, math.Abs(c))
		if col < poses {
			sf.c[vars+col] = -c
		}
	}
	for i, r := range p.rows {
		for k, col := range r.cols {
			sf.A.Set(i, col, r.coefs[k])
			if col < poses {
				sf.A.Set(i, vars+col, -r.coefs[k])
			}
		}
		sf.A.Set(i, vars+poses+i, 1)
		sf.b[i] = p.rowRHS(r, st.poses)
	}
	if artificial >= 0 {
		sf.c[artificial] = bigM * maxCost
		for i := range st.short {
			sf.A.Set(i, artificial, -1)
		}
	}
	sf.basis = sf.startingBasis(p, st)
	return sf
}

// startingBasis makes every positive slack of st basic in its tight row,
// the artificial column basic in the most violated row and every other
// row's own slack column basic. Rounding below startTol is absorbed into b
// so that the basis is exactly feasible, and rows whose own slack is basic
// are lifted so that the start is not degenerate.
func (sf *standardForm) startingBasis(p *program, st *start) []int {
	basis := make([]int, len(p.rows))
	for i := range basis {
		basis[i] = sf.vars + sf.poses + i
	}
	for col, i := range st.tight {
		basis[i] = col
	}
	art := st.violation()
	if sf.artificial >= 0 {
		worst := -1
		for i, v := range st.short {
			if worst < 0 || v > st.short[worst] || (v == st.short[worst] && i < worst) {
				worst = i
			}
		}
		basis[worst] = sf.artificial
	}
	for i, r := range p.rows {
		if basis[i] != sf.vars+sf.poses+i {
			continue
		}
		rest := sf.b[i]
		for k, col := range r.cols {
			rest -= r.coefs[k] * st.slack[col]
		}
		if _, ok := st.short[i]; ok {
			rest += art
		}
		if rest < 0 {
			sf.b[i] -= rest
		}
		sf.b[i] += lift * float64(len(p.rows)+i) / float64(2*len(p.rows))
	}
	return basis
}

// infeasible reports whether a solution still relies on the artificial
// column.
func (sf *standardForm) infeasible(y []float64) bool {
	return sf.artificial >= 0 && y[sf.artificial] > 1e-7
}

// point maps a standard form solution back to program columns.
func (sf *standardForm) point(y []float64) []float64 {
	x := make([]float64, sf.vars)
	copy(x, y[:sf.vars])
	for col := 0; col < sf.poses; col++ {
		x[col] = sf.x0[col] + y[col] - y[sf.vars+col]
	}
	for i, v := range x {
		if math.Abs(v) < 1e-12 {
			x[i] = 0
		}
	}
	return x
}

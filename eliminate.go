package gtsam

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

const (
	// pivotTol is the magnitude below which a pivot is treated as
	// structurally zero.
	pivotTol = 1e-12
	// constraintTol bounds the residual a redundant constraint row may leave
	// on the right-hand side before it is reported as inconsistent.
	constraintTol = 1e-9
)

// Eliminate factors the first nFrontals variables out of the factor,
// returning their conditional and the factor that remains over the separator.
// The remaining factor may be empty when all rows are absorbed.
//
// Unconstrained models go through a dense QR on the whitened augmented
// matrix; constrained models go through a pivoted row reduction that keeps
// exact-constraint rows unscaled and emits zero-sigma conditional rows.
func (f *JacobianFactor) Eliminate(nFrontals int) (*GaussianConditional, *JacobianFactor, error) {
	if nFrontals < 1 || nFrontals > len(f.keys) {
		panic(fmt.Sprintf("gtsam: cannot eliminate %d of %d variables", nFrontals, len(f.keys)))
	}
	if f.model != nil && f.model.IsConstrained() {
		return f.eliminateConstrained(nFrontals)
	}
	m := f.Rows()
	nvc := f.Ab.Offset(len(f.keys))
	fd := f.Ab.Offset(nFrontals)
	if m < fd {
		return nil, nil, fmt.Errorf("eliminating %v: %d rows for %d frontal columns: %w",
			f.keys[:nFrontals], m, fd, ErrIndeterminantSystem)
	}
	for i := 0; i < nFrontals; i++ {
		if IsNil(f.A(i)) {
			return nil, nil, fmt.Errorf("eliminating %v: variable %d has an all-zero block: %w",
				f.keys[:nFrontals], f.keys[i], ErrIndeterminantSystem)
		}
	}

	wh := f.AugmentedJacobian(true)
	raw := wh.RawMatrix()
	tau := make([]float64, min(m, nvc+1))
	work := make([]float64, 1)
	lapack64.Geqrf(raw, tau, work, -1)
	work = make([]float64, int(work[0]))
	lapack64.Geqrf(raw, tau, work, len(work))

	// Keep the triangular rows over the variable columns; a row supported
	// only by the RHS column is pure residual and is dropped.
	r := min(m, nvc)
	for i := 0; i < r; i++ {
		if wh.At(i, i) < 0 {
			for j := i; j <= nvc; j++ {
				wh.Set(i, j, -wh.At(i, j))
			}
		}
	}
	for j := 0; j < fd; j++ {
		if math.Abs(wh.At(j, j)) < pivotTol {
			return nil, nil, fmt.Errorf("eliminating %v: zero pivot in column %d: %w",
				f.keys[:nFrontals], j, ErrIndeterminantSystem)
		}
	}

	widths := make([]int, len(f.dims)+1)
	copy(widths, f.dims)
	widths[len(f.dims)] = 1
	rsd := NewVerticalBlockMatrix(widths, fd)
	full := rsd.Full()
	for i := 0; i < fd; i++ {
		for j := i; j <= nvc; j++ {
			full.Set(i, j, wh.At(i, j))
		}
	}
	sigmas := make([]float64, fd)
	for i := range sigmas {
		sigmas[i] = 1
	}
	cond, err := NewGaussianConditional(f.keys, nFrontals, rsd, sigmas)
	if err != nil {
		return nil, nil, err
	}

	if r <= fd {
		return cond, &JacobianFactor{}, nil
	}
	sepKeys := f.keys[nFrontals:]
	sepWidths := make([]int, len(sepKeys)+1)
	copy(sepWidths, f.dims[nFrontals:])
	sepWidths[len(sepKeys)] = 1
	remAb := NewVerticalBlockMatrix(sepWidths, r-fd)
	remFull := remAb.Full()
	for i := fd; i < r; i++ {
		for j := i; j <= nvc; j++ {
			remFull.Set(i-fd, j-fd, wh.At(i, j))
		}
	}
	return cond, newJacobianFromBlocks(sepKeys, remAb, nil), nil
}

// eliminateConstrained reduces a factor whose model carries exact-constraint
// rows. Constraint rows are preferred as pivots and reduced Gaussian-style
// with the pivot normalized to one; remaining columns fall back to a
// Householder step over the whitened stochastic rows. All-zero leftover
// constraint rows are dropped when their RHS is (near) zero and reported as
// ErrInconsistentConstraint otherwise.
func (f *JacobianFactor) eliminateConstrained(nFrontals int) (*GaussianConditional, *JacobianFactor, error) {
	m := f.Rows()
	nvc := f.Ab.Offset(len(f.keys))
	fd := f.Ab.Offset(nFrontals)

	a := make([][]float64, m)
	sig := make([]float64, m)
	modelSigmas := f.model.Sigmas()
	for i := 0; i < m; i++ {
		row := make([]float64, nvc+1)
		for j := 0; j <= nvc; j++ {
			row[j] = f.Ab.Full().At(i, j)
		}
		if s := modelSigmas[i]; s != 0 {
			for j := range row {
				row[j] /= s
			}
			sig[i] = 1
		}
		a[i] = row
	}

	active := make([]bool, m)
	for i := range active {
		active[i] = true
	}
	pivots := make([]int, 0, fd)
	pivotSig := make([]float64, 0, fd)

	for col := 0; col < fd; col++ {
		pivot := -1
		for i := 0; i < m; i++ {
			if active[i] && sig[i] == 0 && math.Abs(a[i][col]) > pivotTol {
				pivot = i
				break
			}
		}
		if pivot >= 0 {
			p := a[pivot]
			s := p[col]
			for j := col; j <= nvc; j++ {
				p[j] /= s
			}
			for i := 0; i < m; i++ {
				if i == pivot || !active[i] {
					continue
				}
				if c := a[i][col]; c != 0 {
					for j := col; j <= nvc; j++ {
						a[i][j] -= c * p[j]
					}
					a[i][col] = 0
				}
			}
			active[pivot] = false
			pivots = append(pivots, pivot)
			pivotSig = append(pivotSig, 0)
			continue
		}

		var rs []int
		norm := 0.0
		for i := 0; i < m; i++ {
			if active[i] && sig[i] != 0 {
				rs = append(rs, i)
				norm += a[i][col] * a[i][col]
			}
		}
		if math.Sqrt(norm) <= pivotTol {
			return nil, nil, fmt.Errorf("eliminating %v: zero pivot in column %d: %w",
				f.keys[:nFrontals], col, ErrIndeterminantSystem)
		}
		householderColumn(a, rs, col, nvc)
		p := rs[0]
		if a[p][col] < 0 {
			for j := col; j <= nvc; j++ {
				a[p][j] = -a[p][j]
			}
		}
		for _, i := range rs[1:] {
			a[i][col] = 0
		}
		active[p] = false
		pivots = append(pivots, p)
		pivotSig = append(pivotSig, 1)
	}

	widths := make([]int, len(f.dims)+1)
	copy(widths, f.dims)
	widths[len(f.dims)] = 1
	rsd := NewVerticalBlockMatrix(widths, fd)
	full := rsd.Full()
	for r, i := range pivots {
		for j := r; j <= nvc; j++ {
			full.Set(r, j, a[i][j])
		}
	}
	cond, err := NewGaussianConditional(f.keys, nFrontals, rsd, pivotSig)
	if err != nil {
		return nil, nil, err
	}

	var remRows []int
	var remSig []float64
	for i := 0; i < m; i++ {
		if !active[i] {
			continue
		}
		zero := true
		for j := fd; j < nvc; j++ {
			if math.Abs(a[i][j]) > pivotTol {
				zero = false
				break
			}
		}
		if zero {
			if sig[i] == 0 && math.Abs(a[i][nvc]) > constraintTol {
				return nil, nil, fmt.Errorf("eliminating %v: leftover constraint row with RHS %g: %w",
					f.keys[:nFrontals], a[i][nvc], ErrInconsistentConstraint)
			}
			continue
		}
		remRows = append(remRows, i)
		remSig = append(remSig, sig[i])
	}
	if len(remRows) == 0 {
		return cond, &JacobianFactor{}, nil
	}

	sepKeys := f.keys[nFrontals:]
	sepWidths := make([]int, len(sepKeys)+1)
	copy(sepWidths, f.dims[nFrontals:])
	sepWidths[len(sepKeys)] = 1
	remAb := NewVerticalBlockMatrix(sepWidths, len(remRows))
	remFull := remAb.Full()
	constrained := false
	allUnit := true
	for r, i := range remRows {
		for j := fd; j <= nvc; j++ {
			remFull.Set(r, j-fd, a[i][j])
		}
		if remSig[r] == 0 {
			constrained = true
		}
		if remSig[r] != 1 {
			allUnit = false
		}
	}
	var model NoiseModel
	if constrained || !allUnit {
		model = NewDiagonal(remSig)
	}
	return cond, newJacobianFromBlocks(sepKeys, remAb, model), nil
}

// householderColumn applies the Householder reflector that annihilates column
// col of the given rows below the first, to columns col..last.
func householderColumn(a [][]float64, rs []int, col, last int) {
	v := make([]float64, len(rs))
	norm := 0.0
	for i, r := range rs {
		v[i] = a[r][col]
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	alpha := -norm
	if v[0] < 0 {
		alpha = norm
	}
	v[0] -= alpha
	vv := 0.0
	for _, x := range v {
		vv += x * x
	}
	if vv == 0 {
		return
	}
	for j := col; j <= last; j++ {
		s := 0.0
		for i, r := range rs {
			s += v[i] * a[r][j]
		}
		s = 2 * s / vv
		for i, r := range rs {
			a[r][j] -= s * v[i]
		}
	}
}

// EliminateQR combines every factor of the graph and eliminates the given
// frontal variables in one multifrontal QR step. All factors must be in
// Jacobian form.
func EliminateQR(graph *GaussianFactorGraph, frontals []Key) (*GaussianConditional, *JacobianFactor, error) {
	jacs := make([]*JacobianFactor, 0, graph.Len())
	for i := 0; i < graph.Len(); i++ {
		jf, ok := graph.At(i).(*JacobianFactor)
		if !ok {
			return nil, nil, fmt.Errorf("gtsam: EliminateQR requires Jacobian factors, got %T", graph.At(i))
		}
		jacs = append(jacs, jf)
	}
	combined, err := CombineJacobians(jacs, frontals)
	if err != nil {
		return nil, nil, err
	}
	if combined.Empty() {
		return nil, nil, fmt.Errorf("eliminating %v: %w", frontals, ErrIndeterminantSystem)
	}
	return combined.Eliminate(len(frontals))
}

// EliminateCholesky sums every factor of the graph into one augmented
// information matrix and eliminates the given frontal variables on it.
// Constrained factors cannot take this path.
func EliminateCholesky(graph *GaussianFactorGraph, frontals []Key) (*GaussianConditional, *HessianFactor, error) {
	dims, err := graph.VariableDims()
	if err != nil {
		return nil, nil, err
	}
	keys := make([]Key, 0, len(dims))
	for _, k := range frontals {
		if _, ok := dims[k]; !ok {
			return nil, nil, fmt.Errorf("gtsam: ordered variable %d not present in any factor", k)
		}
		keys = append(keys, k)
	}
	var rest []Key
	for k := range dims {
		if !containsKey(keys, k) {
			rest = append(rest, k)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	keys = append(keys, rest...)

	offsets := make(map[Key]int, len(keys))
	total := 0
	allDims := make([]int, len(keys))
	for i, k := range keys {
		offsets[k] = total
		allDims[i] = dims[k]
		total += dims[k]
	}
	info := mat.NewSymDense(total+1, nil)
	for fi := 0; fi < graph.Len(); fi++ {
		h, err := asHessian(graph.At(fi))
		if err != nil {
			return nil, nil, err
		}
		scatterInformation(info, h, offsets, total)
	}
	combined := &HessianFactor{keys: keys, dims: allDims, info: info}
	return combined.Eliminate(len(frontals))
}

func asHessian(f GaussianFactor) (*HessianFactor, error) {
	switch t := f.(type) {
	case *HessianFactor:
		return t, nil
	case *JacobianFactor:
		return NewHessianFromJacobian(t)
	default:
		return nil, fmt.Errorf("gtsam: unknown factor type %T", f)
	}
}

// scatterInformation adds a factor's augmented information into the combined
// matrix at the factor's key offsets.
func scatterInformation(dst *mat.SymDense, h *HessianFactor, offsets map[Key]int, rhsOffset int) {
	n := h.Dim()
	idx := make([]int, n+1)
	off := 0
	for i, k := range h.keys {
		for j := 0; j < h.dims[i]; j++ {
			idx[off+j] = offsets[k] + j
		}
		off += h.dims[i]
	}
	idx[n] = rhsOffset
	for p := 0; p <= n; p++ {
		for q := p; q <= n; q++ {
			gp, gq := idx[p], idx[q]
			if gp > gq {
				gp, gq = gq, gp
			}
			dst.SetSym(gp, gq, dst.At(gp, gq)+h.info.At(p, q))
		}
	}
}

// eliminateBucket eliminates the given frontals from a set of factors that
// all touch them, picking QR or Cholesky from the factor representations.
func eliminateBucket(bucket []GaussianFactor, frontals []Key) (*GaussianConditional, GaussianFactor, error) {
	allJacobian := true
	anyConstrained := false
	for _, f := range bucket {
		jf, ok := f.(*JacobianFactor)
		if !ok {
			allJacobian = false
			continue
		}
		if jf.Model() != nil && jf.Model().IsConstrained() {
			anyConstrained = true
		}
	}
	sub := &GaussianFactorGraph{factors: bucket}
	if allJacobian {
		cond, rem, err := EliminateQR(sub, frontals)
		if err != nil {
			return nil, nil, err
		}
		if rem == nil || rem.Empty() {
			return cond, nil, nil
		}
		return cond, rem, nil
	}
	if anyConstrained {
		return nil, nil, fmt.Errorf("eliminating %v with mixed Hessian and constrained factors: %w",
			frontals, ErrConstrainedCholesky)
	}
	cond, rem, err := EliminateCholesky(sub, frontals)
	if err != nil {
		return nil, nil, err
	}
	if rem == nil || len(rem.Keys()) == 0 {
		return cond, nil, nil
	}
	return cond, rem, nil
}

// EliminateSequential eliminates the variables of ordering one at a time,
// returning the resulting Bayes net and the factors left over the
// un-eliminated variables. The ordering may be a prefix of the full variable
// set for partial elimination; the ordering itself is never second-guessed.
func EliminateSequential(graph *GaussianFactorGraph, ordering []Key) (GaussianBayesNet, *GaussianFactorGraph, error) {
	remaining := append([]GaussianFactor(nil), graph.factors...)
	var bn GaussianBayesNet
	for _, v := range ordering {
		var bucket, rest []GaussianFactor
		for _, f := range remaining {
			if containsKey(f.Keys(), v) {
				bucket = append(bucket, f)
			} else {
				rest = append(rest, f)
			}
		}
		if len(bucket) == 0 {
			return nil, nil, fmt.Errorf("eliminating variable %d: no factor involves it: %w", v, ErrIndeterminantSystem)
		}
		cond, rem, err := eliminateBucket(bucket, []Key{v})
		if err != nil {
			return nil, nil, err
		}
		bn = append(bn, cond)
		if rem != nil {
			rest = append(rest, rem)
		}
		remaining = rest
	}
	return bn, &GaussianFactorGraph{factors: remaining}, nil
}

// EliminateMultifrontal eliminates contiguous groups of the ordering as joint
// frontals, producing one multifrontal conditional per group. Mathematically
// equivalent to the sequential sweep; used to build Bayes-tree cliques with
// several frontals at once.
func EliminateMultifrontal(graph *GaussianFactorGraph, groups [][]Key) (GaussianBayesNet, *GaussianFactorGraph, error) {
	remaining := append([]GaussianFactor(nil), graph.factors...)
	var bn GaussianBayesNet
	for _, group := range groups {
		var bucket, rest []GaussianFactor
		for _, f := range remaining {
			touches := false
			for _, v := range group {
				if containsKey(f.Keys(), v) {
					touches = true
					break
				}
			}
			if touches {
				bucket = append(bucket, f)
			} else {
				rest = append(rest, f)
			}
		}
		if len(bucket) == 0 {
			return nil, nil, fmt.Errorf("eliminating group %v: no factor involves it: %w", group, ErrIndeterminantSystem)
		}
		cond, rem, err := eliminateBucket(bucket, group)
		if err != nil {
			return nil, nil, err
		}
		bn = append(bn, cond)
		if rem != nil {
			rest = append(rest, rem)
		}
		remaining = rest
	}
	return bn, &GaussianFactorGraph{factors: remaining}, nil
}

// SummarizeSequential eliminates every variable not in saved and returns the
// left-over factors: a compact joint over the saved variables.
func SummarizeSequential(graph *GaussianFactorGraph, saved []Key) (*GaussianFactorGraph, error) {
	var ordering []Key
	for _, k := range graph.Keys() {
		if !containsKey(saved, k) {
			ordering = append(ordering, k)
		}
	}
	_, rest, err := EliminateSequential(graph, ordering)
	return rest, err
}

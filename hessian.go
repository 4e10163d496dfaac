package gtsam

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// HessianFactor is a Gaussian factor in quadratic form: an augmented
// information matrix H over [x; -1] such that the factor error is
// 0.5·[x;-1]ᵀ·H·[x;-1]. It carries the same information as a squared
// JacobianFactor; the reverse conversion needs a matrix square root and is
// not provided.
type HessianFactor struct {
	keys []Key
	dims []int
	info *mat.SymDense
}

// NewHessianFactor creates a factor from an augmented information matrix of
// dimension sum(dims)+1 over the given keys.
func NewHessianFactor(keys []Key, dims []int, info *mat.SymDense) (*HessianFactor, error) {
	if len(keys) != len(dims) {
		return nil, fmt.Errorf("gtsam: %d keys but %d dims", len(keys), len(dims))
	}
	total := 1
	seen := make(map[Key]bool, len(keys))
	for i, k := range keys {
		if seen[k] {
			return nil, fmt.Errorf("gtsam: duplicate variable %d in factor", k)
		}
		seen[k] = true
		total += dims[i]
	}
	if info.SymmetricDim() != total {
		return nil, fmt.Errorf("gtsam: information matrix dim %d does not match augmented dim %d", info.SymmetricDim(), total)
	}
	return &HessianFactor{keys: append([]Key(nil), keys...), dims: append([]int(nil), dims...), info: info}, nil
}

// NewHessianFromJacobian squares a Jacobian factor into quadratic form. The
// conversion requires a proper (unconstrained) noise model.
func NewHessianFromJacobian(f *JacobianFactor) (*HessianFactor, error) {
	if f.Model() != nil && f.Model().IsConstrained() {
		return nil, ErrConstrainedCholesky
	}
	return &HessianFactor{keys: f.Keys(), dims: f.Dims(), info: f.AugmentedInformation()}, nil
}

// Keys implements the GaussianFactor interface.
func (h *HessianFactor) Keys() []Key { return h.keys }

// Dims implements the GaussianFactor interface.
func (h *HessianFactor) Dims() []int { return h.dims }

// Dim returns the total variable dimension, excluding the augmented column.
func (h *HessianFactor) Dim() int { return h.info.SymmetricDim() - 1 }

// Error implements the GaussianFactor interface: 0.5·[x;-1]ᵀ·H·[x;-1].
// Missing values are treated as zero.
func (h *HessianFactor) Error(x VectorValues) float64 {
	n := h.Dim()
	xaug := mat.NewVecDense(n+1, nil)
	off := 0
	for i, k := range h.keys {
		if xi, ok := x[k]; ok {
			for j := 0; j < h.dims[i]; j++ {
				xaug.SetVec(off+j, xi.AtVec(j))
			}
		}
		off += h.dims[i]
	}
	xaug.SetVec(n, -1)
	return 0.5 * mat.Inner(xaug, h.info, xaug)
}

// Information returns a copy of the variable block of the information matrix.
func (h *HessianFactor) Information() *mat.SymDense {
	n := h.Dim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(h.info.SliceSym(0, n).(*mat.SymDense))
	return out
}

// AugmentedInformation implements the GaussianFactor interface.
func (h *HessianFactor) AugmentedInformation() *mat.SymDense {
	out := mat.NewSymDense(h.info.SymmetricDim(), nil)
	out.CopySym(h.info)
	return out
}

func (h *HessianFactor) gradientAdd(x, out VectorValues) {
	// ∇E = G·x − g where G is the variable block and g the linear column.
	n := h.Dim()
	xfull := mat.NewVecDense(n, nil)
	off := 0
	for i, k := range h.keys {
		if xi, ok := x[k]; ok {
			for j := 0; j < h.dims[i]; j++ {
				xfull.SetVec(off+j, xi.AtVec(j))
			}
		}
		off += h.dims[i]
	}
	var gx mat.VecDense
	gx.MulVec(h.info.SliceSym(0, n), xfull)
	off = 0
	for i, k := range h.keys {
		acc := out.vecFor(k, h.dims[i])
		for j := 0; j < h.dims[i]; j++ {
			acc.SetVec(j, acc.AtVec(j)+gx.AtVec(off+j)-h.info.At(off+j, n))
		}
		off += h.dims[i]
	}
}

// Eliminate factors the first nFrontals variables out via Cholesky on the
// information matrix, returning their conditional and the Schur complement
// over the separator. Returns ErrIndeterminantSystem when the frontal block
// is not positive definite.
func (h *HessianFactor) Eliminate(nFrontals int) (*GaussianConditional, *HessianFactor, error) {
	if nFrontals < 1 || nFrontals > len(h.keys) {
		panic(fmt.Sprintf("gtsam: cannot eliminate %d of %d variables", nFrontals, len(h.keys)))
	}
	fd := 0
	for i := 0; i < nFrontals; i++ {
		fd += h.dims[i]
	}
	n := h.Dim()

	var chol mat.Cholesky
	if ok := chol.Factorize(h.info.SliceSym(0, fd).(*mat.SymDense)); !ok {
		return nil, nil, fmt.Errorf("eliminating frontals %v: %w", h.keys[:nFrontals], ErrIndeterminantSystem)
	}
	var R mat.TriDense
	chol.UTo(&R)

	// M = R⁻ᵀ · H[frontal, separator+rhs]; conditional rows are [R | M].
	full := mat.DenseCopyOf(h.info)
	B := full.Slice(0, fd, fd, n+1).(*mat.Dense)
	var M mat.Dense
	if err := M.Solve(R.T(), B); err != nil {
		return nil, nil, fmt.Errorf("eliminating frontals %v: %w", h.keys[:nFrontals], ErrIndeterminantSystem)
	}

	widths := make([]int, len(h.dims)+1)
	copy(widths, h.dims)
	widths[len(h.dims)] = 1
	rsd := NewVerticalBlockMatrix(widths, fd)
	rsd.Range(0, nFrontals).Copy(&R)
	rsd.Range(nFrontals, len(widths)).Copy(&M)
	sigmas := make([]float64, fd)
	for i := range sigmas {
		sigmas[i] = 1
	}
	cond, err := NewGaussianConditional(h.keys, nFrontals, rsd, sigmas)
	if err != nil {
		return nil, nil, err
	}

	if nFrontals == len(h.keys) {
		return cond, nil, nil
	}

	// Schur complement over the separator plus the augmented column.
	rest := mat.DenseCopyOf(full.Slice(fd, n+1, fd, n+1))
	var MtM mat.Dense
	MtM.Mul(M.T(), &M)
	rest.Sub(rest, &MtM)
	remaining := &HessianFactor{
		keys: h.keys[nFrontals:],
		dims: h.dims[nFrontals:],
		info: symFromUpper(rest),
	}
	return cond, remaining, nil
}

// String implements the Stringer interface.
func (h *HessianFactor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HessianFactor on %v\n", h.keys)
	fmt.Fprintf(&b, "H=%v", mat.Formatted(h.info, mat.Prefix("  ")))
	return b.String()
}

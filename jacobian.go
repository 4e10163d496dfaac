package gtsam

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// GaussianFactor is the capability set shared by the two linear factor
// representations, JacobianFactor and HessianFactor. Code that needs the
// concrete representation dispatches with a type switch; the set is closed.
type GaussianFactor interface {
	Keys() []Key
	Dims() []int
	Error(x VectorValues) float64
	AugmentedInformation() *mat.SymDense

	gradientAdd(x, out VectorValues)
}

// Term pairs a variable key with its coefficient block.
type Term struct {
	Key Key
	A   *mat.Dense
}

// JacobianFactor is a Gaussian factor in measurement form: a row block
// [A_1 | A_2 | ... | A_k | b] with one coefficient block per variable, a
// right-hand side, and an optional noise model. A nil model means the rows
// are already whitened.
type JacobianFactor struct {
	keys  []Key
	dims  []int
	Ab    *VerticalBlockMatrix
	model NoiseModel
}

// NewJacobianFactor creates a factor from per-variable coefficient blocks, a
// right-hand side and an optional noise model.
func NewJacobianFactor(terms []Term, b *mat.VecDense, model NoiseModel) (*JacobianFactor, error) {
	rows := b.Len()
	keys := make([]Key, len(terms))
	dims := make([]int, len(terms))
	seen := make(map[Key]bool, len(terms))
	widths := make([]int, 0, len(terms)+1)
	for i, t := range terms {
		if seen[t.Key] {
			return nil, fmt.Errorf("gtsam: duplicate variable %d in factor", t.Key)
		}
		seen[t.Key] = true
		if err := checkMatDims(t.A, b, fmt.Sprintf("A%d", t.Key), "b", rows2rows); err != nil {
			return nil, err
		}
		_, c := t.A.Dims()
		keys[i] = t.Key
		dims[i] = c
		widths = append(widths, c)
	}
	if model != nil && model.Dim() != rows {
		return nil, fmt.Errorf("gtsam: noise model dim %d does not match %d rows", model.Dim(), rows)
	}
	widths = append(widths, 1)
	Ab := NewVerticalBlockMatrix(widths, rows)
	for i, t := range terms {
		Ab.SetBlock(i, t.A)
	}
	Ab.RHS().CopyVec(b)
	return &JacobianFactor{keys: keys, dims: dims, Ab: Ab, model: model}, nil
}

// newJacobianFromBlocks wraps an already assembled block matrix. The matrix
// must have one block per key plus the trailing RHS column.
func newJacobianFromBlocks(keys []Key, Ab *VerticalBlockMatrix, model NoiseModel) *JacobianFactor {
	dims := make([]int, len(keys))
	for i := range keys {
		dims[i] = Ab.Width(i)
	}
	return &JacobianFactor{keys: keys, dims: dims, Ab: Ab, model: model}
}

// Keys implements the GaussianFactor interface.
func (f *JacobianFactor) Keys() []Key { return f.keys }

// Dims implements the GaussianFactor interface.
func (f *JacobianFactor) Dims() []int { return f.dims }

// Rows returns the measurement row count.
func (f *JacobianFactor) Rows() int {
	if f.Ab == nil {
		return 0
	}
	return f.Ab.Rows()
}

// Empty reports whether the factor carries no rows.
func (f *JacobianFactor) Empty() bool { return f.Rows() == 0 || len(f.keys) == 0 }

// A returns a view of the coefficient block for the i-th key.
func (f *JacobianFactor) A(i int) *mat.Dense { return f.Ab.Block(i) }

// B returns a view of the right-hand side column.
func (f *JacobianFactor) B() *mat.VecDense { return f.Ab.RHS() }

// Model returns the noise model, nil when already whitened.
func (f *JacobianFactor) Model() NoiseModel { return f.model }

// UnweightedErrorVec returns A·x − b without whitening. Missing values are
// treated as zero.
func (f *JacobianFactor) UnweightedErrorVec(x VectorValues) *mat.VecDense {
	e := mat.NewVecDense(f.Rows(), nil)
	for i, k := range f.keys {
		if xi, ok := x[k]; ok {
			var t mat.VecDense
			t.MulVec(f.A(i), xi)
			e.AddVec(e, &t)
		}
	}
	e.SubVec(e, f.B())
	return e
}

// ErrorVec returns the whitened residual.
func (f *JacobianFactor) ErrorVec(x VectorValues) *mat.VecDense {
	e := f.UnweightedErrorVec(x)
	if f.model != nil {
		f.model.Whiten(e)
	}
	return e
}

// Error implements the GaussianFactor interface: 0.5·‖whiten(A·x − b)‖².
func (f *JacobianFactor) Error(x VectorValues) float64 {
	if f.Empty() {
		return 0
	}
	e := f.ErrorVec(x)
	return 0.5 * mat.Dot(e, e)
}

// Multiply returns A·x over the whitened coefficients. Missing values are
// treated as zero.
func (f *JacobianFactor) Multiply(x VectorValues) *mat.VecDense {
	e := mat.NewVecDense(f.Rows(), nil)
	for i, k := range f.keys {
		if xi, ok := x[k]; ok {
			var t mat.VecDense
			t.MulVec(f.whitenedA(i), xi)
			e.AddVec(e, &t)
		}
	}
	return e
}

// TransposeMultiplyAdd accumulates alpha·Aᵀ·e into out per variable, over the
// whitened coefficients.
func (f *JacobianFactor) TransposeMultiplyAdd(alpha float64, e *mat.VecDense, out VectorValues) {
	for i, k := range f.keys {
		var t mat.VecDense
		t.MulVec(f.whitenedA(i).T(), e)
		acc := out.vecFor(k, f.dims[i])
		acc.AddScaledVec(acc, alpha, &t)
	}
}

func (f *JacobianFactor) whitenedA(i int) *mat.Dense {
	a := mat.DenseCopyOf(f.A(i))
	if f.model != nil {
		f.model.WhitenMat(a)
	}
	return a
}

// Jacobian returns copies of the stacked coefficient matrix and right-hand
// side, whitened on request.
func (f *JacobianFactor) Jacobian(whiten bool) (*mat.Dense, *mat.VecDense) {
	aug := f.AugmentedJacobian(whiten)
	r, c := aug.Dims()
	A := mat.DenseCopyOf(aug.Slice(0, r, 0, c-1))
	b := mat.VecDenseCopyOf(aug.ColView(c - 1))
	return A, b
}

// AugmentedJacobian returns a copy of the stacked [A | b] matrix, whitened on
// request.
func (f *JacobianFactor) AugmentedJacobian(whiten bool) *mat.Dense {
	aug := mat.DenseCopyOf(f.Ab.Full())
	if whiten && f.model != nil {
		f.model.WhitenMat(aug)
	}
	return aug
}

// Information returns the whitened AᵀA over the variable columns.
func (f *JacobianFactor) Information() *mat.SymDense {
	A, _ := f.Jacobian(true)
	var info mat.Dense
	info.Mul(A.T(), A)
	return symFromUpper(&info)
}

// AugmentedInformation implements the GaussianFactor interface: the whitened
// AbᵀAb over variable columns plus the RHS column.
func (f *JacobianFactor) AugmentedInformation() *mat.SymDense {
	aug := f.AugmentedJacobian(true)
	var info mat.Dense
	info.Mul(aug.T(), aug)
	return symFromUpper(&info)
}

func (f *JacobianFactor) gradientAdd(x, out VectorValues) {
	e := f.ErrorVec(x)
	if f.model != nil {
		f.model.Whiten(e)
	}
	// e is now Σ⁻¹(Ax−b); accumulate Aᵀe.
	for i, k := range f.keys {
		var t mat.VecDense
		t.MulVec(f.A(i).T(), e)
		acc := out.vecFor(k, f.dims[i])
		acc.AddVec(acc, &t)
	}
}

// String implements the Stringer interface.
func (f *JacobianFactor) String() string {
	if f.Empty() {
		return "JacobianFactor{empty}"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "JacobianFactor on %v\n", f.keys)
	fmt.Fprintf(&b, "Ab=%v\n", mat.Formatted(f.Ab.Full(), mat.Prefix("   ")))
	if f.model != nil {
		fmt.Fprintf(&b, "model=%s", f.model)
	}
	return b.String()
}

// CombineJacobians stacks several Jacobian factors into one. The output key
// order starts with the given order (typically the frontals about to be
// eliminated) followed by the remaining keys ascending; blocks a factor does
// not reference are zero. The combined model concatenates per-row sigmas and
// is nil when every input is already whitened.
func CombineJacobians(factors []*JacobianFactor, order []Key) (*JacobianFactor, error) {
	dims := make(map[Key]int)
	rows := 0
	anyModel := false
	for _, f := range factors {
		if f.Empty() {
			continue
		}
		rows += f.Rows()
		if f.model != nil {
			anyModel = true
		}
		for i, k := range f.keys {
			if d, ok := dims[k]; ok && d != f.dims[i] {
				return nil, fmt.Errorf("gtsam: variable %d has conflicting dimensions %d and %d", k, d, f.dims[i])
			}
			dims[k] = f.dims[i]
		}
	}
	if rows == 0 {
		return &JacobianFactor{}, nil
	}

	keys := make([]Key, 0, len(dims))
	for _, k := range order {
		if _, ok := dims[k]; !ok {
			return nil, fmt.Errorf("gtsam: ordered variable %d not present in any factor", k)
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

	widths := make([]int, len(keys)+1)
	slot := make(map[Key]int, len(keys))
	for i, k := range keys {
		widths[i] = dims[k]
		slot[k] = i
	}
	widths[len(keys)] = 1

	Ab := NewVerticalBlockMatrix(widths, rows)
	sigmas := make([]float64, rows)
	row := 0
	for _, f := range factors {
		if f.Empty() {
			continue
		}
		m := f.Rows()
		for i, k := range f.keys {
			dst := Ab.Block(slot[k]).Slice(row, row+m, 0, dims[k]).(*mat.Dense)
			dst.Copy(f.A(i))
		}
		dstB := Ab.RHS()
		for i := 0; i < m; i++ {
			dstB.SetVec(row+i, f.B().AtVec(i))
		}
		if f.model != nil {
			copy(sigmas[row:row+m], f.model.Sigmas())
		} else {
			for i := 0; i < m; i++ {
				sigmas[row+i] = 1
			}
		}
		row += m
	}

	var model NoiseModel
	if anyModel {
		model = NewDiagonal(sigmas)
	}
	return newJacobianFromBlocks(keys, Ab, model), nil
}

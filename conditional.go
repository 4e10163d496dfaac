package gtsam

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// GaussianConditional is one fragment of a Bayes net: the distribution of its
// frontal variables given its parents, stored as the block row
// [R | S_1 ... S_p | d] with R upper-triangular over the frontal columns.
// It represents R·x_frontals = d − Σ S_i·x_parent_i with per-row scale sigmas
// (zero sigma marks an exact constraint row).
type GaussianConditional struct {
	keys      []Key
	dims      []int
	nFrontals int
	rsd       *VerticalBlockMatrix
	sigmas    []float64
}

// NewGaussianConditional creates a conditional over keys, the first nFrontals
// of which are frontal. rsd holds one block per key plus the trailing RHS
// column; its row count must equal the total frontal dimension and its
// leading block range must be upper-triangular.
func NewGaussianConditional(keys []Key, nFrontals int, rsd *VerticalBlockMatrix, sigmas []float64) (*GaussianConditional, error) {
	if nFrontals < 1 || nFrontals > len(keys) {
		return nil, fmt.Errorf("gtsam: %d frontals out of range for %d keys", nFrontals, len(keys))
	}
	if rsd.NumBlocks() != len(keys)+1 {
		return nil, fmt.Errorf("gtsam: %d blocks for %d keys plus RHS", rsd.NumBlocks(), len(keys))
	}
	fd := rsd.Offset(nFrontals)
	if rsd.Rows() != fd {
		return nil, fmt.Errorf("gtsam: %d rows but %d frontal columns", rsd.Rows(), fd)
	}
	if len(sigmas) != fd {
		return nil, fmt.Errorf("gtsam: %d sigmas for %d frontal rows", len(sigmas), fd)
	}
	R := rsd.Range(0, nFrontals)
	for i := 1; i < fd; i++ {
		for j := 0; j < i; j++ {
			if R.At(i, j) != 0 {
				return nil, fmt.Errorf("gtsam: R is not upper-triangular at (%d,%d)", i, j)
			}
		}
	}
	dims := make([]int, len(keys))
	for i := range keys {
		dims[i] = rsd.Width(i)
	}
	return &GaussianConditional{
		keys:      append([]Key(nil), keys...),
		dims:      dims,
		nFrontals: nFrontals,
		rsd:       rsd,
		sigmas:    sigmas,
	}, nil
}

// Keys returns all variable keys, frontals first.
func (c *GaussianConditional) Keys() []Key { return c.keys }

// Frontals returns the frontal keys in elimination order.
func (c *GaussianConditional) Frontals() []Key { return c.keys[:c.nFrontals] }

// Parents returns the separator keys.
func (c *GaussianConditional) Parents() []Key { return c.keys[c.nFrontals:] }

// NumFrontals returns the number of frontal variables.
func (c *GaussianConditional) NumFrontals() int { return c.nFrontals }

// Dim returns the total scalar frontal dimension.
func (c *GaussianConditional) Dim() int { return c.rsd.Rows() }

// DimOf returns the dimension of the i-th key.
func (c *GaussianConditional) DimOf(i int) int { return c.dims[i] }

// R returns a view of the upper-triangular frontal block.
func (c *GaussianConditional) R() *mat.Dense { return c.rsd.Range(0, c.nFrontals) }

// S returns a view of the coefficient block for the i-th parent.
func (c *GaussianConditional) S(i int) *mat.Dense { return c.rsd.Block(c.nFrontals + i) }

// D returns a view of the right-hand side.
func (c *GaussianConditional) D() *mat.VecDense { return c.rsd.RHS() }

// Sigmas returns the per-row scales.
func (c *GaussianConditional) Sigmas() []float64 { return c.sigmas }

// SolveInPlace computes the frontal values by back-substitution against
// already solved parent values and stores them into x.
func (c *GaussianConditional) SolveInPlace(x VectorValues) error {
	return c.solveWithRHS(x, mat.VecDenseCopyOf(c.D()))
}

// solveWithRHS back-substitutes R·x_f = rhs − Σ S_i·x_parent_i using the
// provided right-hand side instead of d.
func (c *GaussianConditional) solveWithRHS(x VectorValues, rhs *mat.VecDense) error {
	for i, p := range c.Parents() {
		xp, ok := x[p]
		if !ok {
			return fmt.Errorf("solving conditional on %v: parent %d: %w", c.Frontals(), p, ErrUnknownVariable)
		}
		var t mat.VecDense
		t.MulVec(c.S(i), xp)
		rhs.SubVec(rhs, &t)
	}
	c.triSolve(blas.NoTrans, rhs)
	off := 0
	for i := 0; i < c.nFrontals; i++ {
		d := c.dims[i]
		xf := mat.NewVecDense(d, nil)
		for j := 0; j < d; j++ {
			xf.SetVec(j, rhs.AtVec(off+j))
		}
		x[c.keys[i]] = xf
		off += d
	}
	return nil
}

// SolveTransposeInPlace performs one block column of the transposed solve
// Rᵀ·y = g: it replaces the frontal entries of g with y and pushes the
// parent contributions Sᵀ·y down into g.
func (c *GaussianConditional) SolveTransposeInPlace(g VectorValues) error {
	fd := c.Dim()
	front := mat.NewVecDense(fd, nil)
	off := 0
	for i := 0; i < c.nFrontals; i++ {
		gf, ok := g[c.keys[i]]
		if !ok {
			gf = mat.NewVecDense(c.dims[i], nil)
		}
		for j := 0; j < c.dims[i]; j++ {
			front.SetVec(off+j, gf.AtVec(j))
		}
		off += c.dims[i]
	}
	c.triSolve(blas.Trans, front)
	off = 0
	for i := 0; i < c.nFrontals; i++ {
		d := c.dims[i]
		gf := mat.NewVecDense(d, nil)
		for j := 0; j < d; j++ {
			gf.SetVec(j, front.AtVec(off+j))
		}
		g[c.keys[i]] = gf
		off += d
	}
	for i, p := range c.Parents() {
		var t mat.VecDense
		t.MulVec(c.S(i).T(), front)
		gp := g.vecFor(p, c.dims[c.nFrontals+i])
		gp.SubVec(gp, &t)
	}
	return nil
}

// triSolve solves R·v = v or Rᵀ·v = v in place against the frontal block.
func (c *GaussianConditional) triSolve(trans blas.Transpose, v *mat.VecDense) {
	raw := c.R().RawMatrix()
	tri := blas64.Triangular{
		Uplo:   blas.Upper,
		Diag:   blas.NonUnit,
		N:      raw.Rows,
		Data:   raw.Data,
		Stride: raw.Stride,
	}
	blas64.Trsv(trans, tri, v.RawVector())
}

// LogDeterminant returns the sum of the logs of the absolute R diagonal,
// the log-determinant contribution of this conditional.
func (c *GaussianConditional) LogDeterminant() float64 {
	R := c.R()
	logDet := 0.0
	for i := 0; i < c.Dim(); i++ {
		logDet += math.Log(math.Abs(R.At(i, i)))
	}
	return logDet
}

// ToFactor converts the conditional back into a Jacobian factor over the same
// variables, used when a region of a Bayes tree is dissolved for
// re-elimination.
func (c *GaussianConditional) ToFactor() *JacobianFactor {
	widths := make([]int, len(c.dims)+1)
	copy(widths, c.dims)
	widths[len(c.dims)] = 1
	Ab := NewVerticalBlockMatrix(widths, c.rsd.Rows())
	Ab.Full().Copy(c.rsd.Full())
	var model NoiseModel
	for _, s := range c.sigmas {
		if s != 1 {
			model = NewDiagonal(c.sigmas)
			break
		}
	}
	return newJacobianFromBlocks(c.keys, Ab, model)
}

// String implements the Stringer interface.
func (c *GaussianConditional) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "p(%v | %v)\n", c.Frontals(), c.Parents())
	fmt.Fprintf(&b, "Rsd=%v\n", mat.Formatted(c.rsd.Full(), mat.Prefix("    ")))
	fmt.Fprintf(&b, "sigmas=%v", c.sigmas)
	return b.String()
}

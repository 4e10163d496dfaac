package gtsam

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// GaussianBayesNet is an ordered list of Gaussian conditionals produced by
// sequential elimination. The list is stored in elimination order, so
// back-substitution walks it back to front.
type GaussianBayesNet []*GaussianConditional

// Keys returns the frontal variables of the net in elimination order.
func (bn GaussianBayesNet) Keys() []Key {
	var keys []Key
	for _, c := range bn {
		keys = append(keys, c.Frontals()...)
	}
	return keys
}

// Optimize back-substitutes the net and returns the exact least-squares
// solution. Every parent of every conditional must be a frontal of a
// conditional eliminated later, otherwise ErrUnknownVariable is returned.
func (bn GaussianBayesNet) Optimize() (VectorValues, error) {
	x := VectorValues{}
	for i := len(bn) - 1; i >= 0; i-- {
		if err := bn[i].SolveInPlace(x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// OptimizeInPlace back-substitutes the net into x. Values already present
// in x for variables outside the net act as fixed parent values.
func (bn GaussianBayesNet) OptimizeInPlace(x VectorValues) error {
	for i := len(bn) - 1; i >= 0; i-- {
		if err := bn[i].SolveInPlace(x); err != nil {
			return err
		}
	}
	return nil
}

// ToGraph converts the net back into a factor graph of its conditionals.
func (bn GaussianBayesNet) ToGraph() *GaussianFactorGraph {
	g := NewGaussianFactorGraph()
	for _, c := range bn {
		g.Add(c.ToFactor())
	}
	return g
}

// BackSubstitute solves R·x = rhs where rhs replaces the stored right-hand
// sides d of the conditionals.
func (bn GaussianBayesNet) BackSubstitute(rhs VectorValues) (VectorValues, error) {
	x := VectorValues{}
	for i := len(bn) - 1; i >= 0; i-- {
		c := bn[i]
		r := mat.NewVecDense(c.Dim(), nil)
		off := 0
		for j, k := range c.Frontals() {
			v, ok := rhs[k]
			if !ok {
				return nil, fmt.Errorf("back-substituting: no RHS for variable %d: %w", k, ErrUnknownVariable)
			}
			for l := 0; l < c.DimOf(j); l++ {
				r.SetVec(off+l, v.AtVec(l))
			}
			off += c.DimOf(j)
		}
		if err := c.solveWithRHS(x, r); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// BackSubstituteTranspose solves Rᵀ·y = g, walking the net front to back.
func (bn GaussianBayesNet) BackSubstituteTranspose(g VectorValues) (VectorValues, error) {
	y := g.Clone()
	for _, c := range bn {
		if err := c.SolveTransposeInPlace(y); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// GradientAtZero returns the gradient of the net's error function at the
// zero assignment, −Rᵀ·d per conditional.
func (bn GaussianBayesNet) GradientAtZero() VectorValues {
	out := VectorValues{}
	for _, c := range bn {
		c.ToFactor().gradientAdd(VectorValues{}, out)
	}
	return out
}

// OptimizeGradientSearch returns the minimizer of the error along the
// steepest-descent direction from zero, the Cauchy point used as the
// gradient leg of dog-leg style updates.
func (bn GaussianBayesNet) OptimizeGradientSearch() (VectorValues, error) {
	grad := bn.GradientAtZero()
	num := grad.Dot(grad)
	den := 0.0
	for _, c := range bn {
		rg := c.ToFactor().Multiply(grad)
		den += mat.Dot(rg, rg)
	}
	if den == 0 {
		return nil, fmt.Errorf("gradient search on a net with zero curvature: %w", ErrIndeterminantSystem)
	}
	x := grad.Clone()
	x.Scale(-num / den)
	return x, nil
}

// Matrix assembles the dense triangular system (R, d) of the net, with
// variable columns laid out in elimination order. The net must be
// self-contained: a parent that is not a frontal anywhere is an error.
func (bn GaussianBayesNet) Matrix() (*mat.Dense, *mat.VecDense, error) {
	offsets := make(map[Key]int)
	total := 0
	for _, c := range bn {
		for i, k := range c.Frontals() {
			if _, dup := offsets[k]; dup {
				return nil, nil, fmt.Errorf("gtsam: variable %d is frontal in two conditionals", k)
			}
			offsets[k] = total
			total += c.DimOf(i)
		}
	}
	R := mat.NewDense(total, total, nil)
	d := mat.NewVecDense(total, nil)
	for _, c := range bn {
		base, ok := offsets[c.Frontals()[0]]
		if !ok {
			continue
		}
		fd := c.Dim()
		for r := 0; r < fd; r++ {
			scale := 1.0
			if s := c.Sigmas()[r]; s != 0 {
				scale = 1 / s
			}
			cr := c.R()
			for j := 0; j < fd; j++ {
				R.Set(base+r, base+j, scale*cr.At(r, j))
			}
			for pi, p := range c.Parents() {
				po, ok := offsets[p]
				if !ok {
					return nil, nil, fmt.Errorf("assembling matrix: parent %d of %v is not frontal in the net: %w",
						p, c.Frontals(), ErrUnknownVariable)
				}
				sp := c.S(pi)
				_, w := sp.Dims()
				for j := 0; j < w; j++ {
					R.Set(base+r, po+j, scale*sp.At(r, j))
				}
			}
			d.SetVec(base+r, scale*c.D().AtVec(r))
		}
	}
	return R, d, nil
}

// LogDeterminant returns the log determinant of the information matrix
// square root R, the sum over the conditionals.
func (bn GaussianBayesNet) LogDeterminant() float64 {
	logDet := 0.0
	for _, c := range bn {
		logDet += c.LogDeterminant()
	}
	return logDet
}

// Determinant returns det(R). Prefer LogDeterminant on large nets.
func (bn GaussianBayesNet) Determinant() float64 {
	return math.Exp(bn.LogDeterminant())
}

func (bn GaussianBayesNet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GaussianBayesNet with %d conditionals:\n", len(bn))
	for _, c := range bn {
		b.WriteString(c.String())
	}
	return b.String()
}

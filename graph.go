package gtsam

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// GaussianFactorGraph is an insertion-ordered collection of linear factors,
// polymorphic over the Jacobian and Hessian representations.
type GaussianFactorGraph struct {
	factors []GaussianFactor
}

// NewGaussianFactorGraph returns an empty graph.
func NewGaussianFactorGraph() *GaussianFactorGraph {
	return &GaussianFactorGraph{}
}

// Add appends a factor.
func (g *GaussianFactorGraph) Add(f GaussianFactor) { g.factors = append(g.factors, f) }

// Len returns the number of factors.
func (g *GaussianFactorGraph) Len() int { return len(g.factors) }

// At returns the i-th factor.
func (g *GaussianFactorGraph) At(i int) GaussianFactor { return g.factors[i] }

// Keys returns every referenced variable key, ascending.
func (g *GaussianFactorGraph) Keys() []Key {
	seen := make(map[Key]bool)
	for _, f := range g.factors {
		for _, k := range f.Keys() {
			seen[k] = true
		}
	}
	keys := make([]Key, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// VariableDims returns the dimension of every referenced variable. Returns an
// error if two factors disagree on a variable's dimension.
func (g *GaussianFactorGraph) VariableDims() (map[Key]int, error) {
	dims := make(map[Key]int)
	for _, f := range g.factors {
		fdims := f.Dims()
		for i, k := range f.Keys() {
			if d, ok := dims[k]; ok && d != fdims[i] {
				return nil, fmt.Errorf("gtsam: variable %d has conflicting dimensions %d and %d", k, d, fdims[i])
			}
			dims[k] = fdims[i]
		}
	}
	return dims, nil
}

// Error returns the total factor error at x.
func (g *GaussianFactorGraph) Error(x VectorValues) float64 {
	total := 0.0
	for _, f := range g.factors {
		total += f.Error(x)
	}
	return total
}

// AugmentedJacobian stacks every Jacobian factor, whitened, into one dense
// [A | b] matrix with variable columns in ascending key order. Returns the
// column order alongside. Hessian factors cannot be stacked this way.
func (g *GaussianFactorGraph) AugmentedJacobian() (*mat.Dense, []Key, error) {
	dims, err := g.VariableDims()
	if err != nil {
		return nil, nil, err
	}
	keys := g.Keys()
	offsets := make(map[Key]int, len(keys))
	cols := 0
	for _, k := range keys {
		offsets[k] = cols
		cols += dims[k]
	}
	rows := 0
	for _, f := range g.factors {
		jf, ok := f.(*JacobianFactor)
		if !ok {
			return nil, nil, fmt.Errorf("gtsam: cannot stack a %T into a Jacobian", f)
		}
		rows += jf.Rows()
	}
	if rows == 0 {
		return nil, keys, nil
	}
	out := mat.NewDense(rows, cols+1, nil)
	row := 0
	for _, f := range g.factors {
		jf := f.(*JacobianFactor)
		if jf.Empty() {
			continue
		}
		aug := jf.AugmentedJacobian(true)
		m := jf.Rows()
		fdims := jf.Dims()
		off := 0
		for i, k := range jf.Keys() {
			dst := out.Slice(row, row+m, offsets[k], offsets[k]+fdims[i]).(*mat.Dense)
			dst.Copy(aug.Slice(0, m, off, off+fdims[i]))
			off += fdims[i]
		}
		dst := out.Slice(row, row+m, cols, cols+1).(*mat.Dense)
		dst.Copy(aug.Slice(0, m, off, off+1))
		row += m
	}
	return out, keys, nil
}

// Gradient returns the gradient of the total error at x0, accumulated per
// variable. Missing values in x0 are treated as zero.
func (g *GaussianFactorGraph) Gradient(x0 VectorValues) VectorValues {
	out := make(VectorValues)
	for _, f := range g.factors {
		f.gradientAdd(x0, out)
	}
	return out
}

// GradientAtZero returns the gradient of the total error at the origin.
func (g *GaussianFactorGraph) GradientAtZero() VectorValues {
	return g.Gradient(make(VectorValues))
}

// String implements the Stringer interface.
func (g *GaussianFactorGraph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GaussianFactorGraph with %d factors\n", len(g.factors))
	for _, f := range g.factors {
		fmt.Fprintf(&b, "%v\n", f)
	}
	return b.String()
}

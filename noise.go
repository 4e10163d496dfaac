package gtsam

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// NoiseModel supplies the whitening transform elimination needs: scaling a
// residual or coefficient matrix to unit covariance. A nil NoiseModel on a
// factor means the factor is already whitened.
type NoiseModel interface {
	// Dim returns the row dimension the model applies to.
	Dim() int
	// Sigmas returns the per-row standard deviations.
	Sigmas() []float64
	// IsConstrained reports whether any row is an exact constraint (sigma 0).
	IsConstrained() bool
	// Whiten scales a residual vector to unit covariance in place.
	// Constrained rows are left unscaled.
	Whiten(v *mat.VecDense)
	// WhitenMat scales the rows of a coefficient matrix in place.
	WhitenMat(a *mat.Dense)
	String() string
}

// Diagonal is a noise model with independent per-row standard deviations.
// A zero sigma marks that row as an exact constraint.
type Diagonal struct {
	sigmas      []float64
	constrained bool
}

// NewDiagonal creates a diagonal noise model from per-row sigmas.
func NewDiagonal(sigmas []float64) *Diagonal {
	constrained := false
	for _, s := range sigmas {
		if s < 0 {
			panic(fmt.Sprintf("gtsam: negative sigma %f", s))
		}
		if s == 0 {
			constrained = true
		}
	}
	c := make([]float64, len(sigmas))
	copy(c, sigmas)
	return &Diagonal{sigmas: c, constrained: constrained}
}

// NewIsotropic creates a diagonal model with a single sigma for all dim rows.
func NewIsotropic(dim int, sigma float64) *Diagonal {
	sigmas := make([]float64, dim)
	for i := range sigmas {
		sigmas[i] = sigma
	}
	return NewDiagonal(sigmas)
}

// NewUnit creates a unit-covariance model. Whitening with it is a no-op; a nil
// model on a factor means the same thing.
func NewUnit(dim int) *Diagonal { return NewIsotropic(dim, 1) }

// NewConstrainedAll creates a model in which every row is an exact constraint.
func NewConstrainedAll(dim int) *Diagonal { return NewIsotropic(dim, 0) }

// Dim implements the NoiseModel interface.
func (d *Diagonal) Dim() int { return len(d.sigmas) }

// Sigmas implements the NoiseModel interface.
func (d *Diagonal) Sigmas() []float64 { return d.sigmas }

// IsConstrained implements the NoiseModel interface.
func (d *Diagonal) IsConstrained() bool { return d.constrained }

// Whiten implements the NoiseModel interface.
func (d *Diagonal) Whiten(v *mat.VecDense) {
	if v.Len() != len(d.sigmas) {
		panic(fmt.Sprintf("gtsam: whitening a %d-vector with a %d-dim model", v.Len(), len(d.sigmas)))
	}
	for i, s := range d.sigmas {
		if s != 0 {
			v.SetVec(i, v.AtVec(i)/s)
		}
	}
}

// WhitenMat implements the NoiseModel interface.
func (d *Diagonal) WhitenMat(a *mat.Dense) {
	r, c := a.Dims()
	if r != len(d.sigmas) {
		panic(fmt.Sprintf("gtsam: whitening a %d-row matrix with a %d-dim model", r, len(d.sigmas)))
	}
	for i, s := range d.sigmas {
		if s == 0 {
			continue
		}
		for j := 0; j < c; j++ {
			a.Set(i, j, a.At(i, j)/s)
		}
	}
}

// Sample draws a noise vector distributed per the model, for simulating
// measurements. Constrained models have no density and cannot be sampled.
func (d *Diagonal) Sample(src rand.Source) (*mat.VecDense, error) {
	if d.constrained {
		return nil, errors.New("gtsam: cannot sample a constrained noise model")
	}
	n := len(d.sigmas)
	cov := mat.NewSymDense(n, nil)
	for i, s := range d.sigmas {
		cov.SetSym(i, i, s*s)
	}
	normal, ok := distmv.NewNormal(make([]float64, n), cov, src)
	if !ok {
		return nil, errors.New("gtsam: noise covariance is not positive definite")
	}
	return mat.NewVecDense(n, normal.Rand(nil)), nil
}

// String implements the Stringer interface.
func (d *Diagonal) String() string {
	if d.constrained {
		return fmt.Sprintf("Constrained{sigmas=%v}", d.sigmas)
	}
	return fmt.Sprintf("Diagonal{sigmas=%v}", d.sigmas)
}

package gtsam

import (
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLinearFactorRebase(t *testing.T) {
	f := between(0, 1, 1, 0.5)
	lin := NewLinearFactor(f)
	x0 := VectorValues{
		0: mat.NewVecDense(1, []float64{2}),
		1: mat.NewVecDense(1, []float64{2.5}),
	}
	jf, err := lin.Linearize(x0)
	if err != nil {
		t.Fatal(err)
	}
	// b' = b − A·x0 = 1 − (2.5 − 2) = 0.5; the coefficients are untouched.
	if got := jf.B().AtVec(0); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("rebased rhs: got %f, want 0.5", got)
	}
	if got := jf.A(0).At(0, 0); got != -1 {
		t.Fatalf("coefficient: got %f, want -1", got)
	}
	if jf.Model() != f.Model() {
		t.Fatal("noise model not carried over")
	}
}

func TestSmootherLinearChain(t *testing.T) {
	g, want := chainGraph()
	s := NewSmoother(0)
	zero := func(k Key) VectorValues {
		return VectorValues{k: mat.NewVecDense(1, nil)}
	}
	if err := s.Update([]Factor{NewLinearFactor(g.At(0).(*JacobianFactor))}, zero(0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Update([]Factor{NewLinearFactor(g.At(1).(*JacobianFactor))}, zero(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Update([]Factor{NewLinearFactor(g.At(2).(*JacobianFactor))}, zero(2)); err != nil {
		t.Fatal(err)
	}
	est, err := s.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	if !est.EqualWithin(want, 1e-9) {
		t.Fatalf("estimate:\n%v\nwant\n%v", est, want)
	}
	if s.Len() != 3 {
		t.Fatalf("factor count: got %d, want 3", s.Len())
	}
}

func TestSmootherPeriodicRelinearization(t *testing.T) {
	g, want := chainGraph()
	s := NewSmoother(2)
	for i := 0; i < g.Len(); i++ {
		initial := VectorValues{Key(i): mat.NewVecDense(1, nil)}
		if err := s.Update([]Factor{NewLinearFactor(g.At(i).(*JacobianFactor))}, initial); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	est, err := s.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	if !est.EqualWithin(want, 1e-9) {
		t.Fatalf("estimate:\n%v\nwant\n%v", est, want)
	}
	// The second update triggered a rebuild, so the linearization point has
	// moved off zero.
	if s.LinearizationPoint()[0].AtVec(0) == 0 {
		t.Fatal("linearization point never moved")
	}
}

func TestSmootherMissingInitial(t *testing.T) {
	s := NewSmoother(0)
	err := s.Update([]Factor{NewLinearFactor(prior(0, 1, 1))}, VectorValues{})
	if err == nil {
		t.Fatal("missing initial value does not fail")
	}
}

// squareFactor measures x² with a given target, exercising true
// relinearization: z = x² + noise.
type squareFactor struct {
	key   Key
	z     float64
	sigma float64
}

func (s *squareFactor) Keys() []Key { return []Key{s.key} }

func (s *squareFactor) Linearize(values VectorValues) (*JacobianFactor, error) {
	x, ok := values[s.key]
	if !ok {
		return nil, fmt.Errorf("linearizing square factor: variable %d: %w", s.key, ErrUnknownVariable)
	}
	x0 := x.AtVec(0)
	A := mat.NewDense(1, 1, []float64{2 * x0})
	b := mat.NewVecDense(1, []float64{s.z - x0*x0})
	return NewJacobianFactor([]Term{{s.key, A}}, b, NewIsotropic(1, s.sigma))
}

func TestSmootherNonlinearConvergence(t *testing.T) {
	s := NewSmoother(0)
	initial := VectorValues{0: mat.NewVecDense(1, []float64{1})}
	if err := s.Update([]Factor{&squareFactor{key: 0, z: 4, sigma: 0.1}}, initial); err != nil {
		t.Fatal(err)
	}
	// Gauss-Newton iterations via repeated relinearization.
	for i := 0; i < 10; i++ {
		if err := s.ReorderRelinearize(); err != nil {
			t.Fatal(err)
		}
	}
	est, err := s.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	if got := est[0].AtVec(0); math.Abs(got-2) > 1e-6 {
		t.Fatalf("converged estimate: got %f, want 2", got)
	}
}

func TestSmootherCustomOrdering(t *testing.T) {
	g, want := chainGraph()
	s := NewSmoother(1) // rebuild on every update
	s.SetOrdering(func(lin *GaussianFactorGraph) []Key {
		keys := lin.Keys()
		// Reverse order still solves the same system.
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
		return keys
	})
	var factors []Factor
	initial := VectorValues{}
	for i := 0; i < g.Len(); i++ {
		factors = append(factors, NewLinearFactor(g.At(i).(*JacobianFactor)))
		initial[Key(i)] = mat.NewVecDense(1, nil)
	}
	if err := s.Update(factors, initial); err != nil {
		t.Fatal(err)
	}
	est, err := s.Estimate()
	if err != nil {
		t.Fatal(err)
	}
	if !est.EqualWithin(want, 1e-9) {
		t.Fatalf("estimate:\n%v\nwant\n%v", est, want)
	}
}

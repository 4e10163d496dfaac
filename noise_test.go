package gtsam

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestDiagonalWhiten(t *testing.T) {
	model := NewDiagonal([]float64{0.5, 2})
	v := mat.NewVecDense(2, []float64{1, 1})
	model.Whiten(v)
	if v.AtVec(0) != 2 || v.AtVec(1) != 0.5 {
		t.Fatalf("whitened vector: got %v, want [2 0.5]", mat.Formatted(v.T()))
	}

	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	model.WhitenMat(a)
	want := mat.NewDense(2, 2, []float64{2, 4, 1.5, 2})
	if !mat.EqualApprox(a, want, 1e-12) {
		t.Fatalf("whitened matrix: got\n%v", mat.Formatted(a))
	}
}

func TestConstrainedWhitenSkipsExactRows(t *testing.T) {
	model := NewDiagonal([]float64{0, 0.1})
	if !model.IsConstrained() {
		t.Fatal("model with a zero sigma is not constrained")
	}
	v := mat.NewVecDense(2, []float64{3, 1})
	model.Whiten(v)
	if v.AtVec(0) != 3 {
		t.Fatalf("constrained row was scaled: got %f, want 3", v.AtVec(0))
	}
	if v.AtVec(1) != 10 {
		t.Fatalf("stochastic row: got %f, want 10", v.AtVec(1))
	}
}

func TestIsotropicAndUnit(t *testing.T) {
	iso := NewIsotropic(3, 0.2)
	if iso.Dim() != 3 {
		t.Fatalf("dim: got %d, want 3", iso.Dim())
	}
	for _, s := range iso.Sigmas() {
		if s != 0.2 {
			t.Fatalf("sigma: got %f, want 0.2", s)
		}
	}
	if NewUnit(2).IsConstrained() {
		t.Fatal("unit model reports constrained")
	}
	if !NewConstrainedAll(2).IsConstrained() {
		t.Fatal("all-constrained model reports unconstrained")
	}
}

func TestNoiseSample(t *testing.T) {
	model := NewDiagonal([]float64{1, 0.01})
	src := rand.NewSource(3)
	n := 2000
	sumSq := make([]float64, 2)
	for i := 0; i < n; i++ {
		s, err := model.Sample(src)
		if err != nil {
			t.Fatal(err)
		}
		sumSq[0] += s.AtVec(0) * s.AtVec(0)
		sumSq[1] += s.AtVec(1) * s.AtVec(1)
	}
	// Sample standard deviations should be near the model sigmas.
	for i, sigma := range model.Sigmas() {
		got := math.Sqrt(sumSq[i] / float64(n))
		if got < 0.9*sigma || got > 1.1*sigma {
			t.Fatalf("sample sigma %d: got %f, want about %f", i, got, sigma)
		}
	}

	if _, err := NewConstrainedAll(2).Sample(src); err == nil {
		t.Fatal("sampling a constrained model does not fail")
	}
}

package gtsam

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func chainBayesNet(t *testing.T) (GaussianBayesNet, VectorValues) {
	t.Helper()
	g, want := chainGraph()
	bn, rest, err := EliminateSequential(g, []Key{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if rest.Len() != 0 {
		t.Fatalf("%d factors left after full elimination", rest.Len())
	}
	return bn, want
}

func TestBayesNetOptimize(t *testing.T) {
	bn, want := chainBayesNet(t)
	x, err := bn.Optimize()
	if err != nil {
		t.Fatal(err)
	}
	if !x.EqualWithin(want, 1e-9) {
		t.Fatalf("solution:\n%v", x)
	}
	if got := bn.Keys(); len(got) != 3 || got[0] != 0 {
		t.Fatalf("keys: got %v", got)
	}
}

func TestBayesNetOptimizeInPlace(t *testing.T) {
	bn, want := chainBayesNet(t)
	x := VectorValues{}
	if err := bn.OptimizeInPlace(x); err != nil {
		t.Fatal(err)
	}
	if !x.EqualWithin(want, 1e-9) {
		t.Fatalf("solution:\n%v", x)
	}
}

func TestBayesNetToGraph(t *testing.T) {
	bn, want := chainBayesNet(t)
	g := bn.ToGraph()
	if g.Len() != len(bn) {
		t.Fatalf("got %d factors, want %d", g.Len(), len(bn))
	}
	// Re-eliminating the conditional factors reproduces the same solution.
	bn2, rest, err := EliminateSequential(g, []Key{2, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if rest.Len() != 0 {
		t.Fatalf("%d factors left", rest.Len())
	}
	x, err := bn2.Optimize()
	if err != nil {
		t.Fatal(err)
	}
	if !x.EqualWithin(want, 1e-9) {
		t.Fatalf("solution:\n%v", x)
	}
}

func TestBayesNetMatrix(t *testing.T) {
	bn, want := chainBayesNet(t)
	R, d, err := bn.Matrix()
	if err != nil {
		t.Fatal(err)
	}
	n, _ := R.Dims()
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			if R.At(i, j) != 0 {
				t.Fatalf("R(%d,%d) = %f, want 0", i, j, R.At(i, j))
			}
		}
	}
	// R·x = d at the exact solution, with columns in elimination order.
	x := mat.NewVecDense(3, []float64{want[0].AtVec(0), want[1].AtVec(0), want[2].AtVec(0)})
	var rx mat.VecDense
	rx.MulVec(R, x)
	for i := 0; i < n; i++ {
		if math.Abs(rx.AtVec(i)-d.AtVec(i)) > 1e-9 {
			t.Fatalf("row %d: R·x = %f, d = %f", i, rx.AtVec(i), d.AtVec(i))
		}
	}
}

func TestBayesNetDeterminant(t *testing.T) {
	bn, _ := chainBayesNet(t)
	R, _, err := bn.Matrix()
	if err != nil {
		t.Fatal(err)
	}
	n, _ := R.Dims()
	wantLog := 0.0
	for i := 0; i < n; i++ {
		wantLog += math.Log(math.Abs(R.At(i, i)))
	}
	if got := bn.LogDeterminant(); math.Abs(got-wantLog) > 1e-9 {
		t.Fatalf("log det: got %f, want %f", got, wantLog)
	}
	if got := bn.Determinant(); math.Abs(got-math.Exp(wantLog)) > 1e-6*math.Exp(wantLog) {
		t.Fatalf("det: got %f, want %f", got, math.Exp(wantLog))
	}
}

func TestBayesNetDeterminantMatchesInformation(t *testing.T) {
	g, _ := chainGraph()
	bn, rest, err := EliminateSequential(g, []Key{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if rest.Len() != 0 {
		t.Fatalf("%d factors left after full elimination", rest.Len())
	}
	// det(R)² must equal det(AᵀWA): the stacked Jacobian is whitened, so
	// the normal-equation determinant comes straight from AᵀA.
	aug, keys, err := g.AugmentedJacobian()
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := aug.Dims()
	A := aug.Slice(0, rows, 0, cols-1)
	var info mat.Dense
	info.Mul(A.T(), A)
	wantDet := mat.Det(&info)
	got := bn.Determinant()
	if math.Abs(got*got-wantDet) > 1e-6*wantDet {
		t.Fatalf("det(R)²: got %f, want %f (keys %v)", got*got, wantDet, keys)
	}
}

func TestBayesNetBackSubstitute(t *testing.T) {
	bn, _ := chainBayesNet(t)
	// Substituting the stored right-hand sides reproduces Optimize.
	rhs := VectorValues{}
	for _, c := range bn {
		off := 0
		for i, k := range c.Frontals() {
			v := mat.NewVecDense(c.DimOf(i), nil)
			for j := 0; j < c.DimOf(i); j++ {
				v.SetVec(j, c.D().AtVec(off+j))
			}
			rhs[k] = v
			off += c.DimOf(i)
		}
	}
	x, err := bn.BackSubstitute(rhs)
	if err != nil {
		t.Fatal(err)
	}
	direct, err := bn.Optimize()
	if err != nil {
		t.Fatal(err)
	}
	if !x.EqualWithin(direct, 1e-12) {
		t.Fatalf("back-substitute:\n%v\noptimize:\n%v", x, direct)
	}
}

func TestBayesNetBackSubstituteTranspose(t *testing.T) {
	bn, _ := chainBayesNet(t)
	g := VectorValues{
		0: mat.NewVecDense(1, []float64{1}),
		1: mat.NewVecDense(1, []float64{-2}),
		2: mat.NewVecDense(1, []float64{0.5}),
	}
	y, err := bn.BackSubstituteTranspose(g)
	if err != nil {
		t.Fatal(err)
	}
	// Verify Rᵀ·y = g against the dense triangular system.
	R, _, err := bn.Matrix()
	if err != nil {
		t.Fatal(err)
	}
	yv := mat.NewVecDense(3, []float64{y[0].AtVec(0), y[1].AtVec(0), y[2].AtVec(0)})
	var rty mat.VecDense
	rty.MulVec(R.T(), yv)
	for i, k := range []Key{0, 1, 2} {
		if math.Abs(rty.AtVec(i)-g[k].AtVec(0)) > 1e-9 {
			t.Fatalf("Rᵀy[%d]: got %f, want %f", i, rty.AtVec(i), g[k].AtVec(0))
		}
	}
}

func TestBayesNetGradientSearchScalar(t *testing.T) {
	// Single conditional 2·x = 4: for one variable the Cauchy point is the
	// exact minimizer x = 2.
	rsd := NewVerticalBlockMatrix([]int{1, 1}, 1)
	rsd.Full().Set(0, 0, 2)
	rsd.Full().Set(0, 1, 4)
	cond, err := NewGaussianConditional([]Key{0}, 1, rsd, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	x, err := GaussianBayesNet{cond}.OptimizeGradientSearch()
	if err != nil {
		t.Fatal(err)
	}
	if got := x[0].AtVec(0); math.Abs(got-2) > 1e-12 {
		t.Fatalf("gradient search: got %f, want 2", got)
	}
}

func TestBayesNetGradientSearchDescends(t *testing.T) {
	bn, _ := chainBayesNet(t)
	x, err := bn.OptimizeGradientSearch()
	if err != nil {
		t.Fatal(err)
	}
	g := &GaussianFactorGraph{}
	for _, c := range bn {
		g.Add(c.ToFactor())
	}
	if e0, e1 := g.Error(VectorValues{}), g.Error(x); e1 >= e0 {
		t.Fatalf("gradient step does not descend: %f -> %f", e0, e1)
	}
}

func TestBayesNetExternalParent(t *testing.T) {
	cond := makeConditional(t)
	if _, _, err := (GaussianBayesNet{cond}).Matrix(); err == nil {
		t.Fatal("net with an external parent assembles a matrix")
	}
}

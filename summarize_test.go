package gtsam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestConditionDensityUntouched(t *testing.T) {
	cond := makeConditional(t)
	out, err := ConditionDensity(cond, []Key{0, 5}, VectorValues{})
	require.NoError(t, err)
	// Nothing removed: the identical conditional comes back.
	assert.Same(t, cond, out)

	out, err = ConditionDensity(nil, []Key{0}, VectorValues{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestConditionDensityAllFrontalsRemoved(t *testing.T) {
	cond := makeConditional(t)
	solution := VectorValues{
		0: mat.NewVecDense(2, []float64{1, 2}),
		5: mat.NewVecDense(1, []float64{3}),
	}
	out, err := ConditionDensity(cond, []Key{5}, solution)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestConditionDensityRemoveParent(t *testing.T) {
	// p(x0 | x5) with x5 solved at 2 becomes the density p(x0) with the
	// parent columns folded into the RHS.
	cond := makeConditional(t)
	solution := VectorValues{5: mat.NewVecDense(1, []float64{2})}
	out, err := ConditionDensity(cond, []Key{0}, solution)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Empty(t, out.Parents())
	assert.True(t, mat.EqualApprox(cond.R(), out.R(), 1e-12))
	// d' = d − S·x5 = [4−2, 9−1].
	wantD := mat.NewVecDense(2, []float64{2, 8})
	assert.True(t, mat.EqualApprox(wantD, out.D(), 1e-12), "d: %v", mat.Formatted(out.D().T()))

	// Solving the reduced density gives the same frontal values as solving
	// the original with the parent fixed.
	xFull := VectorValues{5: mat.NewVecDense(1, []float64{2})}
	require.NoError(t, cond.SolveInPlace(xFull))
	xRed := VectorValues{}
	require.NoError(t, out.SolveInPlace(xRed))
	assert.True(t, mat.EqualApprox(xFull[0], xRed[0], 1e-12))
}

func TestConditionDensityRemoveFrontal(t *testing.T) {
	// Two frontals, no parents: p(x0,x1) with R=[[1,1],[0,2]], d=[3,4].
	rsd := NewVerticalBlockMatrix([]int{1, 1, 1}, 2)
	rsd.Full().Set(0, 0, 1)
	rsd.Full().Set(0, 1, 1)
	rsd.Full().Set(0, 2, 3)
	rsd.Full().Set(1, 1, 2)
	rsd.Full().Set(1, 2, 4)
	cond, err := NewGaussianConditional([]Key{0, 1}, 2, rsd, []float64{1, 1})
	require.NoError(t, err)

	solution := VectorValues{1: mat.NewVecDense(1, []float64{2})}
	out, err := ConditionDensity(cond, []Key{0}, solution)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, []Key{0}, out.Keys())
	assert.Equal(t, 1, out.Dim())
	// Row of x0 keeps its diagonal and folds the x1 column into the RHS:
	// 1·x0 = 3 − 1·2.
	assert.InDelta(t, 1, out.R().At(0, 0), 1e-12)
	assert.InDelta(t, 1, out.D().AtVec(0), 1e-12)

	// A missing solved value is an error.
	_, err = ConditionDensity(cond, []Key{0}, VectorValues{})
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestConditionBayesTreeDensity(t *testing.T) {
	tree, want := chainBayesTree(t)
	summary, err := ConditionBayesTreeDensity(tree, []Key{2})
	require.NoError(t, err)
	require.NotZero(t, summary.Len())
	for i := 0; i < summary.Len(); i++ {
		assert.Equal(t, []Key{2}, summary.At(i).Keys())
	}
	bn, _, err := EliminateSequential(summary, []Key{2})
	require.NoError(t, err)
	x, err := bn.Optimize()
	require.NoError(t, err)
	assert.InDelta(t, want[2].AtVec(0), x[2].AtVec(0), 1e-9)
}

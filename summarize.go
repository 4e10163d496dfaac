package gtsam

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ConditionDensity removes every variable not in saved from the conditional
// by substituting its solved value into the right-hand side. Rows of removed
// frontals are dropped; columns of removed variables are folded into the
// RHS. Returns the conditional unchanged when nothing is removed, and nil
// when every frontal is removed.
func ConditionDensity(cond *GaussianConditional, saved []Key, solution VectorValues) (*GaussianConditional, error) {
	if cond == nil {
		return nil, nil
	}
	anyRemoved := false
	for _, k := range cond.Keys() {
		if !containsKey(saved, k) {
			anyRemoved = true
			break
		}
	}
	if !anyRemoved {
		return cond, nil
	}

	nf := cond.NumFrontals()
	oldOffsets := make([]int, nf+1)
	for i := 0; i < nf; i++ {
		oldOffsets[i+1] = oldOffsets[i] + cond.DimOf(i)
	}

	var keptFrontals, keptParents []int
	for i, k := range cond.Frontals() {
		if containsKey(saved, k) {
			keptFrontals = append(keptFrontals, i)
		}
	}
	for i, k := range cond.Parents() {
		if containsKey(saved, k) {
			keptParents = append(keptParents, i)
		}
	}
	if len(keptFrontals) == 0 {
		return nil, nil
	}

	// New layout: kept frontals then kept parents, original order preserved.
	newColOf := make(map[Key]int)
	var newKeys []Key
	var widths []int
	cols := 0
	for _, i := range keptFrontals {
		k := cond.keys[i]
		newColOf[k] = cols
		newKeys = append(newKeys, k)
		widths = append(widths, cond.DimOf(i))
		cols += cond.DimOf(i)
	}
	rows := cols
	for _, i := range keptParents {
		k := cond.keys[nf+i]
		newColOf[k] = cols
		newKeys = append(newKeys, k)
		widths = append(widths, cond.DimOf(nf+i))
		cols += cond.DimOf(nf+i)
	}
	widths = append(widths, 1)

	rsd := NewVerticalBlockMatrix(widths, rows)
	full := rsd.Full()
	sigmas := make([]float64, rows)
	oldR := cond.R()
	oldD := cond.D()
	oldSigmas := cond.Sigmas()

	solvedColumn := func(k Key, dim int) (*mat.VecDense, error) {
		v, ok := solution[k]
		if !ok {
			return nil, fmt.Errorf("conditioning out variable %d without a solved value: %w", k, ErrUnknownVariable)
		}
		if v.Len() != dim {
			return nil, fmt.Errorf("gtsam: solved value for variable %d has dim %d, want %d", k, v.Len(), dim)
		}
		return v, nil
	}

	newRow := 0
	for _, fi := range keptFrontals {
		d := cond.DimOf(fi)
		oldOff := oldOffsets[fi]
		base := newColOf[cond.keys[fi]]

		for r := 0; r < d; r++ {
			for c := 0; c < d; c++ {
				full.Set(newRow+r, base+c, oldR.At(oldOff+r, oldOff+c))
			}
			full.Set(newRow+r, cols, oldD.AtVec(oldOff+r))
			sigmas[newRow+r] = oldSigmas[oldOff+r]
		}

		// Later frontals of the original appear as upper-triangle columns:
		// kept ones are copied, removed ones fold into the RHS.
		for fj := fi + 1; fj < nf; fj++ {
			k := cond.keys[fj]
			pd := cond.DimOf(fj)
			pOff := oldOffsets[fj]
			if col, kept := newColOf[k]; kept {
				for r := 0; r < d; r++ {
					for c := 0; c < pd; c++ {
						full.Set(newRow+r, col+c, oldR.At(oldOff+r, pOff+c))
					}
				}
				continue
			}
			x, err := solvedColumn(k, pd)
			if err != nil {
				return nil, err
			}
			for r := 0; r < d; r++ {
				acc := full.At(newRow+r, cols)
				for c := 0; c < pd; c++ {
					acc -= oldR.At(oldOff+r, pOff+c) * x.AtVec(c)
				}
				full.Set(newRow+r, cols, acc)
			}
		}

		for pi, k := range cond.Parents() {
			sp := cond.S(pi)
			_, pd := sp.Dims()
			if col, kept := newColOf[k]; kept {
				for r := 0; r < d; r++ {
					for c := 0; c < pd; c++ {
						full.Set(newRow+r, col+c, sp.At(oldOff+r, c))
					}
				}
				continue
			}
			x, err := solvedColumn(k, pd)
			if err != nil {
				return nil, err
			}
			for r := 0; r < d; r++ {
				acc := full.At(newRow+r, cols)
				for c := 0; c < pd; c++ {
					acc -= sp.At(oldOff+r, c) * x.AtVec(c)
				}
				full.Set(newRow+r, cols, acc)
			}
		}
		newRow += d
	}
	return NewGaussianConditional(newKeys, len(keptFrontals), rsd, sigmas)
}

// ConditionBayesTreeDensity summarizes a Bayes tree onto the saved
// variables: the tree is solved once, then every clique conditional that
// mentions a saved variable is conditioned on that solution and returned as
// a factor. The result is a compact Gaussian over the saved variables.
func ConditionBayesTreeDensity(tree *BayesTree, saved []Key) (*GaussianFactorGraph, error) {
	solution, err := tree.Optimize()
	if err != nil {
		return nil, err
	}
	out := &GaussianFactorGraph{}
	var walkErr error
	tree.walk(func(c *Clique) {
		if walkErr != nil {
			return
		}
		for _, cond := range c.conditionals {
			touches := false
			for _, k := range cond.Keys() {
				if containsKey(saved, k) {
					touches = true
					break
				}
			}
			if !touches {
				continue
			}
			reduced, err := ConditionDensity(cond, saved, solution)
			if err != nil {
				walkErr = err
				return
			}
			if reduced != nil {
				out.Add(reduced.ToFactor())
			}
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

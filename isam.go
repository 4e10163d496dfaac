package gtsam

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// GaussianISAM maintains a Bayes tree under incremental factor insertion.
// Each update tears out only the cliques touched by the new factors and
// their ancestors, re-eliminates that part together with the new factors,
// and hangs the untouched subtrees back on.
type GaussianISAM struct {
	tree *BayesTree
}

// NewGaussianISAM returns an empty incremental solver.
func NewGaussianISAM() *GaussianISAM {
	return &GaussianISAM{tree: &BayesTree{nodes: make(map[Key]*Clique)}}
}

// BayesTree exposes the current tree, for inspection only.
func (s *GaussianISAM) BayesTree() *BayesTree { return s.tree }

// Update merges new factors into the tree. Affected variables are
// re-eliminated in their previous elimination order, with brand-new
// variables appended last so they end up near the root.
func (s *GaussianISAM) Update(newFactors *GaussianFactorGraph) error {
	affected := newFactors.Keys()
	removed, orphans := s.tree.RemoveTop(affected)

	g := removed.ToGraph()
	for i := 0; i < newFactors.Len(); i++ {
		g.Add(newFactors.At(i))
	}

	var ordering []Key
	seen := make(map[Key]bool)
	for _, c := range removed {
		for _, f := range c.Frontals() {
			if !seen[f] {
				seen[f] = true
				ordering = append(ordering, f)
			}
		}
	}
	for _, k := range g.Keys() {
		if !seen[k] {
			ordering = append(ordering, k)
		}
	}

	bn, rest, err := EliminateSequential(g, ordering)
	if err != nil {
		return err
	}
	if rest.Len() != 0 {
		return fmt.Errorf("gtsam: %d factors left after re-elimination of %v", rest.Len(), ordering)
	}
	for i := len(bn) - 1; i >= 0; i-- {
		if err := s.tree.Insert(bn[i]); err != nil {
			return err
		}
	}
	for _, o := range orphans {
		if err := s.tree.reattach(o); err != nil {
			return err
		}
	}
	return nil
}

// Optimize solves the current tree.
func (s *GaussianISAM) Optimize() (VectorValues, error) {
	return s.tree.Optimize()
}

// MarginalCovariance returns the current marginal covariance of a variable.
func (s *GaussianISAM) MarginalCovariance(v Key) (*mat.SymDense, error) {
	return s.tree.MarginalCovariance(v)
}

// Clear resets the solver to an empty tree.
func (s *GaussianISAM) Clear() {
	s.tree = &BayesTree{nodes: make(map[Key]*Clique)}
}

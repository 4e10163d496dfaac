package gtsam

import (
	"fmt"
	"sort"
)

// Factor is a measurement that can be linearized at a point. Nonlinear
// smoothing works on these; the linear engine only ever sees the Jacobians
// they produce.
type Factor interface {
	Keys() []Key
	Linearize(values VectorValues) (*JacobianFactor, error)
}

// LinearFactor adapts an already-linear Jacobian factor to the Factor
// interface. Its error is measured against absolute values, so linearizing
// at x0 rebases the right-hand side to b − A·x0.
type LinearFactor struct {
	factor *JacobianFactor
}

// NewLinearFactor wraps a Jacobian factor for use in a nonlinear smoother.
func NewLinearFactor(f *JacobianFactor) *LinearFactor {
	return &LinearFactor{factor: f}
}

// Keys returns the wrapped factor's variables.
func (l *LinearFactor) Keys() []Key { return l.factor.Keys() }

// Linearize returns a copy of the factor whose RHS is expressed relative to
// the linearization point. Variables absent from values count as zero.
func (l *LinearFactor) Linearize(values VectorValues) (*JacobianFactor, error) {
	f := l.factor
	widths := make([]int, len(f.dims)+1)
	copy(widths, f.dims)
	widths[len(f.dims)] = 1
	ab := NewVerticalBlockMatrix(widths, f.Rows())
	if f.Rows() > 0 {
		ab.Full().Copy(f.Ab.Full())
		res := f.UnweightedErrorVec(values) // A·x0 − b
		rhs := ab.RHS()
		for i := 0; i < f.Rows(); i++ {
			rhs.SetVec(i, -res.AtVec(i))
		}
	}
	return newJacobianFromBlocks(f.keys, ab, f.model), nil
}

// OrderingFunc chooses an elimination ordering for a linear graph. The
// default orders keys ascending.
type OrderingFunc func(graph *GaussianFactorGraph) []Key

func defaultOrdering(graph *GaussianFactorGraph) []Key {
	keys := graph.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Smoother is a nonlinear incremental smoother. It keeps a linearization
// point, feeds linearized factors to a GaussianISAM, and periodically
// relinearizes everything from scratch at the current estimate.
type Smoother struct {
	isam     *GaussianISAM
	factors  []Factor
	linPoint VectorValues
	ordering OrderingFunc

	// Every reorderInterval updates the tree is rebuilt and all factors are
	// relinearized. Zero disables periodic relinearization.
	reorderInterval int
	reorderCounter  int
}

// NewSmoother returns an empty smoother that relinearizes every
// reorderInterval updates.
func NewSmoother(reorderInterval int) *Smoother {
	return &Smoother{
		isam:            NewGaussianISAM(),
		linPoint:        VectorValues{},
		ordering:        defaultOrdering,
		reorderInterval: reorderInterval,
	}
}

// SetOrdering overrides the elimination ordering used when relinearizing.
func (s *Smoother) SetOrdering(fn OrderingFunc) {
	if fn != nil {
		s.ordering = fn
	}
}

// Update adds new factors and initial values for any new variables. The new
// factors are linearized at the current linearization point and merged into
// the tree, unless the relinearization interval has elapsed, in which case
// the whole problem is rebuilt.
func (s *Smoother) Update(newFactors []Factor, initial VectorValues) error {
	if len(newFactors) == 0 {
		return nil
	}
	s.factors = append(s.factors, newFactors...)
	for k, v := range initial {
		if _, ok := s.linPoint[k]; !ok {
			s.linPoint[k] = v
		}
	}
	for _, f := range newFactors {
		for _, k := range f.Keys() {
			if _, ok := s.linPoint[k]; !ok {
				return fmt.Errorf("updating with factor on %v: no initial value for variable %d: %w",
					f.Keys(), k, ErrUnknownVariable)
			}
		}
	}

	if s.reorderInterval > 0 {
		s.reorderCounter++
		if s.reorderCounter >= s.reorderInterval {
			return s.ReorderRelinearize()
		}
	}

	lin := &GaussianFactorGraph{}
	for _, f := range newFactors {
		jf, err := f.Linearize(s.linPoint)
		if err != nil {
			return err
		}
		lin.Add(jf)
	}
	return s.isam.Update(lin)
}

// ReorderRelinearize moves the linearization point to the current estimate,
// relinearizes every factor there, and rebuilds the tree under a fresh
// ordering.
func (s *Smoother) ReorderRelinearize() error {
	s.reorderCounter = 0
	if len(s.factors) == 0 {
		return nil
	}
	estimate, err := s.Estimate()
	if err != nil {
		return err
	}
	s.linPoint = estimate

	lin := &GaussianFactorGraph{}
	for _, f := range s.factors {
		jf, err := f.Linearize(s.linPoint)
		if err != nil {
			return err
		}
		lin.Add(jf)
	}
	bn, rest, err := EliminateSequential(lin, s.ordering(lin))
	if err != nil {
		return err
	}
	if rest.Len() != 0 {
		return fmt.Errorf("gtsam: %d factors left after full relinearization", rest.Len())
	}
	tree, err := NewBayesTree(bn)
	if err != nil {
		return err
	}
	s.isam.tree = tree
	return nil
}

// Estimate solves the tree for the current delta and applies it to the
// linearization point.
func (s *Smoother) Estimate() (VectorValues, error) {
	if s.isam.tree.Size() == 0 {
		return s.linPoint.Clone(), nil
	}
	delta, err := s.isam.Optimize()
	if err != nil {
		return nil, err
	}
	return s.linPoint.Add(delta), nil
}

// LinearizationPoint returns the values the factors are currently
// linearized at.
func (s *Smoother) LinearizationPoint() VectorValues { return s.linPoint }

// BayesTree exposes the underlying tree, for inspection only.
func (s *Smoother) BayesTree() *BayesTree { return s.isam.BayesTree() }

// Len returns the number of factors seen so far.
func (s *Smoother) Len() int { return len(s.factors) }

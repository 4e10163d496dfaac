package gtsam

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Clique is one node of a Bayes tree. It stores the conditionals absorbed
// into it in reverse elimination order: the first entry is the conditional
// eliminated last, whose parents form the clique separator.
type Clique struct {
	conditionals []*GaussianConditional
	parent       *Clique
	children     []*Clique
}

// Frontals returns the clique's frontal variables in top-down solve order.
func (c *Clique) Frontals() []Key {
	var keys []Key
	for _, cond := range c.conditionals {
		keys = append(keys, cond.Frontals()...)
	}
	return keys
}

// Separator returns the variables the clique conditions on, the parents of
// its last-eliminated conditional.
func (c *Clique) Separator() []Key {
	return c.conditionals[0].Parents()
}

// Keys returns frontals followed by the separator.
func (c *Clique) Keys() []Key {
	return append(c.Frontals(), c.Separator()...)
}

// Children returns the child cliques.
func (c *Clique) Children() []*Clique { return c.children }

// Parent returns the parent clique, nil at a root.
func (c *Clique) Parent() *Clique { return c.parent }

func (c *Clique) String() string {
	return fmt.Sprintf("Clique(%v | %v)", c.Frontals(), c.Separator())
}

// BayesTree is the directed clique tree of a chordal Bayes net. It supports
// the top-down solve and the partial tear-down that incremental updates are
// built on.
type BayesTree struct {
	roots []*Clique
	nodes map[Key]*Clique
}

// NewBayesTree builds a tree from a Bayes net by inserting its conditionals
// in reverse elimination order.
func NewBayesTree(bn GaussianBayesNet) (*BayesTree, error) {
	t := &BayesTree{nodes: make(map[Key]*Clique)}
	for i := len(bn) - 1; i >= 0; i-- {
		if err := t.Insert(bn[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Insert adds one conditional to the tree. Conditionals must arrive in
// reverse elimination order. A conditional whose parents exactly cover an
// existing clique is absorbed into that clique; otherwise it starts a new
// child clique under the clique containing its first parent.
func (t *BayesTree) Insert(cond *GaussianConditional) error {
	parents := cond.Parents()
	if len(parents) == 0 {
		clique := &Clique{conditionals: []*GaussianConditional{cond}}
		t.roots = append(t.roots, clique)
		t.register(clique, cond)
		return nil
	}
	parent, ok := t.nodes[parents[0]]
	if !ok {
		return fmt.Errorf("inserting conditional on %v: parent %d: %w",
			cond.Frontals(), parents[0], ErrUnknownVariable)
	}
	if keySetEqual(parents, parent.Keys()) {
		parent.conditionals = append(parent.conditionals, cond)
		t.register(parent, cond)
		return nil
	}
	clique := &Clique{conditionals: []*GaussianConditional{cond}, parent: parent}
	parent.children = append(parent.children, clique)
	t.register(clique, cond)
	return nil
}

func (t *BayesTree) register(c *Clique, cond *GaussianConditional) {
	for _, k := range cond.Frontals() {
		t.nodes[k] = c
	}
}

func keySetEqual(a, b []Key) bool {
	if len(a) != len(b) {
		return false
	}
	for _, k := range a {
		if !containsKey(b, k) {
			return false
		}
	}
	return true
}

// Roots returns the root cliques.
func (t *BayesTree) Roots() []*Clique { return t.roots }

// CliqueContaining returns the clique holding k as a frontal variable.
func (t *BayesTree) CliqueContaining(k Key) (*Clique, bool) {
	c, ok := t.nodes[k]
	return c, ok
}

// Size returns the number of cliques.
func (t *BayesTree) Size() int {
	n := 0
	t.walk(func(*Clique) { n++ })
	return n
}

func (t *BayesTree) walk(visit func(*Clique)) {
	var rec func(c *Clique)
	rec = func(c *Clique) {
		visit(c)
		for _, ch := range c.children {
			rec(ch)
		}
	}
	for _, r := range t.roots {
		rec(r)
	}
}

// Optimize back-substitutes the whole tree top-down and returns the exact
// solution.
func (t *BayesTree) Optimize() (VectorValues, error) {
	x := VectorValues{}
	var rec func(c *Clique) error
	rec = func(c *Clique) error {
		for _, cond := range c.conditionals {
			if err := cond.SolveInPlace(x); err != nil {
				return err
			}
		}
		for _, ch := range c.children {
			if err := rec(ch); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range t.roots {
		if err := rec(r); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// RemoveTop detaches every clique containing one of the given keys, together
// with all its ancestors. It returns the removed conditionals as a Bayes net
// in elimination order, and the orphaned subtrees whose parents were
// removed. Keys not present in the tree are ignored.
func (t *BayesTree) RemoveTop(keys []Key) (GaussianBayesNet, []*Clique) {
	removed := make(map[*Clique]bool)
	var ordered []*Clique
	var removePath func(c *Clique)
	removePath = func(c *Clique) {
		if c == nil || removed[c] {
			return
		}
		removePath(c.parent)
		removed[c] = true
		ordered = append(ordered, c)
	}
	for _, k := range keys {
		if c, ok := t.nodes[k]; ok {
			removePath(c)
		}
	}

	var orphans []*Clique
	for _, c := range ordered {
		for _, ch := range c.children {
			if !removed[ch] {
				ch.parent = nil
				orphans = append(orphans, ch)
			}
		}
		for _, cond := range c.conditionals {
			for _, f := range cond.Frontals() {
				delete(t.nodes, f)
			}
		}
	}
	var roots []*Clique
	for _, r := range t.roots {
		if !removed[r] {
			roots = append(roots, r)
		}
	}
	t.roots = roots

	// Ancestors were appended before descendants, so walking the list
	// backwards yields elimination order; within a clique the stored order
	// is already reversed.
	var bn GaussianBayesNet
	for i := len(ordered) - 1; i >= 0; i-- {
		c := ordered[i]
		for j := len(c.conditionals) - 1; j >= 0; j-- {
			bn = append(bn, c.conditionals[j])
		}
	}
	return bn, orphans
}

// reattach hangs an orphaned subtree back under the clique that now contains
// its first separator variable, or promotes it to a root when the separator
// is empty.
func (t *BayesTree) reattach(orphan *Clique) error {
	sep := orphan.Separator()
	if len(sep) == 0 {
		t.roots = append(t.roots, orphan)
		t.reindex(orphan)
		return nil
	}
	parent, ok := t.nodes[sep[0]]
	if !ok {
		return fmt.Errorf("reattaching clique %v: separator %d: %w",
			orphan.Frontals(), sep[0], ErrUnknownVariable)
	}
	orphan.parent = parent
	parent.children = append(parent.children, orphan)
	t.reindex(orphan)
	return nil
}

func (t *BayesTree) reindex(c *Clique) {
	var rec func(q *Clique)
	rec = func(q *Clique) {
		for _, cond := range q.conditionals {
			t.register(q, cond)
		}
		for _, ch := range q.children {
			rec(ch)
		}
	}
	rec(c)
}

// MarginalFactor eliminates the path from v's clique to the root with v last
// and returns the resulting conditional p(v), whose R block is the square
// root of the marginal information.
func (t *BayesTree) MarginalFactor(v Key) (*GaussianConditional, error) {
	c, ok := t.nodes[v]
	if !ok {
		return nil, fmt.Errorf("marginal of variable %d: %w", v, ErrUnknownVariable)
	}
	g := &GaussianFactorGraph{}
	for q := c; q != nil; q = q.parent {
		for _, cond := range q.conditionals {
			g.Add(cond.ToFactor())
		}
	}
	var ordering []Key
	for _, k := range g.Keys() {
		if k != v {
			ordering = append(ordering, k)
		}
	}
	ordering = append(ordering, v)
	bn, _, err := EliminateSequential(g, ordering)
	if err != nil {
		return nil, err
	}
	return bn[len(bn)-1], nil
}

// MarginalCovariance returns the marginal covariance of a single variable,
// (RᵀR)⁻¹ of its marginal factor.
func (t *BayesTree) MarginalCovariance(v Key) (*mat.SymDense, error) {
	cond, err := t.MarginalFactor(v)
	if err != nil {
		return nil, err
	}
	var rinv mat.Dense
	if err := rinv.Inverse(cond.R()); err != nil {
		return nil, fmt.Errorf("marginal of variable %d: %w", v, ErrIndeterminantSystem)
	}
	var cov mat.Dense
	cov.Mul(&rinv, rinv.T())
	return AsSymDense(&cov)
}

// TreeStats summarizes the shape of a Bayes tree.
type TreeStats struct {
	Cliques       int
	Variables     int
	MaxCliqueSize int
	MaxDepth      int
	AvgCliqueSize float64
}

// Stats walks the tree and reports clique counts and sizes.
func (t *BayesTree) Stats() TreeStats {
	var s TreeStats
	totalVars := 0
	var rec func(c *Clique, depth int)
	rec = func(c *Clique, depth int) {
		s.Cliques++
		nf := len(c.Frontals())
		totalVars += nf
		if size := nf + len(c.Separator()); size > s.MaxCliqueSize {
			s.MaxCliqueSize = size
		}
		if depth > s.MaxDepth {
			s.MaxDepth = depth
		}
		for _, ch := range c.children {
			rec(ch, depth+1)
		}
	}
	for _, r := range t.roots {
		rec(r, 1)
	}
	s.Variables = totalVars
	if s.Cliques > 0 {
		s.AvgCliqueSize = float64(totalVars) / float64(s.Cliques)
	}
	return s
}

func (t *BayesTree) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "BayesTree with %d cliques:\n", t.Size())
	var rec func(c *Clique, indent string)
	rec = func(c *Clique, indent string) {
		fmt.Fprintf(&b, "%s%s\n", indent, c)
		for _, ch := range c.children {
			rec(ch, indent+"  ")
		}
	}
	for _, r := range t.roots {
		rec(r, "")
	}
	return b.String()
}

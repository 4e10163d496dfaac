package gtsam

import (
	"fmt"
	"sort"
)

// SymbolicFactor records only which variables a factor touches. Symbolic
// elimination predicts fill-in and clique structure without any numerics.
type SymbolicFactor struct {
	keys []Key
}

// NewSymbolicFactor returns a structure-only factor over the given keys.
func NewSymbolicFactor(keys ...Key) *SymbolicFactor {
	return &SymbolicFactor{keys: keys}
}

// Keys returns the variables the factor involves.
func (f *SymbolicFactor) Keys() []Key { return f.keys }

func (f *SymbolicFactor) String() string {
	return fmt.Sprintf("SymbolicFactor%v", f.keys)
}

// SymbolicConditional is the structure-only result of eliminating one or
// more frontal variables: which separator variables they condition on.
type SymbolicConditional struct {
	keys      []Key
	nFrontals int
}

// Frontals returns the eliminated variables.
func (c *SymbolicConditional) Frontals() []Key { return c.keys[:c.nFrontals] }

// Parents returns the separator variables.
func (c *SymbolicConditional) Parents() []Key { return c.keys[c.nFrontals:] }

// Keys returns frontals followed by parents.
func (c *SymbolicConditional) Keys() []Key { return c.keys }

func (c *SymbolicConditional) String() string {
	return fmt.Sprintf("SymbolicConditional(%v | %v)", c.Frontals(), c.Parents())
}

// EliminateSymbolic eliminates the frontal variables from the combined
// structure of all given factors: the conditional covers the frontals in the
// given order followed by the separator in ascending key order, and the
// remaining factor covers the separator.
func EliminateSymbolic(factors []*SymbolicFactor, frontals []Key) (*SymbolicConditional, *SymbolicFactor) {
	seen := make(map[Key]bool)
	for _, f := range factors {
		for _, k := range f.keys {
			seen[k] = true
		}
	}
	var separator []Key
	for k := range seen {
		if !containsKey(frontals, k) {
			separator = append(separator, k)
		}
	}
	sort.Slice(separator, func(i, j int) bool { return separator[i] < separator[j] })

	keys := make([]Key, 0, len(frontals)+len(separator))
	keys = append(keys, frontals...)
	keys = append(keys, separator...)
	cond := &SymbolicConditional{keys: keys, nFrontals: len(frontals)}
	if len(separator) == 0 {
		return cond, nil
	}
	return cond, NewSymbolicFactor(separator...)
}

// EliminateSymbolicSequential runs the symbolic sweep one variable at a
// time, mirroring EliminateSequential. Useful to predict the shape of a
// numeric elimination before paying for it.
func EliminateSymbolicSequential(factors []*SymbolicFactor, ordering []Key) ([]*SymbolicConditional, []*SymbolicFactor) {
	remaining := append([]*SymbolicFactor(nil), factors...)
	var conds []*SymbolicConditional
	for _, v := range ordering {
		var bucket, rest []*SymbolicFactor
		for _, f := range remaining {
			if containsKey(f.keys, v) {
				bucket = append(bucket, f)
			} else {
				rest = append(rest, f)
			}
		}
		cond, rem := EliminateSymbolic(bucket, []Key{v})
		conds = append(conds, cond)
		if rem != nil {
			rest = append(rest, rem)
		}
		remaining = rest
	}
	return conds, remaining
}

package gtsam

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// VectorValues assigns a dense vector to each variable key. It is the value
// type flowing through solves: solutions, gradients and deltas.
type VectorValues map[Key]*mat.VecDense

// At returns the vector for k, or nil and false when absent.
func (v VectorValues) At(k Key) (*mat.VecDense, bool) {
	val, ok := v[k]
	return val, ok
}

// Set stores val for k, replacing any previous value.
func (v VectorValues) Set(k Key, val *mat.VecDense) { v[k] = val }

// Dim returns the total scalar dimension over all keys.
func (v VectorValues) Dim() int {
	d := 0
	for _, val := range v {
		d += val.Len()
	}
	return d
}

// Keys returns the keys in ascending order.
func (v VectorValues) Keys() []Key {
	keys := make([]Key, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns a deep copy.
func (v VectorValues) Clone() VectorValues {
	out := make(VectorValues, len(v))
	for k, val := range v {
		out[k] = mat.VecDenseCopyOf(val)
	}
	return out
}

// Add returns the entrywise sum over the union of keys; a key present on only
// one side keeps that side's value.
func (v VectorValues) Add(o VectorValues) VectorValues {
	out := v.Clone()
	for k, val := range o {
		if cur, ok := out[k]; ok {
			cur.AddVec(cur, val)
		} else {
			out[k] = mat.VecDenseCopyOf(val)
		}
	}
	return out
}

// Scale multiplies every vector by a in place.
func (v VectorValues) Scale(a float64) {
	for _, val := range v {
		val.ScaleVec(a, val)
	}
}

// Dot returns the inner product over the intersection of keys.
func (v VectorValues) Dot(o VectorValues) float64 {
	total := 0.0
	for k, val := range v {
		if other, ok := o[k]; ok {
			total += mat.Dot(val, other)
		}
	}
	return total
}

// EqualWithin reports whether both assignments have the same keys and entries
// within tol.
func (v VectorValues) EqualWithin(o VectorValues, tol float64) bool {
	if len(v) != len(o) {
		return false
	}
	for k, val := range v {
		other, ok := o[k]
		if !ok || val.Len() != other.Len() {
			return false
		}
		for i := 0; i < val.Len(); i++ {
			if !scalar.EqualWithinAbs(val.AtVec(i), other.AtVec(i), tol) {
				return false
			}
		}
	}
	return true
}

// vecFor returns the vector for k, creating a zero vector of the given
// dimension when absent.
func (v VectorValues) vecFor(k Key, dim int) *mat.VecDense {
	if val, ok := v[k]; ok {
		return val
	}
	val := mat.NewVecDense(dim, nil)
	v[k] = val
	return val
}

// String implements the Stringer interface.
func (v VectorValues) String() string {
	var b strings.Builder
	for _, k := range v.Keys() {
		fmt.Fprintf(&b, "%d: %v\n", k, mat.Formatted(v[k].T()))
	}
	return b.String()
}

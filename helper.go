package gtsam

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Key names an unknown variable. Keys are dense non-negative indices; the
// mapping from symbolic names to keys is maintained by the caller.
type Key int

// Identity returns an identity matrix of the provided size.
func Identity(n int) *mat.Dense {
	vals := make([]float64, n*n)
	for j := 0; j < n*n; j += n + 1 {
		vals[j] = 1
	}
	return mat.NewDense(n, n, vals)
}

// IsNil returns whether the provided matrix only has zero values.
func IsNil(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// AsSymDense attempts to return a SymDense from the provided matrix.
func AsSymDense(m mat.Matrix) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.New("gtsam: matrix must be square")
	}
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			if m.At(i, j) != m.At(j, i) {
				return nil, errors.New("gtsam: matrix is not symmetric")
			}
			s.SetSym(i, j, m.At(i, j))
		}
	}
	return s, nil
}

// symFromUpper copies the upper triangle of a square dense matrix into a
// SymDense without checking the lower triangle.
func symFromUpper(m *mat.Dense) *mat.SymDense {
	r, _ := m.Dims()
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}
	return s
}

func containsKey(keys []Key, k Key) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

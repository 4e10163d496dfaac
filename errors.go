package gtsam

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Numerical failure sentinels. Structural mistakes (bad block widths, duplicate
// keys, out-of-range block indices) are caller bugs and panic or return plain
// errors from constructors instead.
var (
	// ErrIndeterminantSystem is returned when elimination hits a variable with
	// no remaining rank: no factor supports it, or its pivot block is
	// numerically singular.
	ErrIndeterminantSystem = errors.New("gtsam: indeterminant linear system")

	// ErrInconsistentConstraint is returned when reducing a constrained factor
	// leaves a row with zero coefficients but a nonzero right-hand side, i.e.
	// the constraints contradict each other.
	ErrInconsistentConstraint = errors.New("gtsam: inconsistent constraint")

	// ErrConstrainedCholesky is returned when a constrained noise model ends up
	// on the Cholesky elimination path, which cannot represent infinite
	// information. Use the QR path for constrained factors.
	ErrConstrainedCholesky = errors.New("gtsam: constrained factor cannot be eliminated via Cholesky")

	// ErrUnknownVariable is returned when a solve or reconstruction references
	// a variable with no value and no conditional.
	ErrUnknownVariable = errors.New("gtsam: unknown variable")
)

// DimensionAgreement defines how two matrices' dimensions should agree.
type DimensionAgreement uint8

const (
	dimErrMsg                    = "gtsam: dimensions must agree: "
	rows2cols DimensionAgreement = iota + 1
	cols2rows
	cols2cols
	rows2rows
	rowsAndcols
)

// checkMatDims checks the matrix dimensions match provided a DimensionAgreement. Returns an error if not.
func checkMatDims(m1, m2 mat.Matrix, name1, name2 string, method DimensionAgreement) error {
	r1, c1 := m1.Dims()
	r2, c2 := m2.Dims()
	switch method {
	case rows2cols:
		if r1 != c2 {
			return fmt.Errorf("%s%s(%dx...) %s(...x%d)", dimErrMsg, name1, r1, name2, c2)
		}
	case cols2rows:
		if c1 != r2 {
			return fmt.Errorf("%s%s(...x%d) %s(%dx...)", dimErrMsg, name1, c1, name2, r2)
		}
	case cols2cols:
		if c1 != c2 {
			return fmt.Errorf("%s%s(...x%d) %s(...x%d)", dimErrMsg, name1, c1, name2, c2)
		}
	case rows2rows:
		if r1 != r2 {
			return fmt.Errorf("%s%s(%dx...) %s(%dx...)", dimErrMsg, name1, r1, name2, r2)
		}
	case rowsAndcols:
		if c1 != c2 || r1 != r2 {
			return fmt.Errorf("%s%s(%dx%d) %s(%dx%d)", dimErrMsg, name1, r1, c1, name2, r2, c2)
		}
	}
	return nil
}

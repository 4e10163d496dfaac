package gtsam

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// VerticalBlockMatrix carves a dense matrix into named column blocks over a
// single contiguous buffer. Block i covers the scalar columns
// [Offset(i), Offset(i+1)); views returned by Block and Range alias the
// backing buffer, so writes through them are visible to all other views.
//
// By convention the final block is one column wide and holds the right-hand
// side of the factor or conditional that owns the matrix.
type VerticalBlockMatrix struct {
	full    *mat.Dense
	offsets []int
	rows    int
}

// NewVerticalBlockMatrix allocates a zeroed rows×sum(widths) matrix with the
// given block widths. A zero row count is allowed and yields an empty matrix.
func NewVerticalBlockMatrix(widths []int, rows int) *VerticalBlockMatrix {
	if rows < 0 {
		panic(fmt.Sprintf("gtsam: negative row count %d", rows))
	}
	offsets := make([]int, len(widths)+1)
	for i, w := range widths {
		if w <= 0 {
			panic(fmt.Sprintf("gtsam: block width must be positive, got %d", w))
		}
		offsets[i+1] = offsets[i] + w
	}
	m := &VerticalBlockMatrix{offsets: offsets, rows: rows}
	if rows > 0 && offsets[len(offsets)-1] > 0 {
		m.full = mat.NewDense(rows, offsets[len(offsets)-1], nil)
	}
	return m
}

// Rows returns the row count shared by all blocks.
func (m *VerticalBlockMatrix) Rows() int { return m.rows }

// Cols returns the total scalar column count.
func (m *VerticalBlockMatrix) Cols() int { return m.offsets[len(m.offsets)-1] }

// NumBlocks returns the number of column blocks.
func (m *VerticalBlockMatrix) NumBlocks() int { return len(m.offsets) - 1 }

// Offset returns the scalar column at which block i starts.
func (m *VerticalBlockMatrix) Offset(i int) int {
	if i < 0 || i >= len(m.offsets) {
		panic(fmt.Sprintf("gtsam: block offset %d out of range [0,%d]", i, len(m.offsets)-1))
	}
	return m.offsets[i]
}

// Width returns the column width of block i.
func (m *VerticalBlockMatrix) Width(i int) int {
	m.check(i, i+1)
	return m.offsets[i+1] - m.offsets[i]
}

// Block returns a mutable view of block i.
func (m *VerticalBlockMatrix) Block(i int) *mat.Dense { return m.Range(i, i+1) }

// Range returns a mutable view spanning blocks [i, j).
func (m *VerticalBlockMatrix) Range(i, j int) *mat.Dense {
	m.check(i, j)
	return m.full.Slice(0, m.rows, m.offsets[i], m.offsets[j]).(*mat.Dense)
}

// Full returns a mutable view of the whole matrix.
func (m *VerticalBlockMatrix) Full() *mat.Dense { return m.full }

// RHS returns a mutable column view of the final one-wide block.
func (m *VerticalBlockMatrix) RHS() *mat.VecDense {
	last := m.NumBlocks() - 1
	if m.Width(last) != 1 {
		panic("gtsam: final block is not one column wide")
	}
	return m.full.ColView(m.offsets[last]).(*mat.VecDense)
}

// SetBlock copies a into block i.
func (m *VerticalBlockMatrix) SetBlock(i int, a mat.Matrix) {
	m.Block(i).Copy(a)
}

func (m *VerticalBlockMatrix) check(i, j int) {
	if i < 0 || j > m.NumBlocks() || i >= j {
		panic(fmt.Sprintf("gtsam: block range [%d,%d) out of range with %d blocks", i, j, m.NumBlocks()))
	}
	if m.full == nil {
		panic("gtsam: block view of an empty matrix")
	}
}

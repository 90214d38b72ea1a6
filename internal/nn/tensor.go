package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// OneHot encodes labels as rows with a single 1 at the label position.
func OneHot(labels []int, classes int) *mat.Dense {
	m := mat.NewDense(len(labels), classes, nil)
	for i, y := range labels {
		m.Set(i, y, 1)
	}
	return m
}

// RandN draws a rows×cols matrix of independent standard-normal values.
func RandN(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

// ConcatCols places a and b side by side. Both must have the same row count.
func ConcatCols(a, b mat.Matrix) *mat.Dense {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb {
		panic(mat.ErrShape)
	}
	out := mat.NewDense(ra, ca+cb, nil)
	out.Slice(0, ra, 0, ca).(*mat.Dense).Copy(a)
	out.Slice(0, ra, ca, ca+cb).(*mat.Dense).Copy(b)
	return out
}

// SplitCols is the inverse of ConcatCols at column k.
func SplitCols(m *mat.Dense, k int) (*mat.Dense, *mat.Dense) {
	r, c := m.Dims()
	left := mat.DenseCopyOf(m.Slice(0, r, 0, k))
	right := mat.DenseCopyOf(m.Slice(0, r, k, c))
	return left, right
}

// Argmax returns the column index of the largest value in each row.
func Argmax(m *mat.Dense) []int {
	r, _ := m.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

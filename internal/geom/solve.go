package geom

import (
	"errors"
	"math"
)

// ErrSingular is returned when a linear system has no unique solution.
var ErrSingular = errors.New("geom: singular system")

// pivotTolerance is the smallest pivot magnitude accepted before the system
// is treated as degenerate.
const pivotTolerance = 1e-12

// SolveLinear solves a·x = b by Gauss-Jordan elimination with partial
// pivoting. The inputs are not modified.
func SolveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	if len(a) != n {
		return nil, ErrSingular
	}

	// Augmented matrix [a | b]
	m := make([][]float64, n)
	for i := range a {
		if len(a[i]) != n {
			return nil, ErrSingular
		}
		row := make([]float64, n+1)
		copy(row, a[i])
		row[n] = b[i]
		m[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < pivotTolerance {
			return nil, ErrSingular
		}
		m[col], m[pivot] = m[pivot], m[col]

		inv := 1 / m[col][col]
		for k := col; k <= n; k++ {
			m[col][k] *= inv
		}
		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			f := m[row][col]
			if f == 0 {
				continue
			}
			for k := col; k <= n; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = m[i][n]
		if math.IsNaN(x[i]) || math.IsInf(x[i], 0) {
			return nil, ErrSingular
		}
	}
	return x, nil
}

// Package mat provides small dense-matrix routines for the regime filter.
//
// Dimensions in this codebase are tiny and fixed (7 for the latent state,
// 4 for the regime chain), so everything here is plain [][]float64 with no
// allocation tricks. The one hard requirement is that inversion and
// determinant never fail: near-singular inputs are regularized and pushed
// through rather than surfaced as errors, because a filter tick must always
// produce a usable gain.
package mat

import "math"

// RegularizationEps is added to the diagonal of a near-singular matrix
// before inversion retries.
const RegularizationEps = 1e-8

// New returns an n×m zero matrix.
func New(n, m int) [][]float64 {
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, m)
	}
	return a
}

// Identity returns the n×n identity matrix.
func Identity(n int) [][]float64 {
	a := New(n, n)
	for i := 0; i < n; i++ {
		a[i][i] = 1
	}
	return a
}

// Clone returns a deep copy of a.
func Clone(a [][]float64) [][]float64 {
	b := make([][]float64, len(a))
	for i := range a {
		b[i] = append([]float64(nil), a[i]...)
	}
	return b
}

// Mul returns a·b. Rows of b must match columns of a.
func Mul(a, b [][]float64) [][]float64 {
	n, k, m := len(a), len(b), len(b[0])
	c := New(n, m)
	for i := 0; i < n; i++ {
		for p := 0; p < k; p++ {
			if a[i][p] == 0 {
				continue
			}
			for j := 0; j < m; j++ {
				c[i][j] += a[i][p] * b[p][j]
			}
		}
	}
	return c
}

// MulVec returns a·v.
func MulVec(a [][]float64, v []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		for j := range v {
			out[i] += a[i][j] * v[j]
		}
	}
	return out
}

// Transpose returns aᵀ.
func Transpose(a [][]float64) [][]float64 {
	n, m := len(a), len(a[0])
	t := New(m, n)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			t[j][i] = a[i][j]
		}
	}
	return t
}

// Add returns a+b.
func Add(a, b [][]float64) [][]float64 {
	c := New(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			c[i][j] = a[i][j] + b[i][j]
		}
	}
	return c
}

// Sub returns a−b.
func Sub(a, b [][]float64) [][]float64 {
	c := New(len(a), len(a[0]))
	for i := range a {
		for j := range a[i] {
			c[i][j] = a[i][j] - b[i][j]
		}
	}
	return c
}

// SubVec returns a−b for vectors.
func SubVec(a, b []float64) []float64 {
	c := make([]float64, len(a))
	for i := range a {
		c[i] = a[i] - b[i]
	}
	return c
}

// Trace returns the sum of the diagonal of a square matrix.
func Trace(a [][]float64) float64 {
	var t float64
	for i := range a {
		t += a[i][i]
	}
	return t
}

// Inverse computes the inverse of a square matrix by Gauss-Jordan
// elimination with partial pivoting. It never fails: if a pivot collapses
// the matrix is regularized (diagonal bump) and elimination restarts; if
// the regularized attempt still collapses it falls back to a scaled
// identity so the caller always receives a finite, symmetric-positive-ish
// result.
func Inverse(a [][]float64) [][]float64 {
	n := len(a)
	if inv, ok := invert(a); ok {
		return inv
	}

	reg := Clone(a)
	for i := 0; i < n; i++ {
		reg[i][i] += RegularizationEps
	}
	if inv, ok := invert(reg); ok {
		return inv
	}

	// Last resort: identity scaled by the mean diagonal magnitude, which
	// keeps the Kalman gain bounded instead of exploding.
	scale := 0.0
	for i := 0; i < n; i++ {
		scale += math.Abs(a[i][i])
	}
	scale /= float64(n)
	if scale < RegularizationEps || !isFinite(scale) {
		scale = 1
	}
	out := Identity(n)
	for i := 0; i < n; i++ {
		out[i][i] = 1 / scale
	}
	return out
}

// Determinant returns det(a) via LU factorization, floored in magnitude at
// zero on non-finite breakdown. Callers needing a strictly positive value
// (Gaussian normalization) apply their own floor.
func Determinant(a [][]float64) float64 {
	n := len(a)
	lu := Clone(a)
	det := 1.0
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(lu[r][col]) > math.Abs(lu[pivot][col]) {
				pivot = r
			}
		}
		if lu[pivot][col] == 0 {
			return 0
		}
		if pivot != col {
			lu[pivot], lu[col] = lu[col], lu[pivot]
			det = -det
		}
		det *= lu[col][col]
		for r := col + 1; r < n; r++ {
			f := lu[r][col] / lu[col][col]
			for c := col; c < n; c++ {
				lu[r][c] -= f * lu[col][c]
			}
		}
	}
	if !isFinite(det) {
		return 0
	}
	return det
}

// Symmetrize overwrites a with (a+aᵀ)/2. Covariance updates accumulate
// asymmetry from float rounding; this keeps them usable as covariances.
func Symmetrize(a [][]float64) {
	for i := range a {
		for j := i + 1; j < len(a); j++ {
			v := (a[i][j] + a[j][i]) / 2
			a[i][j] = v
			a[j][i] = v
		}
	}
}

func invert(a [][]float64) ([][]float64, bool) {
	n := len(a)
	aug := New(n, 2*n)
	for i := 0; i < n; i++ {
		copy(aug[i], a[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, false
		}
		aug[pivot], aug[col] = aug[col], aug[pivot]

		pv := aug[col][col]
		for c := 0; c < 2*n; c++ {
			aug[col][c] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col || aug[r][col] == 0 {
				continue
			}
			f := aug[r][col]
			for c := 0; c < 2*n; c++ {
				aug[r][c] -= f * aug[col][c]
			}
		}
	}

	inv := New(n, n)
	for i := 0; i < n; i++ {
		copy(inv[i], aug[i][n:])
		for j := 0; j < n; j++ {
			if !isFinite(inv[i][j]) {
				return nil, false
			}
		}
	}
	return inv, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package utils

import (
	"gonum.org/v1/gonum/mat"
)

// Identity matrix.
func Eye(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}

// Build a symmetric matrix from the upper triangle of a square matrix,
// discarding the lower triangle. Numerical integration of a covariance
// ODE can leave the two triangles slightly out of agreement; the upper
// one wins.
func SymFromUpper(a mat.Matrix) *mat.SymDense {
	n, c := a.Dims()
	if n != c {
		panic(mat.ErrShape)
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, a.At(i, j))
		}
	}
	return out
}

// Clamp every negative element of xs to zero, in place.
func ClampNonNeg(xs []float64) {
	for i, x := range xs {
		if x < 0 {
			xs[i] = 0
		}
	}
}

// Report whether every element of a is exactly zero.
func AllZero(a []float64) bool {
	for _, x := range a {
		if x != 0 {
			return false
		}
	}
	return true
}

package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SetBlockDiag copies the square matrix b onto the diagonal of dst n times.
// It returns error if dst is not large enough to hold n copies of b.
func SetBlockDiag(dst *mat.Dense, b mat.Matrix, n int) error {
	br, bc := b.Dims()
	if br != bc {
		return fmt.Errorf("invalid block dimensions: [%d x %d]", br, bc)
	}

	r, c := dst.Dims()
	if r < n*br || c < n*bc {
		return fmt.Errorf("invalid destination dimensions: [%d x %d]", r, c)
	}

	for k := 0; k < n; k++ {
		dst.Slice(k*br, (k+1)*br, k*bc, (k+1)*bc).(*mat.Dense).Copy(b)
	}

	return nil
}

// SetSymBlock copies the symmetric matrix b onto the diagonal of dst starting at row and column off.
// It returns error if b does not fit into dst.
func SetSymBlock(dst *mat.SymDense, b mat.Symmetric, off int) error {
	bn := b.SymmetricDim()
	if off < 0 || dst.SymmetricDim() < off+bn {
		return fmt.Errorf("invalid block offset %d for destination dimension %d", off, dst.SymmetricDim())
	}

	for i := 0; i < bn; i++ {
		for j := i; j < bn; j++ {
			dst.SetSym(off+i, off+j, b.At(i, j))
		}
	}

	return nil
}

// SymFrom stores the symmetric part of the square matrix a, (a + a')/2, in dst.
// It returns error if a is not square or its size does not match dst.
func SymFrom(dst *mat.SymDense, a mat.Matrix) error {
	r, c := a.Dims()
	if r != c {
		return fmt.Errorf("matrix is not square: [%d x %d]", r, c)
	}

	if dst.SymmetricDim() != r {
		return fmt.Errorf("invalid destination dimension: %d != %d", dst.SymmetricDim(), r)
	}

	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			dst.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}

	return nil
}

// IsFinite returns true if all elements of m are neither NaN nor infinite.
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// MaxAsym returns the largest absolute difference between m and its transpose.
// It panics if m is not square.
func MaxAsym(m mat.Matrix) float64 {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrShape)
	}

	var d float64
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			d = math.Max(d, math.Abs(m.At(i, j)-m.At(j, i)))
		}
	}

	return d
}

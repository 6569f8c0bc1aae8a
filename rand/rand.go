package rand

import (
	"fmt"
	"math"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// NewSource returns a random number generator seeded with seed.
func NewSource(seed uint64) *xrand.Rand {
	return xrand.New(xrand.NewSource(seed))
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// Samples are generated from rnd; if rnd is nil the global source is used.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive or if SVD factorization of cov fails.
func WithCovN(rnd *xrand.Rand, cov mat.Symmetric, n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	u, err := CovFactor(cov)
	if err != nil {
		return nil, err
	}

	norm := xrand.NormFloat64
	if rnd != nil {
		norm = rnd.NormFloat64
	}

	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(u, samples)

	return samples, nil
}

// CovFactor returns matrix A such that A*A' = cov.
// SVD is used instead of Cholesky as Cholesky fails if cov is (almost) singular.
func CovFactor(cov mat.Symmetric) (*mat.Dense, error) {
	if cov == nil || cov.SymmetricDim() == 0 {
		return nil, fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	u.Mul(u, mat.NewDiagDense(len(vals), vals))

	return u, nil
}

package noise

import (
	"fmt"
	"time"

	"github.com/rmvision/go-singer/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Gaussian is gaussian noise
type Gaussian struct {
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov *mat.SymDense
	// factor satisfies factor*factor' = cov
	factor *mat.Dense
	// seed is the seed of rnd; zero means time based seed
	seed uint64
	// rnd generates standard normal samples
	rnd *xrand.Rand
}

// NewGaussian creates new Gaussian noise with given mean and covariance.
// The noise is seeded from the current time.
// It returns error if it fails to create Gaussian.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	return NewGaussianWithSeed(mean, cov, 0)
}

// NewGaussianWithSeed creates new Gaussian noise whose samples are drawn from a source seeded with seed.
// Zero seed selects a time based seed.
// It returns error if the mean and covariance dimensions do not match or cov can't be factorized.
func NewGaussianWithSeed(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil {
		return nil, fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	if len(mean) != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid Gaussian dimensions: mean %d, cov %d", len(mean), cov.SymmetricDim())
	}

	factor, err := rand.CovFactor(cov)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gaussian noise: %v", err)
	}

	m := make([]float64, len(mean))
	copy(m, mean)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	g := &Gaussian{
		mean:   m,
		cov:    c,
		factor: factor,
		seed:   seed,
	}
	g.rnd = g.newSource()

	return g, nil
}

// NewDiagonal creates zero-mean Gaussian noise with independent components whose variances are given by vars.
func NewDiagonal(vars []float64, seed uint64) (*Gaussian, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("invalid variances: %v", vars)
	}

	cov := mat.NewSymDense(len(vars), nil)
	for i, v := range vars {
		if v < 0 {
			return nil, fmt.Errorf("negative variance at %d: %f", i, v)
		}
		cov.SetSym(i, i, v)
	}

	return NewGaussianWithSeed(make([]float64, len(vars)), cov, seed)
}

func (g *Gaussian) newSource() *xrand.Rand {
	seed := g.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return rand.NewSource(seed)
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	n := len(g.mean)
	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, g.rnd.NormFloat64())
	}

	sample := mat.NewVecDense(n, nil)
	sample.MulVec(g.factor, z)
	sample.AddVec(sample, mat.NewVecDense(n, g.Mean()))

	return sample
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, len(g.mean))
	copy(mean, g.mean)

	return mean
}

// Reset resets Gaussian noise source.
// Seeded noise replays the same sequence of samples after Reset.
func (g *Gaussian) Reset() error {
	g.rnd = g.newSource()

	return nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}

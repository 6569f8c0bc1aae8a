package matrix

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSetBlockDiag(t *testing.T) {
	assert := assert.New(t)

	b := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	dst := mat.NewDense(4, 4, nil)

	err := SetBlockDiag(dst, b, 2)
	assert.NoError(err)

	exp := mat.NewDense(4, 4, []float64{
		1, 2, 0, 0,
		3, 4, 0, 0,
		0, 0, 1, 2,
		0, 0, 3, 4,
	})
	assert.True(mat.Equal(exp, dst))

	err = SetBlockDiag(dst, b, 3)
	assert.Error(err)

	err = SetBlockDiag(dst, mat.NewDense(2, 3, nil), 1)
	assert.Error(err)
}

func TestSetSymBlock(t *testing.T) {
	assert := assert.New(t)

	b := mat.NewSymDense(2, []float64{1, 2, 2, 4})
	dst := mat.NewSymDense(6, nil)

	for k := 0; k < 3; k++ {
		assert.NoError(SetSymBlock(dst, b, 2*k))
	}
	for k := 0; k < 3; k++ {
		assert.Equal(1.0, dst.At(2*k, 2*k))
		assert.Equal(2.0, dst.At(2*k, 2*k+1))
		assert.Equal(2.0, dst.At(2*k+1, 2*k))
		assert.Equal(4.0, dst.At(2*k+1, 2*k+1))
	}
	assert.Equal(0.0, dst.At(0, 2))

	assert.Error(SetSymBlock(dst, b, 5))
	assert.Error(SetSymBlock(dst, b, -1))
}

func TestSymFrom(t *testing.T) {
	assert := assert.New(t)

	a := mat.NewDense(2, 2, []float64{1, 2, 4, 3})
	dst := mat.NewSymDense(2, nil)

	err := SymFrom(dst, a)
	assert.NoError(err)
	assert.Equal(3.0, dst.At(0, 1))
	assert.Equal(3.0, dst.At(1, 0))
	assert.Equal(1.0, dst.At(0, 0))
	assert.Equal(0.0, MaxAsym(dst))

	err = SymFrom(dst, mat.NewDense(2, 3, nil))
	assert.Error(err)

	err = SymFrom(mat.NewSymDense(3, nil), a)
	assert.Error(err)
}

func TestIsFinite(t *testing.T) {
	assert := assert.New(t)

	assert.True(IsFinite(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	assert.False(IsFinite(mat.NewDense(1, 2, []float64{1, math.NaN()})))
	assert.False(IsFinite(mat.NewVecDense(2, []float64{math.Inf(-1), 0})))
}

func TestMaxAsym(t *testing.T) {
	assert := assert.New(t)

	a := mat.NewDense(2, 2, []float64{1, 2, 2.5, 3})
	assert.InDelta(0.5, MaxAsym(a), 1e-15)

	assert.Panics(func() { MaxAsym(mat.NewDense(2, 3, nil)) })
}

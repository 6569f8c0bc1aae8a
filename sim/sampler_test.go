package sim

import (
	"testing"

	"github.com/rmvision/go-singer/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var line = ConstantVelocity{P0: r3.Vec{X: 0.5, Y: 4, Z: 0.2}, V: r3.Vec{X: 0.3, Y: -0.1, Z: 0}}

func TestNewSampler(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSampler(line, 8)
	assert.NotNil(s)
	assert.NoError(err)

	n, err := noise.NewZero(2)
	require.NoError(t, err)

	for _, test := range []struct {
		traj   Trajectory
		stepMs float64
		opts   []SamplerOption
	}{
		{traj: nil, stepMs: 8},
		{traj: line, stepMs: 0},
		{traj: line, stepMs: -8},
		{traj: line, stepMs: 8, opts: []SamplerOption{WithJitter(8, 1)}},
		{traj: line, stepMs: 8, opts: []SamplerOption{WithJitter(-1, 1)}},
		{traj: line, stepMs: 8, opts: []SamplerOption{WithNoise(n)}},
		{traj: line, stepMs: 8, opts: []SamplerOption{WithNoise(nil)}},
		{traj: line, stepMs: 8, opts: []SamplerOption{WithTargetSwitch(0, r3.Vec{})}},
	} {
		s, err := NewSampler(test.traj, test.stepMs, test.opts...)
		assert.Nil(s)
		assert.Error(err)
	}
}

func TestSamplerNoiseless(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSampler(line, 10)
	require.NoError(t, err)
	assert.IsType(&noise.Zero{}, s.Noise())
	assert.Equal([]float64{0, 0, 0}, s.Noise().Mean())

	samples := s.Samples(5)
	assert.Len(samples, 5)
	assert.Equal(0.0, samples[0].Dt)
	assert.Equal(0.0, samples[0].T)
	assert.Equal(line.P0, samples[0].Truth)

	for i, sample := range samples {
		if i > 0 {
			assert.Equal(10.0, sample.Dt)
		}
		assert.InDelta(float64(i)*0.01, sample.T, 1e-15)
		assert.Equal(sample.Truth, sample.Measured)
		assert.False(sample.Switched)
	}
}

func TestSamplerDeterministic(t *testing.T) {
	assert := assert.New(t)

	newSampler := func() *Sampler {
		n, err := noise.NewDiagonal([]float64{1e-4, 1e-4, 1e-4}, 3)
		require.NoError(t, err)

		s, err := NewSampler(line, 8, WithNoise(n), WithJitter(2, 5))
		require.NoError(t, err)

		return s
	}

	a := newSampler().Samples(50)
	b := newSampler().Samples(50)
	assert.Equal(a, b)

	for _, sample := range a[1:] {
		assert.GreaterOrEqual(sample.Dt, 6.0)
		assert.LessOrEqual(sample.Dt, 10.0)
		assert.NotEqual(sample.Truth, sample.Measured)

		truth, _, _ := line.State(sample.T)
		assert.Equal(truth, sample.Truth)
	}
}

func TestSamplerTargetSwitch(t *testing.T) {
	assert := assert.New(t)

	offset := r3.Vec{X: 3, Y: 1, Z: -1}
	s, err := NewSampler(line, 8, WithTargetSwitch(4, offset))
	require.NoError(t, err)

	for i, sample := range s.Samples(8) {
		truth, _, _ := line.State(sample.T)
		if i < 4 {
			assert.False(sample.Switched)
			assert.Equal(truth, sample.Measured)
			continue
		}
		assert.True(sample.Switched)
		assert.Equal(r3.Add(truth, offset), sample.Measured)
	}
}

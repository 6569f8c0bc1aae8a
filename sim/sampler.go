package sim

import (
	"fmt"
	"math"

	filter "github.com/rmvision/go-singer"
	"github.com/rmvision/go-singer/model"
	"github.com/rmvision/go-singer/noise"
	"github.com/rmvision/go-singer/rand"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sample is a single simulated measurement
type Sample struct {
	// T is the sampling time [s]
	T float64
	// Dt is the time elapsed since the previous sample [ms]
	Dt float64
	// Truth is the true target position
	Truth r3.Vec
	// Measured is the noisy position reported by the sensor
	Measured r3.Vec
	// Switched is true once the sensor locked onto a different target
	Switched bool
}

// SamplerOption configures Sampler
type SamplerOption func(*Sampler) error

// WithNoise adds Cartesian measurement noise n to every sample.
func WithNoise(n filter.Noise) SamplerOption {
	return func(s *Sampler) error {
		if n == nil || len(n.Mean()) != model.Axes {
			return fmt.Errorf("invalid measurement noise: %v", n)
		}
		s.noise = n

		return nil
	}
}

// WithJitter perturbs every sampling interval by a uniformly distributed
// offset from [-jitterMs, jitterMs] drawn from a source seeded with seed.
func WithJitter(jitterMs float64, seed uint64) SamplerOption {
	return func(s *Sampler) error {
		if jitterMs < 0 || math.IsNaN(jitterMs) || jitterMs >= s.stepMs {
			return fmt.Errorf("invalid jitter: %v ms", jitterMs)
		}
		s.jitterMs = jitterMs
		s.rnd = rand.NewSource(seed)

		return nil
	}
}

// WithTargetSwitch makes the sensor lock onto another target displaced by offset
// starting with the sample at index at.
func WithTargetSwitch(at int, offset r3.Vec) SamplerOption {
	return func(s *Sampler) error {
		if at < 1 {
			return fmt.Errorf("invalid target switch index: %d", at)
		}
		s.switchAt = at
		s.switchOffset = offset

		return nil
	}
}

// Sampler samples a trajectory at a nominal rate the way a sensor would.
type Sampler struct {
	traj         Trajectory
	stepMs       float64
	noise        filter.Noise
	jitterMs     float64
	rnd          *xrand.Rand
	switchAt     int
	switchOffset r3.Vec
	k            int
	t            float64
}

// NewSampler creates new Sampler of trajectory traj with nominal sampling interval stepMs and returns it.
// Measurements are noiseless unless WithNoise is supplied.
// It returns error if traj is nil, stepMs is not positive or any of the options fails.
func NewSampler(traj Trajectory, stepMs float64, opts ...SamplerOption) (*Sampler, error) {
	if traj == nil {
		return nil, fmt.Errorf("invalid trajectory: %v", traj)
	}

	if !(stepMs > 0) || math.IsInf(stepMs, 0) {
		return nil, fmt.Errorf("invalid sampling interval: %v ms", stepMs)
	}

	z, err := noise.NewZero(model.Axes)
	if err != nil {
		return nil, err
	}

	s := &Sampler{
		traj:   traj,
		stepMs: stepMs,
		noise:  z,
	}

	for _, apply := range opts {
		if err := apply(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Next returns the next sample. The first sample is taken at t = 0 with zero Dt.
func (s *Sampler) Next() Sample {
	var dt float64
	if s.k > 0 {
		dt = s.stepMs
		if s.rnd != nil && s.jitterMs > 0 {
			dt += s.jitterMs * (2*s.rnd.Float64() - 1)
		}
		s.t += dt / 1000.0
	}

	truth, _, _ := s.traj.State(s.t)

	switched := s.switchAt > 0 && s.k >= s.switchAt
	if switched {
		truth = r3.Add(truth, s.switchOffset)
	}

	w := s.noise.Sample()
	measured := r3.Add(truth, r3.Vec{X: w.AtVec(0), Y: w.AtVec(1), Z: w.AtVec(2)})

	sample := Sample{
		T:        s.t,
		Dt:       dt,
		Truth:    truth,
		Measured: measured,
		Switched: switched,
	}
	s.k++

	return sample
}

// Noise returns measurement noise of the sampler
func (s *Sampler) Noise() filter.Noise {
	return s.noise
}

// Samples returns the next n samples.
func (s *Sampler) Samples(n int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = s.Next()
	}

	return samples
}

package model

import (
	"fmt"
	"math"

	"github.com/rmvision/go-singer/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// TransitionBlock returns the per axis state transition matrix of the Singer model
// discretised over time step dt for maneuver decorrelation rate alpha:
//
//	F = [1 dt (e + alpha*dt - 1)/alpha^2]
//	    [0  1          (1 - e)/alpha    ]
//	    [0  0                e          ]
//
// where e = exp(-alpha*dt).
func TransitionBlock(alpha, dt float64) *mat.Dense {
	f22 := math.Exp(-alpha * dt)
	f12 := (1 - f22) / alpha
	f02 := (f22 + alpha*dt - 1) / (alpha * alpha)

	return mat.NewDense(BlockDim, BlockDim, []float64{
		1, dt, f02,
		0, 1, f12,
		0, 0, f22,
	})
}

// ControlBlock returns the per axis gain applied to the mean acceleration over time step dt.
// Together with TransitionBlock it propagates the mean acceleration unchanged
// while position and velocity integrate it.
func ControlBlock(alpha, dt float64) []float64 {
	e := math.Exp(-alpha * dt)

	return []float64{
		1 / alpha * (-dt + alpha*dt*dt/2 + (1-e)/alpha),
		dt - (1-e)/alpha,
		1 - e,
	}
}

// NoiseBlock returns the per axis process noise covariance of the Singer model
// driven by unit intensity white noise and discretised over time step dt.
// Scaling it by 2*alpha*sigma^2 gives the covariance for acceleration variance sigma^2.
func NoiseBlock(alpha, dt float64) *mat.SymDense {
	a2 := alpha * alpha
	a3 := a2 * alpha
	a4 := a3 * alpha
	a5 := a4 * alpha
	t2 := dt * dt
	t3 := t2 * dt
	e1 := math.Exp(-alpha * dt)
	e2 := e1 * e1

	rho00 := 1 / (2 * a5) * (1 - e2 + 2*alpha*dt + 2*a3*t3/3 - 2*a2*t2 - 4*alpha*dt*e1)
	rho01 := 1 / (2 * a4) * (1 + e2 - 2*alpha*dt - 2*e1 + a2*t2 + 2*alpha*dt*e1)
	rho02 := 1 / (2 * a3) * (1 - e2 - 2*alpha*dt*e1)
	rho11 := 1 / (2 * a3) * (-3 - e2 + 2*alpha*dt + 4*e1)
	rho21 := 1 / (2 * a2) * (1 + e2 - 2*e1)
	rho22 := 1 / (2 * alpha) * (1 - e2)

	return mat.NewSymDense(BlockDim, []float64{
		rho00, rho01, rho02,
		rho01, rho11, rho21,
		rho02, rho21, rho22,
	})
}

// Singer is the Singer maneuvering target model with adaptive acceleration variance.
// Acceleration on every axis is an exponentially correlated random process
// reverting to the previous acceleration estimate.
type Singer struct {
	// alpha is maneuver decorrelation rate [1/s]
	alpha float64
	// aMax is expected acceleration bound per axis
	aMax [Axes]float64
}

// NewSinger creates new Singer model and returns it.
// It returns error if alpha is not positive or any of the acceleration bounds is not positive.
func NewSinger(alpha float64, aMax [Axes]float64) (*Singer, error) {
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return nil, fmt.Errorf("invalid maneuver decorrelation rate: %v", alpha)
	}

	for i, a := range aMax {
		if !(a > 0) || math.IsInf(a, 0) {
			return nil, fmt.Errorf("invalid acceleration bound on axis %d: %v", i, a)
		}
	}

	return &Singer{alpha: alpha, aMax: aMax}, nil
}

// Alpha returns maneuver decorrelation rate
func (s *Singer) Alpha() float64 { return s.alpha }

// AMax returns per axis acceleration bounds
func (s *Singer) AMax() [Axes]float64 { return s.aMax }

// Sigma2 returns per axis acceleration variance given the current acceleration estimate accel.
// The variance shrinks as |accel| approaches the bound and grows again once the bound is exceeded.
func (s *Singer) Sigma2(accel r3.Vec) [Axes]float64 {
	var sigma2 [Axes]float64
	a := Components(accel)
	for i := range sigma2 {
		d := s.aMax[i] - math.Abs(a[i])
		sigma2[i] = (4/math.Pi - 1) * d * d
	}

	return sigma2
}

// Exceeded returns the axes on which |accel| is larger than the configured bound.
func (s *Singer) Exceeded(accel r3.Vec) []int {
	var axes []int
	a := Components(accel)
	for i := range a {
		if math.Abs(a[i]) > s.aMax[i] {
			axes = append(axes, i)
		}
	}

	return axes
}

// Discretize builds the discrete-time model for time step dt [s] given the current acceleration estimate accel.
// It returns error if dt is not a positive finite number.
func (s *Singer) Discretize(dt float64, accel r3.Vec) (*SingerStep, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("invalid time step: %v", dt)
	}

	f := mat.NewDense(StateDim, StateDim, nil)
	if err := matrix.SetBlockDiag(f, TransitionBlock(s.alpha, dt), Axes); err != nil {
		return nil, err
	}

	sigma2 := s.Sigma2(accel)
	cb := ControlBlock(s.alpha, dt)
	rho := NoiseBlock(s.alpha, dt)
	a := Components(accel)

	c := mat.NewVecDense(StateDim, nil)
	q := mat.NewSymDense(StateDim, nil)
	qi := mat.NewSymDense(BlockDim, nil)
	for i := 0; i < Axes; i++ {
		for k := 0; k < BlockDim; k++ {
			c.SetVec(i*BlockDim+k, cb[k]*a[i])
		}

		qi.ScaleSym(2*s.alpha*sigma2[i], rho)
		if err := matrix.SetSymBlock(q, qi, i*BlockDim); err != nil {
			return nil, err
		}
	}

	return &SingerStep{
		dt:     dt,
		f:      f,
		c:      c,
		q:      q,
		sigma2: sigma2,
	}, nil
}

// SingerStep is the Singer model discretised over a single time step.
// It implements filter.StepModel.
type SingerStep struct {
	dt     float64
	f      *mat.Dense
	c      *mat.VecDense
	q      *mat.SymDense
	sigma2 [Axes]float64
}

// Propagate propagates state x over the time step: F*x + c.
// Input vector u is ignored: the control contribution is part of the step.
// wd is added to the propagated state if its length matches the state.
func (m *SingerStep) Propagate(x, u, wd mat.Vector) (mat.Vector, error) {
	if x == nil || x.Len() != StateDim {
		return nil, fmt.Errorf("invalid state vector")
	}

	out := mat.NewVecDense(StateDim, nil)
	out.MulVec(m.f, x)
	out.AddVec(out, m.c)

	if wd != nil && wd.Len() == StateDim {
		out.AddVec(out, wd)
	}

	return out, nil
}

// Observe returns the spherical measurement of the position stored in state x.
// wn is added to the output as a noise vector.
func (m *SingerStep) Observe(x, u, wn mat.Vector) (mat.Vector, error) {
	if x == nil || x.Len() != StateDim {
		return nil, fmt.Errorf("invalid state vector")
	}

	y, err := Measure(Position(x))
	if err != nil {
		return nil, err
	}

	if wn != nil && wn.Len() == OutputDim {
		y.AddVec(y, wn)
	}

	return y, nil
}

// SystemDims returns internal state length (nx), input vector length (nu),
// output length (ny) and disturbance vector length (nz).
func (m *SingerStep) SystemDims() (nx, nu, ny, nz int) {
	return StateDim, 0, OutputDim, 0
}

// SystemMatrix returns state transition matrix
func (m *SingerStep) SystemMatrix() mat.Matrix {
	f := &mat.Dense{}
	f.CloneFrom(m.f)

	return f
}

// ControlVector returns the control contribution added to the propagated state
func (m *SingerStep) ControlVector() mat.Vector {
	c := &mat.VecDense{}
	c.CloneFromVec(m.c)

	return c
}

// StateCov returns process noise covariance
func (m *SingerStep) StateCov() mat.Symmetric {
	q := mat.NewSymDense(StateDim, nil)
	q.CopySym(m.q)

	return q
}

// Dt returns the step length [s]
func (m *SingerStep) Dt() float64 { return m.dt }

// Sigma2 returns per axis acceleration variance used to build the process noise
func (m *SingerStep) Sigma2() [Axes]float64 { return m.sigma2 }

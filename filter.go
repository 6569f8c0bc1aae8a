package filter

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Propagator propagates internal state of the system to the next step
type Propagator interface {
	// Propagate propagates internal state of the system to the next step
	Propagate(x, u, wd mat.Vector) (mat.Vector, error)
}

// Observer observes external state (output) of the system
type Observer interface {
	// Observe observes external state of the system
	Observe(x, u, wn mat.Vector) (mat.Vector, error)
}

// Model is a model of a dynamical system
type Model interface {
	// Propagator is system propagator
	Propagator
	// Observer is system observer
	Observer
	// SystemDims returns internal state length (nx), input vector length (nu),
	// external/observable/output state length (ny) and disturbance vector length (nz).
	SystemDims() (nx, nu, ny, nz int)
}

// StepModel is a dynamical system model discretised for a single time step.
// Its propagation dynamics are rebuilt whenever the step length changes.
type StepModel interface {
	// Model is a model of a dynamical system
	Model
	// SystemMatrix returns state propagation matrix.
	// It returns nil if the propagation is nonlinear.
	SystemMatrix() mat.Matrix
	// StateCov returns state (process) noise covariance accumulated over the step
	StateCov() mat.Symmetric
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

// Tracker estimates position, velocity and acceleration of a moving target
// from a stream of position measurements.
type Tracker interface {
	// Update corrects the track with measurement z taken dtMs milliseconds
	// after the previous one and returns the filtered position.
	Update(z r3.Vec, dtMs float64) (r3.Vec, error)
	// Predict extrapolates the current position dt seconds ahead.
	Predict(dt float64) r3.Vec
}

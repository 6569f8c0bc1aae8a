package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Trajectory is a target motion in the sensor frame
type Trajectory interface {
	// State returns position, velocity and acceleration of the target at time t [s]
	State(t float64) (p, v, a r3.Vec)
}

// ConstantVelocity is a target moving along a straight line with constant speed
type ConstantVelocity struct {
	// P0 is position at t = 0
	P0 r3.Vec
	// V is velocity
	V r3.Vec
}

// State returns position, velocity and acceleration of the target at time t.
func (c ConstantVelocity) State(t float64) (p, v, a r3.Vec) {
	return r3.Add(c.P0, r3.Scale(t, c.V)), c.V, r3.Vec{}
}

// Weave is a target drifting with constant velocity while weaving sinusoidally around its course:
//
//	p(t) = Center + Drift*t + Amplitude*sin(Omega*t)
type Weave struct {
	Center    r3.Vec
	Drift     r3.Vec
	Amplitude r3.Vec
	// Omega is angular frequency of the maneuver [rad/s]
	Omega float64
}

// NewWeave creates new Weave trajectory and returns it.
// It returns error if omega is negative or not finite.
func NewWeave(center, drift, amplitude r3.Vec, omega float64) (*Weave, error) {
	if omega < 0 || math.IsNaN(omega) || math.IsInf(omega, 0) {
		return nil, fmt.Errorf("invalid maneuver frequency: %v", omega)
	}

	return &Weave{
		Center:    center,
		Drift:     drift,
		Amplitude: amplitude,
		Omega:     omega,
	}, nil
}

// State returns position, velocity and acceleration of the target at time t.
func (w *Weave) State(t float64) (p, v, a r3.Vec) {
	sin, cos := math.Sincos(w.Omega * t)

	p = r3.Add(r3.Add(w.Center, r3.Scale(t, w.Drift)), r3.Scale(sin, w.Amplitude))
	v = r3.Add(w.Drift, r3.Scale(w.Omega*cos, w.Amplitude))
	a = r3.Scale(-w.Omega*w.Omega*sin, w.Amplitude)

	return p, v, a
}

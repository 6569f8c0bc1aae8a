package model

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Axes is the number of spatial axes tracked
	Axes = 3
	// BlockDim is the per axis state length: position, velocity, acceleration
	BlockDim = 3
	// StateDim is the full state length
	StateDim = Axes * BlockDim
	// OutputDim is the measurement length
	OutputDim = 3
)

// Offsets of the kinematic quantities inside an axis block.
const (
	PosIdx = iota
	VelIdx
	AccIdx
)

// NewState returns the state vector for position p, velocity v and acceleration a.
// State is interleaved per axis: [px vx ax py vy ay pz vz az].
func NewState(p, v, a r3.Vec) *mat.VecDense {
	x := mat.NewVecDense(StateDim, nil)
	pa, va, aa := Components(p), Components(v), Components(a)
	for i := 0; i < Axes; i++ {
		x.SetVec(i*BlockDim+PosIdx, pa[i])
		x.SetVec(i*BlockDim+VelIdx, va[i])
		x.SetVec(i*BlockDim+AccIdx, aa[i])
	}

	return x
}

// Position returns the position stored in state x.
func Position(x mat.Vector) r3.Vec { return axisView(x, PosIdx) }

// Velocity returns the velocity stored in state x.
func Velocity(x mat.Vector) r3.Vec { return axisView(x, VelIdx) }

// Acceleration returns the acceleration stored in state x.
func Acceleration(x mat.Vector) r3.Vec { return axisView(x, AccIdx) }

func axisView(x mat.Vector, off int) r3.Vec {
	return r3.Vec{
		X: x.AtVec(0*BlockDim + off),
		Y: x.AtVec(1*BlockDim + off),
		Z: x.AtVec(2*BlockDim + off),
	}
}

// Components returns the coordinates of v as an array indexed by axis.
func Components(v r3.Vec) [Axes]float64 {
	return [Axes]float64{v.X, v.Y, v.Z}
}

package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// InitCond implements filter.InitCond
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) (*InitCond, error) {
	if state == nil || cov == nil {
		return nil, fmt.Errorf("invalid initial condition: state=%v, cov=%v", state, cov)
	}

	if state.Len() != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid initial condition dimensions: state %d, cov %d", state.Len(), cov.SymmetricDim())
	}

	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}, nil
}

// NewPoseInitCond returns initial condition of a target resting at pose p:
// velocity and acceleration are zero and the covariance is identity.
func NewPoseInitCond(p r3.Vec) *InitCond {
	cov := mat.NewSymDense(StateDim, nil)
	for i := 0; i < StateDim; i++ {
		cov.SetSym(i, i, 1.0)
	}

	return &InitCond{
		state: NewState(p, r3.Vec{}, r3.Vec{}),
		cov:   cov,
	}
}

// State returns initial state
func (c *InitCond) State() mat.Vector {
	state := &mat.VecDense{}
	state.CloneFromVec(c.state)

	return state
}

// Cov returns initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}

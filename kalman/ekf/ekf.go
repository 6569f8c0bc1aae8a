package ekf

import (
	"errors"
	"fmt"
	"math"

	filter "github.com/rmvision/go-singer"
	"github.com/rmvision/go-singer/estimate"
	"github.com/rmvision/go-singer/matrix"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingularInnovation is returned when innovation covariance is not positive definite
	ErrSingularInnovation = errors.New("innovation covariance is not positive definite")
	// ErrLinearize is returned when system output can't be linearized around the state
	ErrLinearize = errors.New("failed to linearize system output")
)

// JacFunc defines jacobian function to calculate Jacobian matrix
type JacFunc func(m filter.Model, u mat.Vector) func(y, x []float64)

// EKF is Extended Kalman Filter.
// Its propagation dynamics are supplied on every Predict call which allows
// the model to change between the steps, e.g. when the sampling interval is irregular.
type EKF struct {
	// r is output noise a.k.a. measurement noise
	r filter.Noise
	// FJacFn is propagation Jacobian function used when a model has no system matrix
	FJacFn JacFunc
	// f is EKF propagation matrix
	f *mat.Dense
	// HJacFn is observation Jacobian function
	HJacFn JacFunc
	// h is EKF observation matrix
	h *mat.Dense
	// p is the EKF covariance matrix
	p *mat.SymDense
	// pNext is the EKF predicted covariance matrix
	pNext *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new EKF and returns it.
// It accepts the following parameters:
// - init:   initial condition of the filter
// - r:      output a.k.a. measurement noise
// It returns error if either of the following conditions is met:
// - initial condition covariance is empty
// - output noise covariance is empty
func New(init filter.InitCond, r filter.Noise) (*EKF, error) {
	if init == nil || init.Cov() == nil || init.Cov().SymmetricDim() == 0 {
		return nil, fmt.Errorf("invalid initial condition: %v", init)
	}
	nx := init.Cov().SymmetricDim()

	if r == nil || r.Cov().SymmetricDim() == 0 {
		return nil, fmt.Errorf("invalid output noise: %v", r)
	}
	ny := r.Cov().SymmetricDim()

	// initialize covariance matrix to initial condition covariance
	p := mat.NewSymDense(nx, nil)
	p.CopySym(init.Cov())

	// propagation matrix starts as identity
	f := mat.NewDense(nx, nx, nil)
	for i := 0; i < nx; i++ {
		f.Set(i, i, 1.0)
	}

	return &EKF{
		r:      r,
		FJacFn: propagationJac,
		f:      f,
		HJacFn: observationJac,
		h:      mat.NewDense(ny, nx, nil),
		p:      p,
		pNext:  mat.NewSymDense(nx, nil),
		inn:    mat.NewVecDense(ny, nil),
		k:      mat.NewDense(nx, ny, nil),
	}, nil
}

func propagationJac(m filter.Model, u mat.Vector) func([]float64, []float64) {
	return func(xOut, xNow []float64) {
		xNext, err := m.Propagate(mat.NewVecDense(len(xNow), xNow), u, nil)
		for i := range xOut {
			if err != nil {
				xOut[i] = math.NaN()
				continue
			}
			xOut[i] = xNext.AtVec(i)
		}
	}
}

func observationJac(m filter.Model, u mat.Vector) func([]float64, []float64) {
	return func(y, xNow []float64) {
		yNext, err := m.Observe(mat.NewVecDense(len(xNow), xNow), u, nil)
		for i := range y {
			if err != nil {
				y[i] = math.NaN()
				continue
			}
			y[i] = yNext.AtVec(i)
		}
	}
}

func (k *EKF) checkModel(m filter.Model, x mat.Vector) error {
	if m == nil {
		return fmt.Errorf("invalid model: %v", m)
	}

	nx, _, ny, _ := m.SystemDims()
	if nx != k.p.SymmetricDim() || ny != k.inn.Len() {
		return fmt.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if x == nil || x.Len() != nx {
		return fmt.Errorf("invalid state supplied: %v", x)
	}

	return nil
}

// Predict calculates the next system state given the state x and input u and returns its estimate.
// The state is propagated by step model m whose system matrix, if present, is used as the
// propagation Jacobian; otherwise the Jacobian is estimated by central differences.
// It returns error if it fails to propagate x to the next step.
func (k *EKF) Predict(m filter.StepModel, x, u mat.Vector) (filter.Estimate, error) {
	if err := k.checkModel(m, x); err != nil {
		return nil, err
	}

	// propagate input state to the next step
	xNext, err := m.Propagate(x, u, nil)
	if err != nil {
		return nil, fmt.Errorf("system state propagation failed: %w", err)
	}

	if a := m.SystemMatrix(); a != nil {
		k.f.Copy(a)
	} else {
		fd.Jacobian(k.f, k.FJacFn(m, u), mat.Col(nil, 0, x), &fd.JacobianSettings{
			Formula: fd.Central,
		})
	}

	cov := &mat.Dense{}
	cov.Mul(k.f, k.p)
	cov.Mul(cov, k.f.T())

	if q := m.StateCov(); q != nil && q.SymmetricDim() == k.p.SymmetricDim() {
		cov.Add(cov, q)
	}

	if err := matrix.SymFrom(k.pNext, cov); err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(xNext, k.pNext)
}

// Innovation is the difference between a measurement and the predicted system output
// together with its covariance.
type Innovation struct {
	// Y is innovation vector
	Y *mat.VecDense
	// S is innovation covariance
	S *mat.SymDense
	// H is observation Jacobian
	H    *mat.Dense
	chol mat.Cholesky
}

// NIS returns the normalized innovation squared: Y' * inv(S) * Y.
// For a consistent filter it is chi-squared distributed with len(Y) degrees of freedom.
func (in *Innovation) NIS() float64 {
	sy := mat.NewVecDense(in.Y.Len(), nil)
	if err := in.chol.SolveVecTo(sy, in.Y); err != nil {
		return math.Inf(1)
	}

	return mat.Dot(in.Y, sy)
}

// Innovate calculates the innovation of measurement z with respect to the predicted state x.
// It must be called after Predict. It returns ErrSingularInnovation if the innovation
// covariance can't be factorized and ErrLinearize if the observation Jacobian is not finite.
func (k *EKF) Innovate(m filter.Model, x, u, z mat.Vector) (*Innovation, error) {
	if err := k.checkModel(m, x); err != nil {
		return nil, err
	}

	ny := k.inn.Len()
	if z == nil || z.Len() != ny {
		return nil, fmt.Errorf("invalid measurement supplied: %v", z)
	}

	// observe system output in the next step
	y, err := m.Observe(x, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to observe system output: %w", err)
	}

	// calculate observation Jacobian matrix
	h := mat.NewDense(ny, x.Len(), nil)
	fd.Jacobian(h, k.HJacFn(m, u), mat.Col(nil, 0, x), &fd.JacobianSettings{
		Formula: fd.Central,
	})
	if !matrix.IsFinite(h) {
		return nil, fmt.Errorf("%w at %v", ErrLinearize, mat.Formatted(x.T()))
	}

	// H*P*H' + R
	hp := &mat.Dense{}
	hp.Mul(h, k.pNext)
	pyy := &mat.Dense{}
	pyy.Mul(hp, h.T())
	pyy.Add(pyy, k.r.Cov())

	s := mat.NewSymDense(ny, nil)
	if err := matrix.SymFrom(s, pyy); err != nil {
		return nil, err
	}

	inn := &Innovation{
		Y: mat.NewVecDense(ny, nil),
		S: s,
		H: h,
	}
	inn.Y.SubVec(z, y)

	if ok := inn.chol.Factorize(s); !ok {
		return nil, ErrSingularInnovation
	}

	return inn, nil
}

// Correct corrects the predicted state x using innovation inn and returns corrected estimate.
// Covariance is updated using the Joseph form.
// It returns error if either invalid state or innovation was supplied.
func (k *EKF) Correct(x mat.Vector, inn *Innovation) (filter.Estimate, error) {
	nx := k.p.SymmetricDim()

	if x == nil || x.Len() != nx {
		return nil, fmt.Errorf("invalid state supplied: %v", x)
	}

	if inn == nil || inn.Y.Len() != k.inn.Len() {
		return nil, fmt.Errorf("invalid innovation supplied: %v", inn)
	}

	// K' = inv(S) * H * P
	hp := &mat.Dense{}
	hp.Mul(inn.H, k.pNext)
	gainT := &mat.Dense{}
	if err := inn.chol.SolveTo(gainT, hp); err != nil {
		return nil, fmt.Errorf("failed to calculate Kalman gain: %w", err)
	}
	gain := mat.DenseCopyOf(gainT.T())

	// update state x
	corr := mat.NewVecDense(nx, nil)
	corr.MulVec(gain, inn.Y)
	xCorr := mat.NewVecDense(nx, nil)
	xCorr.AddVec(x, corr)

	// Joseph form update
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, inn.H)
	// eye - K*H
	a.Scale(-1, a)
	for i := 0; i < nx; i++ {
		a.Set(i, i, a.At(i, i)+1.0)
	}

	// K*R*K'
	kr := &mat.Dense{}
	kr.Mul(gain, k.r.Cov())
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	apa := &mat.Dense{}
	apa.Mul(a, k.pNext)
	apa.Mul(apa, a.T())
	apa.Add(apa, krk)

	if err := matrix.SymFrom(k.p, apa); err != nil {
		return nil, err
	}

	// update EKF innovation vector
	k.inn.CopyVec(inn.Y)
	k.k.Copy(gain)
	k.h.Copy(inn.H)

	return estimate.NewBaseWithCov(xCorr, k.p)
}

// Update corrects state x using the measurement z, given control intput u and returns corrected estimate.
// It returns error if either invalid state was supplied or if it fails to calculate system output estimate.
func (k *EKF) Update(m filter.Model, x, u, z mat.Vector) (filter.Estimate, error) {
	inn, err := k.Innovate(m, x, u, z)
	if err != nil {
		return nil, err
	}

	return k.Correct(x, inn)
}

// Run runs one step of EKF for given state x, input u and measurement z.
// It corrects system state x using measurement z and returns new system estimate.
// It returns error if it either fails to propagate or correct state x.
func (k *EKF) Run(m filter.StepModel, x, u, z mat.Vector) (filter.Estimate, error) {
	pred, err := k.Predict(m, x, u)
	if err != nil {
		return nil, err
	}

	return k.Update(m, pred.Val(), u, z)
}

// OutputNoise retruns output noise
func (k *EKF) OutputNoise() filter.Noise {
	return k.r
}

// Cov returns EKF covariance
func (k *EKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets EKF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as EKF covariance dimensions.
func (k *EKF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return fmt.Errorf("invalid covariance matrix dims: [%d x %d]", cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)

	return nil
}

// PredCov returns covariance predicted by the last call to Predict
func (k *EKF) PredCov() mat.Symmetric {
	cov := mat.NewSymDense(k.pNext.SymmetricDim(), nil)
	cov.CopySym(k.pNext)

	return cov
}

// PropMatrix returns propagation matrix used by the last call to Predict
func (k *EKF) PropMatrix() mat.Matrix {
	f := &mat.Dense{}
	f.CloneFrom(k.f)

	return f
}

// Gain returns Kalman gain
func (k *EKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

// Innovation returns innovation vector of the last correction
func (k *EKF) Innovation() mat.Vector {
	inn := &mat.VecDense{}
	inn.CloneFromVec(k.inn)

	return inn
}

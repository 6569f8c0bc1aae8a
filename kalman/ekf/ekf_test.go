package ekf

import (
	"math"
	"os"
	"testing"

	filter "github.com/rmvision/go-singer"
	"github.com/rmvision/go-singer/kalman"
	"github.com/rmvision/go-singer/matrix"
	"github.com/rmvision/go-singer/model"
	"github.com/rmvision/go-singer/noise"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var _ kalman.Kalman = (*EKF)(nil)

type invalidModel struct {
	*model.SingerStep
}

func (m *invalidModel) SystemDims() (nx, nu, ny, nz int) {
	return 4, 0, 3, 0
}

// nonlinearStep hides the system matrix so the propagation Jacobian is estimated numerically
type nonlinearStep struct {
	*model.SingerStep
}

func (m nonlinearStep) SystemMatrix() mat.Matrix { return nil }

var (
	singer   *model.Singer
	okModel  *model.SingerStep
	badModel *invalidModel
	ic       *model.InitCond
	r        filter.Noise
	x        *mat.VecDense
)

func setup() {
	var err error
	singer, err = model.NewSinger(0.3, [model.Axes]float64{2, 2, 2})
	if err != nil {
		panic(err)
	}

	okModel, err = singer.Discretize(0.02, r3.Vec{X: 0.1, Y: -0.2, Z: 0})
	if err != nil {
		panic(err)
	}
	badModel = &invalidModel{okModel}

	x = model.NewState(r3.Vec{X: 1, Y: 3, Z: 0.5}, r3.Vec{X: 0.2, Y: 0.1, Z: 0}, r3.Vec{X: 0.1, Y: -0.2, Z: 0})
	ic = model.NewPoseInitCond(r3.Vec{X: 1, Y: 3, Z: 0.5})

	r, err = noise.NewDiagonal([]float64{0.01, 0.01, 0.01}, 1)
	if err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

// jacobian returns the analytic observation Jacobian at position p
func jacobian(p r3.Vec) *mat.Dense {
	d := math.Hypot(p.X, p.Y)
	d3 := d * d * d

	h := mat.NewDense(model.OutputDim, model.StateDim, nil)
	px, py, pz := model.PosIdx, model.BlockDim+model.PosIdx, 2*model.BlockDim+model.PosIdx

	h.Set(model.PitchIdx, px, -p.Z*p.X/d3)
	h.Set(model.PitchIdx, py, -p.Z*p.Y/d3)
	h.Set(model.PitchIdx, pz, 1/d)

	h.Set(model.YawIdx, px, -1/p.Y)
	h.Set(model.YawIdx, py, p.X/(p.Y*p.Y))

	h.Set(model.DistIdx, px, p.X/d)
	h.Set(model.DistIdx, py, p.Y/d)

	return h
}

func TestEKFNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, r)
	assert.NotNil(f)
	assert.NoError(err)

	// propagation matrix starts as identity
	assert.True(mat.Equal(mat.NewDiagDense(model.StateDim, ones(model.StateDim)), f.PropMatrix()))
	assert.True(mat.Equal(ic.Cov(), f.Cov()))

	// invalid initial condition
	f, err = New(nil, r)
	assert.Nil(f)
	assert.Error(err)

	// invalid output noise
	z, _ := noise.NewZero(0)
	f, err = New(ic, z)
	assert.Nil(f)
	assert.Error(err)

	f, err = New(ic, nil)
	assert.Nil(f)
	assert.Error(err)
}

func TestEKFPredict(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, r)
	assert.NotNil(f)
	assert.NoError(err)

	est, err := f.Predict(okModel, x, nil)
	assert.NotNil(est)
	assert.NoError(err)

	xNext, err := okModel.Propagate(x, nil, nil)
	assert.NoError(err)
	assert.True(mat.EqualApprox(xNext, est.Val(), 1e-15))

	// P = F*I*F' + Q
	fm := okModel.SystemMatrix()
	exp := &mat.Dense{}
	exp.Mul(fm, fm.T())
	exp.Add(exp, okModel.StateCov())
	assert.True(mat.EqualApprox(exp, est.Cov(), 1e-12))
	assert.True(mat.EqualApprox(exp, f.PredCov(), 1e-12))
	assert.True(mat.Equal(fm, f.PropMatrix()))

	// predict does not touch the corrected covariance
	assert.True(mat.Equal(ic.Cov(), f.Cov()))

	// numerically estimated propagation Jacobian
	g, err := New(ic, r)
	assert.NoError(err)
	est, err = g.Predict(nonlinearStep{okModel}, x, nil)
	assert.NotNil(est)
	assert.NoError(err)
	assert.True(mat.EqualApprox(fm, g.PropMatrix(), 1e-8))

	// invalid model
	est, err = f.Predict(badModel, x, nil)
	assert.Nil(est)
	assert.Error(err)

	est, err = f.Predict(nil, x, nil)
	assert.Nil(est)
	assert.Error(err)

	// invalid state
	est, err = f.Predict(okModel, mat.NewVecDense(3, nil), nil)
	assert.Nil(est)
	assert.Error(err)
}

func TestEKFInnovate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, r)
	assert.NoError(err)

	pred, err := f.Predict(okModel, x, nil)
	assert.NoError(err)

	p := model.Position(pred.Val())
	z, err := model.Measure(r3.Add(p, r3.Vec{X: 0.05, Y: -0.02, Z: 0.01}))
	assert.NoError(err)

	inn, err := f.Innovate(okModel, pred.Val(), nil, z)
	assert.NotNil(inn)
	assert.NoError(err)

	h := jacobian(p)
	assert.True(mat.EqualApprox(h, inn.H, 1e-7))

	// S = H*P*H' + R
	hp := &mat.Dense{}
	hp.Mul(h, f.PredCov())
	s := &mat.Dense{}
	s.Mul(hp, h.T())
	s.Add(s, r.Cov())
	assert.True(mat.EqualApprox(s, inn.S, 1e-6))
	assert.Equal(0.0, matrix.MaxAsym(inn.S))

	y, err := model.Measure(p)
	assert.NoError(err)
	expY := mat.NewVecDense(model.OutputDim, nil)
	expY.SubVec(z, y)
	assert.True(mat.EqualApprox(expY, inn.Y, 1e-15))

	sInv := &mat.Dense{}
	assert.NoError(sInv.Inverse(s))
	sy := mat.NewVecDense(model.OutputDim, nil)
	sy.MulVec(sInv, expY)
	nis := mat.Dot(expY, sy)
	assert.InEpsilon(nis, inn.NIS(), 1e-5)

	// measurement equal to predicted output
	inn, err = f.Innovate(okModel, pred.Val(), nil, y)
	assert.NoError(err)
	assert.InDelta(0.0, inn.NIS(), 1e-20)

	// invalid measurement
	inn, err = f.Innovate(okModel, pred.Val(), nil, mat.NewVecDense(2, nil))
	assert.Nil(inn)
	assert.Error(err)

	// predicted state on the singular axis of the measurement model
	sx := model.NewState(r3.Vec{X: 1, Y: 0, Z: 1}, r3.Vec{}, r3.Vec{})
	inn, err = f.Innovate(okModel, sx, nil, z)
	assert.Nil(inn)
	assert.ErrorIs(err, model.ErrSingular)

	// finite difference step crosses the singular axis
	sx = model.NewState(r3.Vec{X: 1, Y: 6e-6, Z: 1}, r3.Vec{}, r3.Vec{})
	inn, err = f.Innovate(okModel, sx, nil, z)
	assert.Nil(inn)
	assert.ErrorIs(err, ErrLinearize)
}

func TestEKFSingularInnovation(t *testing.T) {
	assert := assert.New(t)

	// zero initial covariance, zero output noise and acceleration at its bound give zero S
	init, err := model.NewInitCond(x, mat.NewSymDense(model.StateDim, nil))
	assert.NoError(err)
	zero, err := noise.NewZero(model.OutputDim)
	assert.NoError(err)

	f, err := New(init, zero)
	assert.NoError(err)

	step, err := singer.Discretize(0.02, r3.Vec{X: 2, Y: -2, Z: 2})
	assert.NoError(err)

	pred, err := f.Predict(step, x, nil)
	assert.NoError(err)

	z, err := model.Measure(model.Position(pred.Val()))
	assert.NoError(err)

	inn, err := f.Innovate(step, pred.Val(), nil, z)
	assert.Nil(inn)
	assert.ErrorIs(err, ErrSingularInnovation)
}

func TestEKFCorrect(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, r)
	assert.NoError(err)

	pred, err := f.Predict(okModel, x, nil)
	assert.NoError(err)

	z, err := model.Measure(r3.Vec{X: 1.02, Y: 2.99, Z: 0.52})
	assert.NoError(err)

	inn, err := f.Innovate(okModel, pred.Val(), nil, z)
	assert.NoError(err)

	est, err := f.Correct(pred.Val(), inn)
	assert.NotNil(est)
	assert.NoError(err)

	// Joseph form agrees with (I - K*H)*P in exact arithmetic
	k := f.Gain()
	rows, cols := k.Dims()
	assert.Equal(model.StateDim, rows)
	assert.Equal(model.OutputDim, cols)

	kh := &mat.Dense{}
	kh.Mul(k, inn.H)
	ikh := &mat.Dense{}
	ikh.Sub(mat.NewDiagDense(model.StateDim, ones(model.StateDim)), kh)
	exp := &mat.Dense{}
	exp.Mul(ikh, f.PredCov())
	assert.True(mat.EqualApprox(exp, est.Cov(), 1e-9))
	assert.Equal(0.0, matrix.MaxAsym(est.Cov()))

	// x = x + K*y
	corr := mat.NewVecDense(model.StateDim, nil)
	corr.MulVec(k, inn.Y)
	corr.AddVec(corr, pred.Val())
	assert.True(mat.EqualApprox(corr, est.Val(), 1e-15))
	assert.True(mat.Equal(inn.Y, f.Innovation()))

	// correction reduces uncertainty
	assert.Less(mat.Trace(est.Cov()), mat.Trace(f.PredCov()))

	// invalid state
	est, err = f.Correct(mat.NewVecDense(2, nil), inn)
	assert.Nil(est)
	assert.Error(err)

	// invalid innovation
	est, err = f.Correct(pred.Val(), nil)
	assert.Nil(est)
	assert.Error(err)
}

func TestEKFRun(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, r)
	assert.NoError(err)

	z, err := model.Measure(r3.Vec{X: 1.01, Y: 3, Z: 0.5})
	assert.NoError(err)

	est, err := f.Run(okModel, x, nil, z)
	assert.NotNil(est)
	assert.NoError(err)
	assert.True(matrix.IsFinite(est.Cov()))

	// Run is Predict followed by Update
	g, err := New(ic, r)
	assert.NoError(err)
	pred, err := g.Predict(okModel, x, nil)
	assert.NoError(err)
	exp, err := g.Update(okModel, pred.Val(), nil, z)
	assert.NoError(err)

	assert.True(mat.Equal(exp.Val(), est.Val()))
	assert.True(mat.Equal(exp.Cov(), est.Cov()))

	est, err = f.Run(badModel, x, nil, z)
	assert.Nil(est)
	assert.Error(err)
}

func TestEKFCov(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, r)
	assert.NotNil(f)
	assert.NoError(err)

	cov := f.Cov()
	assert.True(mat.Equal(ic.Cov(), cov))

	// returned covariance is a copy
	cov.(*mat.SymDense).SetSym(0, 0, 100)
	assert.Equal(1.0, f.Cov().At(0, 0))

	newCov := mat.NewSymDense(model.StateDim, nil)
	for i := 0; i < model.StateDim; i++ {
		newCov.SetSym(i, i, 0.5)
	}
	assert.NoError(f.SetCov(newCov))
	assert.True(mat.Equal(newCov, f.Cov()))

	assert.Error(f.SetCov(nil))
	assert.Error(f.SetCov(mat.NewSymDense(2, nil)))
}

func TestEKFGain(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, r)
	assert.NotNil(f)
	assert.NoError(err)

	gain := mat.NewDense(model.StateDim, model.OutputDim, nil)
	assert.True(mat.Equal(gain, f.Gain()))
	assert.True(mat.Equal(r.Cov(), f.OutputNoise().Cov()))
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}

	return v
}

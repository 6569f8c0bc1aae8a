package tracker

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/google/uuid"
	gomatrix "github.com/milosgajdos/matrix"
	filter "github.com/rmvision/go-singer"
	"github.com/rmvision/go-singer/estimate"
	"github.com/rmvision/go-singer/kalman/ekf"
	"github.com/rmvision/go-singer/model"
	"github.com/rmvision/go-singer/noise"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// minStepMs is the shortest time delta accepted as a real measurement interval
const minStepMs = 1e-4

// ErrInvalidStep is returned when the time delta between measurements is negative or not finite
var ErrInvalidStep = errors.New("invalid time step")

// Option configures Singer
type Option func(*Singer)

// WithLogger sets the logger used to report gate reboots and acceleration bound violations.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Singer) {
		if l != nil {
			s.log = l
		}
	}
}

// state is the complete filter memory of a track.
// A reboot replaces it with a freshly initialised value.
type state struct {
	initialized bool
	// id identifies the track segment since the last (re)initialisation
	id uuid.UUID
	// ekf owns the error covariance
	ekf *ekf.EKF
	// x is the canonical state [px vx ax py vy ay pz vz az]
	x *mat.VecDense
	// step is the model used by the last correction; nil right after initialisation
	step *model.SingerStep
	// nis is the normalized innovation squared of the last correction
	nis float64
}

// Singer tracks a maneuvering target with an extended Kalman filter
// driven by the Singer acceleration model. Measurements failing the
// chi-squared validity gate reboot the track.
//
// Update must not be called concurrently with itself; read accessors
// may be called from any goroutine.
type Singer struct {
	mu        sync.RWMutex
	cfg       Config
	model     *model.Singer
	r         filter.Noise
	threshold float64
	log       logrus.FieldLogger
	st        state
	updates   uint64
	reboots   uint64
}

// New creates new Singer tracker and returns it.
// It returns error if the configuration is invalid.
func New(cfg Config, opts ...Option) (*Singer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m, err := model.NewSinger(cfg.Alpha, cfg.AMax)
	if err != nil {
		return nil, err
	}

	r, err := noise.NewDiagonal(cfg.MeasurementNoise[:], 0)
	if err != nil {
		return nil, fmt.Errorf("invalid measurement noise: %w", err)
	}

	l := logrus.New()
	l.SetOutput(io.Discard)

	s := &Singer{
		cfg:       cfg,
		model:     m,
		r:         r,
		threshold: cfg.Threshold(),
		log:       l,
	}

	for _, apply := range opts {
		apply(s)
	}

	return s, nil
}

func (s *Singer) newState(z r3.Vec) (state, error) {
	ic := model.NewPoseInitCond(z)

	f, err := ekf.New(ic, s.r)
	if err != nil {
		return state{}, err
	}

	return state{
		initialized: true,
		id:          uuid.New(),
		ekf:         f,
		x:           mat.VecDenseCopyOf(ic.State()),
	}, nil
}

// reboot drops the filter memory and restarts the track at pose z
func (s *Singer) reboot(z r3.Vec) error {
	st, err := s.newState(z)
	if err != nil {
		return err
	}
	s.st = st

	return nil
}

// stepSeconds converts time delta dtMs to seconds substituting the nominal step for degenerate deltas
func (s *Singer) stepSeconds(dtMs float64) (float64, error) {
	if math.IsNaN(dtMs) || math.IsInf(dtMs, 0) {
		return 0, fmt.Errorf("%w: %v ms", ErrInvalidStep, dtMs)
	}

	if math.Abs(dtMs) < minStepMs {
		dtMs = s.cfg.NominalStepMs
	}

	if dtMs < 0 {
		return 0, fmt.Errorf("%w: %v ms", ErrInvalidStep, dtMs)
	}

	return dtMs / 1000.0, nil
}

// Update corrects the track with position measurement z taken dtMs milliseconds after
// the previous one and returns the filtered position.
// The first measurement initialises the track and is returned unchanged. A measurement
// failing the validity gate reboots the track and is returned unchanged as well.
// A predicted pose the measurement model can't be linearized around reboots the track too.
// It returns error if z is not finite or lies on the singular axis of the measurement
// model, if dtMs is negative or not finite or if the innovation covariance is singular.
// The measurement check applies to the first call as well, so a track is never
// initialised on the singular axis. The track is left untouched when error is returned.
func (s *Singer) Update(z r3.Vec, dtMs float64) (r3.Vec, error) {
	if err := model.CheckPosition(z); err != nil {
		return r3.Vec{}, fmt.Errorf("invalid measurement: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.st.initialized {
		if err := s.reboot(z); err != nil {
			return r3.Vec{}, err
		}
		s.updates++

		s.log.WithFields(logrus.Fields{
			"track": s.st.id,
		}).Debug("track initialized")

		return z, nil
	}

	dt, err := s.stepSeconds(dtMs)
	if err != nil {
		return r3.Vec{}, err
	}

	accel := model.Acceleration(s.st.x)
	for _, axis := range s.model.Exceeded(accel) {
		s.log.WithFields(logrus.Fields{
			"track": s.st.id,
			"axis":  axis,
			"accel": model.Components(accel)[axis],
			"a_max": s.cfg.AMax[axis],
		}).Warn("acceleration bound exceeded")
	}

	step, err := s.model.Discretize(dt, accel)
	if err != nil {
		return r3.Vec{}, err
	}

	pred, err := s.st.ekf.Predict(step, s.st.x, nil)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("failed to predict track state: %w", err)
	}

	zm, err := model.Measure(z)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("invalid measurement: %w", err)
	}

	inn, err := s.st.ekf.Innovate(step, pred.Val(), nil, zm)
	if err != nil {
		// gate can't be evaluated around the predicted pose: restart from the measurement
		if errors.Is(err, model.ErrSingular) || errors.Is(err, model.ErrNonFinite) || errors.Is(err, ekf.ErrLinearize) {
			s.log.WithFields(logrus.Fields{
				"track": s.st.id,
				"error": err,
			}).Warn("prediction outside measurement model domain, rebooting track")

			return s.gateReboot(z)
		}

		return r3.Vec{}, fmt.Errorf("failed to innovate track: %w", err)
	}

	nis := inn.NIS()
	if nis > s.threshold {
		s.log.WithFields(logrus.Fields{
			"track":     s.st.id,
			"nis":       nis,
			"threshold": s.threshold,
		}).Info("validity gate failed, rebooting track")

		return s.gateReboot(z)
	}

	est, err := s.st.ekf.Correct(pred.Val(), inn)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("failed to correct track: %w", err)
	}

	s.st.x = mat.VecDenseCopyOf(est.Val())
	s.st.step = step
	s.st.nis = nis
	s.updates++

	s.log.WithFields(logrus.Fields{
		"track": s.st.id,
		"nis":   nis,
		"dt":    dt,
	}).Debugf("track corrected, covariance:\n%v", gomatrix.Format(est.Cov()))

	return model.Position(s.st.x), nil
}

func (s *Singer) gateReboot(z r3.Vec) (r3.Vec, error) {
	if err := s.reboot(z); err != nil {
		return r3.Vec{}, err
	}
	s.reboots++
	s.updates++

	return z, nil
}

// Predict extrapolates the tracked position dt seconds ahead using the
// current velocity and acceleration estimates. It does not modify the track.
func (s *Singer) Predict(dt float64) r3.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.st.initialized {
		return r3.Vec{}
	}

	p := model.Position(s.st.x)
	v := model.Velocity(s.st.x)
	a := model.Acceleration(s.st.x)

	return r3.Add(p, r3.Add(r3.Scale(dt, v), r3.Scale(0.5*dt*dt, a)))
}

// Reset drops the track: the next measurement initialises a new one.
func (s *Singer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st = state{}
}

// Initialized returns true once the tracker received its first measurement
func (s *Singer) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.initialized
}

// TrackID returns the id of the current track segment.
// A new id is generated every time the track is (re)initialised.
func (s *Singer) TrackID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.id
}

// Pose returns the estimated position
func (s *Singer) Pose() r3.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.st.initialized {
		return r3.Vec{}
	}

	return model.Position(s.st.x)
}

// Velocity returns the estimated velocity
func (s *Singer) Velocity() r3.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.st.initialized {
		return r3.Vec{}
	}

	return model.Velocity(s.st.x)
}

// Acceleration returns the estimated acceleration
func (s *Singer) Acceleration() r3.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.st.initialized {
		return r3.Vec{}
	}

	return model.Acceleration(s.st.x)
}

// Estimate returns the full state estimate and its covariance.
func (s *Singer) Estimate() (filter.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.st.initialized {
		return estimate.NewBaseWithCov(mat.NewVecDense(model.StateDim, nil), mat.NewSymDense(model.StateDim, nil))
	}

	return estimate.NewBaseWithCov(s.st.x, s.st.ekf.Cov())
}

// Cov returns the error covariance. It is zero before the track is initialised.
func (s *Singer) Cov() mat.Symmetric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.st.initialized {
		return mat.NewSymDense(model.StateDim, nil)
	}

	return s.st.ekf.Cov()
}

// Gain returns the Kalman gain of the last correction
func (s *Singer) Gain() mat.Matrix {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.st.initialized {
		return mat.NewDense(model.StateDim, model.OutputDim, nil)
	}

	return s.st.ekf.Gain()
}

// TransitionMatrix returns the state transition matrix of the last correction.
// It is identity right after the track is (re)initialised.
func (s *Singer) TransitionMatrix() mat.Matrix {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.st.step == nil {
		eye, _ := gomatrix.NewDenseValIdentity(model.StateDim, 1.0)
		return eye
	}

	return s.st.step.SystemMatrix()
}

// ControlVector returns the control contribution of the last correction
func (s *Singer) ControlVector() mat.Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.st.step == nil {
		return mat.NewVecDense(model.StateDim, nil)
	}

	return s.st.step.ControlVector()
}

// ProcessNoise returns the process noise covariance of the last correction
func (s *Singer) ProcessNoise() mat.Symmetric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.st.step == nil {
		return mat.NewSymDense(model.StateDim, nil)
	}

	return s.st.step.StateCov()
}

// MeasurementNoise returns the measurement noise covariance
func (s *Singer) MeasurementNoise() mat.Symmetric {
	return s.r.Cov()
}

// LastNIS returns the normalized innovation squared of the last correction
func (s *Singer) LastNIS() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.nis
}

// Updates returns the number of measurements accepted so far
func (s *Singer) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updates
}

// Reboots returns the number of validity gate reboots
func (s *Singer) Reboots() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reboots
}

// Threshold returns the validity gate threshold
func (s *Singer) Threshold() float64 { return s.threshold }

// Config returns tracker configuration
func (s *Singer) Config() Config { return s.cfg }

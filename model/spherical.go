package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SingularTol is the smallest |y| accepted by Measure.
const SingularTol = 1e-6

// Measurement vector components
const (
	PitchIdx = iota
	YawIdx
	DistIdx
)

var (
	// ErrSingular is returned when a position lies on the singular axis of the measurement model
	ErrSingular = errors.New("position on measurement singular axis")
	// ErrNonFinite is returned when a position has NaN or infinite coordinates
	ErrNonFinite = errors.New("non-finite position")
)

// Measure maps position p onto the measurement space [pitch, yaw, distance] where
// distance is the horizontal distance sqrt(x^2+y^2), pitch is z/distance and yaw is -x/y.
// It returns ErrNonFinite if p is not finite and ErrSingular if |y| is below SingularTol.
func Measure(p r3.Vec) (*mat.VecDense, error) {
	if err := CheckPosition(p); err != nil {
		return nil, err
	}

	y := spherical(p)

	return mat.NewVecDense(OutputDim, y[:]), nil
}

// CheckPosition returns error if p can't be mapped onto the measurement space.
func CheckPosition(p r3.Vec) error {
	for _, v := range Components(p) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrNonFinite, p)
		}
	}

	// |y| >= SingularTol also bounds the horizontal distance away from zero
	if math.Abs(p.Y) < SingularTol {
		return fmt.Errorf("%w: %v", ErrSingular, p)
	}

	return nil
}

func spherical(p r3.Vec) [OutputDim]float64 {
	var y [OutputDim]float64
	y[DistIdx] = math.Sqrt(p.X*p.X + p.Y*p.Y)
	y[PitchIdx] = p.Z / y[DistIdx]
	y[YawIdx] = -p.X / p.Y

	return y
}

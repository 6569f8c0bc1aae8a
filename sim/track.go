package sim

import (
	"fmt"
	"math"

	filter "github.com/rmvision/go-singer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Run feeds samples to tracker tr in order and returns the filtered positions.
// It returns error if the tracker rejects any of the samples.
func Run(tr filter.Tracker, samples []Sample) ([]r3.Vec, error) {
	if tr == nil {
		return nil, fmt.Errorf("invalid tracker: %v", tr)
	}

	filtered := make([]r3.Vec, len(samples))
	for i, s := range samples {
		p, err := tr.Update(s.Measured, s.Dt)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		filtered[i] = p
	}

	return filtered, nil
}

// RMSE returns root mean square of the euclidean distances between est and truth.
// It returns error if the slices are empty or their lengths differ.
func RMSE(est, truth []r3.Vec) (float64, error) {
	if len(est) == 0 || len(est) != len(truth) {
		return 0, fmt.Errorf("invalid data lengths: %d, %d", len(est), len(truth))
	}

	sq := make([]float64, len(est))
	for i := range est {
		sq[i] = r3.Norm2(r3.Sub(est[i], truth[i]))
	}

	return math.Sqrt(floats.Sum(sq) / float64(len(sq))), nil
}

// Truth returns true positions of samples
func Truth(samples []Sample) []r3.Vec {
	out := make([]r3.Vec, len(samples))
	for i := range samples {
		out[i] = samples[i].Truth
	}

	return out
}

// Measured returns measured positions of samples
func Measured(samples []Sample) []r3.Vec {
	out := make([]r3.Vec, len(samples))
	for i := range samples {
		out[i] = samples[i].Measured
	}

	return out
}

// Times returns sampling times of samples
func Times(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		out[i] = samples[i].T
	}

	return out
}

// Matrix returns positions vs stacked as rows of [x y z] matrix.
// It returns nil if vs is empty.
func Matrix(vs []r3.Vec) *mat.Dense {
	if len(vs) == 0 {
		return nil
	}

	m := mat.NewDense(len(vs), 3, nil)
	for i, v := range vs {
		m.SetRow(i, []float64{v.X, v.Y, v.Z})
	}

	return m
}

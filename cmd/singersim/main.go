package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/milosgajdos/matrix"
	"github.com/rmvision/go-singer/noise"
	"github.com/rmvision/go-singer/sim"
	"github.com/rmvision/go-singer/tracker"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot/vg"
)

var (
	configPath string
	trajectory string
	steps      int
	stepMs     float64
	jitterMs   float64
	noiseStd   float64
	seed       uint64
	switchAt   int
	plotPath   string
	plotAxis   string
	verbose    bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to JSON tracker tuning file")
	flag.StringVar(&trajectory, "traj", "weave", "target trajectory: line or weave")
	flag.IntVar(&steps, "steps", 500, "number of simulated measurements")
	flag.Float64Var(&stepMs, "dt", 8, "nominal sampling interval [ms]")
	flag.Float64Var(&jitterMs, "jitter", 1, "maximum sampling interval jitter [ms]")
	flag.Float64Var(&noiseStd, "noise", 0.01, "standard deviation of Cartesian measurement noise")
	flag.Uint64Var(&seed, "seed", 1, "random seed")
	flag.IntVar(&switchAt, "switch-at", 0, "sample index at which the sensor locks onto another target (0 disables)")
	flag.StringVar(&plotPath, "plot", "", "save tracking plot to the given PNG file")
	flag.StringVar(&plotAxis, "axis", "", "also plot a single coordinate over time next to the tracking plot: x, y or z")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
}

func newTrajectory(name string) (sim.Trajectory, error) {
	switch name {
	case "line":
		return sim.ConstantVelocity{
			P0: r3.Vec{X: -1, Y: 4, Z: 0.3},
			V:  r3.Vec{X: 0.5, Y: -0.2, Z: 0},
		}, nil
	case "weave":
		return sim.NewWeave(
			r3.Vec{X: 0, Y: 5, Z: 0.4},
			r3.Vec{X: 0.2, Y: -0.3, Z: 0},
			r3.Vec{X: 0.6, Y: 0, Z: 0.1},
			1.5,
		)
	}

	return nil, fmt.Errorf("unknown trajectory: %q", name)
}

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg := tracker.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = tracker.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load tracker config: %v", err)
		}
	}

	traj, err := newTrajectory(trajectory)
	if err != nil {
		log.Fatalf("Failed to create trajectory: %v", err)
	}

	v := noiseStd * noiseStd
	measNoise, err := noise.NewDiagonal([]float64{v, v, v}, seed)
	if err != nil {
		log.Fatalf("Failed to create measurement noise: %v", err)
	}

	opts := []sim.SamplerOption{sim.WithNoise(measNoise)}
	if jitterMs > 0 {
		opts = append(opts, sim.WithJitter(jitterMs, seed+1))
	}
	if switchAt > 0 {
		opts = append(opts, sim.WithTargetSwitch(switchAt, r3.Vec{X: 1.5, Y: -0.5, Z: 0.2}))
	}

	sampler, err := sim.NewSampler(traj, stepMs, opts...)
	if err != nil {
		log.Fatalf("Failed to create sampler: %v", err)
	}

	t, err := tracker.New(cfg, tracker.WithLogger(log.StandardLogger()))
	if err != nil {
		log.Fatalf("Failed to create tracker: %v", err)
	}

	log.WithFields(log.Fields{
		"alpha":     cfg.Alpha,
		"a_max":     cfg.AMax,
		"threshold": t.Threshold(),
		"steps":     steps,
	}).Info("starting simulation")

	samples := sampler.Samples(steps)
	filtered, err := sim.Run(t, samples)
	if err != nil {
		log.Fatalf("Tracking failed: %v", err)
	}

	truth := sim.Truth(samples)
	measured := sim.Measured(samples)

	measErr, err := sim.RMSE(measured, truth)
	if err != nil {
		log.Fatalf("Failed to compute measurement error: %v", err)
	}
	filterErr, err := sim.RMSE(filtered, truth)
	if err != nil {
		log.Fatalf("Failed to compute filter error: %v", err)
	}

	log.WithFields(log.Fields{
		"updates":      t.Updates(),
		"reboots":      t.Reboots(),
		"rmse_measure": measErr,
		"rmse_filter":  filterErr,
		"velocity":     t.Velocity(),
		"acceleration": t.Acceleration(),
	}).Info("simulation finished")

	if verbose {
		fmt.Printf("COVARIANCE:\n%v\n", matrix.Format(t.Cov()))
		fmt.Printf("GAIN:\n%v\n", matrix.Format(t.Gain()))
	}

	if plotPath == "" {
		return
	}

	plt, err := sim.NewTrackPlot(sim.Matrix(truth), sim.Matrix(measured), sim.Matrix(filtered), "Singer EKF tracking")
	if err != nil {
		log.Fatalf("Failed to make plot: %v", err)
	}

	// Save the plot to a PNG file.
	if err := plt.Save(10*vg.Inch, 10*vg.Inch, plotPath); err != nil {
		log.Fatalf("Failed to save plot to %s: %v", plotPath, err)
	}

	if plotAxis == "" {
		return
	}

	axis := strings.Index("xyz", strings.ToLower(plotAxis))
	if len(plotAxis) != 1 || axis < 0 {
		log.Fatalf("Unknown plot axis: %q", plotAxis)
	}

	axisPlt, err := sim.NewAxisPlot(sim.Times(samples), sim.Matrix(truth), sim.Matrix(measured), sim.Matrix(filtered), axis,
		fmt.Sprintf("Singer EKF tracking: %s", strings.ToUpper(plotAxis)))
	if err != nil {
		log.Fatalf("Failed to make axis plot: %v", err)
	}

	axisPath := strings.TrimSuffix(plotPath, filepath.Ext(plotPath)) + "-" + strings.ToLower(plotAxis) + filepath.Ext(plotPath)
	if err := axisPlt.Save(10*vg.Inch, 5*vg.Inch, axisPath); err != nil {
		log.Fatalf("Failed to save plot to %s: %v", axisPath, err)
	}
}

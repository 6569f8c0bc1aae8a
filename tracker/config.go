package tracker

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/rmvision/go-singer/model"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultAlpha is the default maneuver decorrelation rate [1/s]
	DefaultAlpha = 0.3
	// DefaultAMax is the default per axis acceleration bound
	DefaultAMax = 2.0
	// DefaultMeasurementNoise is the default variance of every measurement component
	DefaultMeasurementNoise = 0.01
	// DefaultGateProb is the default chi-squared gate confidence
	DefaultGateProb = 0.95
	// DefaultNominalStepMs is the step substituted for a degenerate time delta
	DefaultNominalStepMs = 8.0
)

// Config is the tracker tuning.
type Config struct {
	// Alpha is maneuver decorrelation rate [1/s]
	Alpha float64 `json:"alpha"`
	// AMax is expected acceleration bound per axis
	AMax [model.Axes]float64 `json:"a_max"`
	// MeasurementNoise holds the variances of the pitch, yaw and distance measurement components
	MeasurementNoise [model.OutputDim]float64 `json:"measurement_noise"`
	// GateProb is the confidence of the chi-squared validity gate
	GateProb float64 `json:"gate_prob"`
	// GateThreshold overrides the gate threshold derived from GateProb when positive
	GateThreshold float64 `json:"gate_threshold,omitempty"`
	// NominalStepMs is used in place of time deltas shorter than 1e-4 ms
	NominalStepMs float64 `json:"nominal_step_ms"`
}

// DefaultConfig returns the default tracker tuning.
func DefaultConfig() Config {
	return Config{
		Alpha:            DefaultAlpha,
		AMax:             [model.Axes]float64{DefaultAMax, DefaultAMax, DefaultAMax},
		MeasurementNoise: [model.OutputDim]float64{DefaultMeasurementNoise, DefaultMeasurementNoise, DefaultMeasurementNoise},
		GateProb:         DefaultGateProb,
		NominalStepMs:    DefaultNominalStepMs,
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Validate checks that the configuration values are valid.
func (c Config) Validate() error {
	if !positive(c.Alpha) {
		return fmt.Errorf("alpha must be positive, got %v", c.Alpha)
	}

	for i, a := range c.AMax {
		if !positive(a) {
			return fmt.Errorf("a_max[%d] must be positive, got %v", i, a)
		}
	}

	for i, r := range c.MeasurementNoise {
		if !positive(r) {
			return fmt.Errorf("measurement_noise[%d] must be positive, got %v", i, r)
		}
	}

	if !(c.GateProb > 0 && c.GateProb < 1) {
		return fmt.Errorf("gate_prob must be between 0 and 1, got %v", c.GateProb)
	}

	if c.GateThreshold < 0 || math.IsNaN(c.GateThreshold) || math.IsInf(c.GateThreshold, 0) {
		return fmt.Errorf("gate_threshold must be positive, got %v", c.GateThreshold)
	}

	if !positive(c.NominalStepMs) {
		return fmt.Errorf("nominal_step_ms must be positive, got %v", c.NominalStepMs)
	}

	return nil
}

// Threshold returns the NIS value above which a measurement fails the validity gate.
func (c Config) Threshold() float64 {
	if c.GateThreshold > 0 {
		return c.GateThreshold
	}

	chi2 := distuv.ChiSquared{K: model.OutputDim}

	return chi2.Quantile(c.GateProb)
}

// LoadConfig loads Config from a JSON file.
// The file must have a .json extension and must not be larger than 1MB.
// Fields omitted from the file retain their default values.
func LoadConfig(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

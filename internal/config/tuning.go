// Package config loads tuning parameters for the optical-flow tracker.
// Parameters live in a JSON file so a run's flow settings are explicit
// and auditable; fields omitted from the file fall back to documented
// defaults via the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical flow defaults file.
// This is the single source of truth for all default flow values.
const DefaultConfigPath = "config/flow.defaults.json"

// TuningConfig represents the root configuration for flow parameters.
// All fields are pointers so partial configs are safe: omitted fields
// retain their defaults.
type TuningConfig struct {
	// Pyramidal Lucas-Kanade params
	PyramidLevels   *int     `json:"pyramid_levels,omitempty"`
	WindowRadius    *int     `json:"window_radius,omitempty"` // window is (2r+1) x (2r+1)
	MaxIterations   *int     `json:"max_iterations,omitempty"`
	Epsilon         *float64 `json:"epsilon,omitempty"`
	MinEigThreshold *float64 `json:"min_eig_threshold,omitempty"`

	// Reappearance prediction params
	PredictionWindow *int `json:"prediction_window,omitempty"` // trailing samples for velocity estimate
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical flow defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set fields hold sane values.
func (c *TuningConfig) Validate() error {
	if c.PyramidLevels != nil {
		if *c.PyramidLevels < 1 || *c.PyramidLevels > 8 {
			return fmt.Errorf("pyramid_levels must be between 1 and 8, got %d", *c.PyramidLevels)
		}
	}

	if c.WindowRadius != nil {
		if *c.WindowRadius < 1 {
			return fmt.Errorf("window_radius must be positive, got %d", *c.WindowRadius)
		}
	}

	if c.MaxIterations != nil {
		if *c.MaxIterations < 1 {
			return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
		}
	}

	if c.Epsilon != nil {
		if *c.Epsilon <= 0 {
			return fmt.Errorf("epsilon must be positive, got %g", *c.Epsilon)
		}
	}

	if c.MinEigThreshold != nil {
		if *c.MinEigThreshold < 0 {
			return fmt.Errorf("min_eig_threshold must be non-negative, got %g", *c.MinEigThreshold)
		}
	}

	if c.PredictionWindow != nil {
		if *c.PredictionWindow < 2 {
			return fmt.Errorf("prediction_window must be at least 2, got %d", *c.PredictionWindow)
		}
	}

	return nil
}

// GetPyramidLevels returns the pyramid_levels value or the default.
func (c *TuningConfig) GetPyramidLevels() int {
	if c.PyramidLevels == nil {
		return 3 // default
	}
	return *c.PyramidLevels
}

// GetWindowRadius returns the window_radius value or the default.
// The default of 7 gives the canonical 15x15 integration window.
func (c *TuningConfig) GetWindowRadius() int {
	if c.WindowRadius == nil {
		return 7 // default
	}
	return *c.WindowRadius
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 35 // default
	}
	return *c.MaxIterations
}

// GetEpsilon returns the epsilon value or the default.
func (c *TuningConfig) GetEpsilon() float64 {
	if c.Epsilon == nil {
		return 1e-4 // default
	}
	return *c.Epsilon
}

// GetMinEigThreshold returns the min_eig_threshold value or the default.
func (c *TuningConfig) GetMinEigThreshold() float64 {
	if c.MinEigThreshold == nil {
		return 1e-4 // default
	}
	return *c.MinEigThreshold
}

// GetPredictionWindow returns the prediction_window value or the default.
func (c *TuningConfig) GetPredictionWindow() int {
	if c.PredictionWindow == nil {
		return 5 // default
	}
	return *c.PredictionWindow
}

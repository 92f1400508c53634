package flow

import (
	"github.com/softarm-vision/posture.report/internal/config"
)

// ConfigFromTuning builds a Config from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		PyramidLevels:   cfg.GetPyramidLevels(),
		WindowRadius:    cfg.GetWindowRadius(),
		MaxIterations:   cfg.GetMaxIterations(),
		Epsilon:         cfg.GetEpsilon(),
		MinEigThreshold: cfg.GetMinEigThreshold(),
	}
}

func mustTuning() *config.TuningConfig {
	return config.MustLoadDefaultConfig()
}

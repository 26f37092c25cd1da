package monitoring

import (
	"time"

	"github.com/burnt-beats/beats-core/pkg/errors"
)

// ValidateHealthConfig validates health aggregation configuration
func ValidateHealthConfig(config HealthConfig) error {
	if err := ValidateRunOptions(config.Interval, config.ProbeTimeout); err != nil {
		return err
	}

	if config.StoragePath == "" {
		return errors.NewValidationError("health storage path is required", nil)
	}

	if config.MemoryThreshold <= 0 || config.MemoryThreshold > 1 {
		return errors.NewValidationError("memory threshold must be in (0, 1]", nil).
			WithContext("memory_threshold", config.MemoryThreshold)
	}

	for _, name := range config.RequiredCredentials {
		if name == "" {
			return errors.NewValidationError("required credential name cannot be empty", nil)
		}
	}

	return nil
}

// ValidateRunOptions validates the periodic interval and per-probe timeout
func ValidateRunOptions(interval, probeTimeout time.Duration) error {
	if interval <= 0 {
		return errors.NewValidationError("health check interval must be positive", nil)
	}

	if probeTimeout <= 0 {
		return errors.NewValidationError("probe timeout must be positive", nil)
	}

	if probeTimeout >= interval {
		return errors.NewValidationError("probe timeout must be less than interval", nil).
			WithContext("interval", interval).
			WithContext("probe_timeout", probeTimeout)
	}

	return nil
}

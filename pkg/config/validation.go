package config

import (
	"time"

	"github.com/burnt-beats/beats-core/pkg/errors"
	"github.com/burnt-beats/beats-core/pkg/logging"
)

func validateServerConfig(config *ServerConfig) error {
	if err := ValidatePort(config.Port); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return errors.NewValidationError("invalid log level: "+config.LogLevel, err)
	}

	switch config.LogFormat {
	case "json", "console":
	default:
		return errors.NewValidationError("log format must be json or console", nil).WithContext("log_format", config.LogFormat)
	}

	if err := ValidateTimeout(config.DrainTimeout, "drain"); err != nil {
		return err
	}

	if err := ValidateTimeout(config.ReadHeaderTimeout, "read header"); err != nil {
		return err
	}

	return nil
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil)
	}
	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}

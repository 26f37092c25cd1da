package config

import (
	"os"
	"strconv"
	"time"

	"github.com/burnt-beats/beats-core/pkg/errors"
	"github.com/burnt-beats/beats-core/pkg/generation"
	"github.com/burnt-beats/beats-core/pkg/monitoring"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort              = 5000
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultDrainTimeout      = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Config represents the top-level configuration file structure
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Generation generation.Config       `yaml:"generation"`
	Health     monitoring.HealthConfig `yaml:"health"`
}

// ServerConfig represents service-level configuration
type ServerConfig struct {
	Port              int           `yaml:"port"`
	LogLevel          string        `yaml:"log_level,omitempty"`
	LogFormat         string        `yaml:"log_format,omitempty"`
	DrainTimeout      time.Duration `yaml:"drain_timeout,omitempty"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout,omitempty"`
	PIDFile           string        `yaml:"pid_file,omitempty"`
}

// LoadConfigFromFile loads configuration from a YAML file. An empty filename
// yields the defaults.
func LoadConfigFromFile(filename string) (*Config, error) {
	if filename == "" {
		return LoadConfig(nil)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := LoadConfig(data)
	if err != nil {
		if domainErr, ok := err.(*errors.DomainError); ok {
			domainErr.WithContext("filename", filename)
		}
		return nil, err
	}
	return config, nil
}

// LoadConfig parses YAML and applies defaults, reading PORT from the
// environment when the file leaves the port unset.
func LoadConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	if err := setConfigDefaults(&config, os.LookupEnv); err != nil {
		return nil, errors.NewValidationError("failed to apply configuration defaults", err)
	}

	return &config, nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *Config, lookupEnv func(string) (string, bool)) error {
	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
		if value, ok := lookupEnv("PORT"); ok && value != "" {
			port, err := strconv.Atoi(value)
			if err != nil {
				return errors.NewValidationError("invalid PORT environment variable", err).WithContext("value", value)
			}
			config.Server.Port = port
		}
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = DefaultLogLevel
	}
	if config.Server.LogFormat == "" {
		config.Server.LogFormat = DefaultLogFormat
	}
	if config.Server.DrainTimeout == 0 {
		config.Server.DrainTimeout = DefaultDrainTimeout
	}
	if config.Server.ReadHeaderTimeout == 0 {
		config.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}

	config.Generation.ApplyDefaults()
	config.Health.ApplyDefaults()

	return nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return errors.NewValidationError("invalid server configuration", err)
	}

	if err := generation.ValidateConfig(config.Generation); err != nil {
		return errors.NewValidationError("invalid generation configuration", err)
	}

	if err := monitoring.ValidateHealthConfig(config.Health); err != nil {
		return errors.NewValidationError("invalid health configuration", err)
	}

	return nil
}

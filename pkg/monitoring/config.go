package monitoring

import (
	"os"
	"time"
)

const (
	DefaultInterval        = 30 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
	DefaultMemoryThreshold = 0.9
)

// DefaultRequiredCredentials are the payment credentials checked by default.
var DefaultRequiredCredentials = []string{"STRIPE_SECRET_KEY"}

type HealthConfig struct {
	Interval            time.Duration `yaml:"interval"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	StoragePath         string        `yaml:"storage_path"`
	MemoryThreshold     float64       `yaml:"memory_threshold"`
	RequiredCredentials []string      `yaml:"required_credentials"`
}

// ApplyDefaults fills zero-valued fields.
func (c *HealthConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.StoragePath == "" {
		c.StoragePath = os.TempDir()
	}
	if c.MemoryThreshold == 0 {
		c.MemoryThreshold = DefaultMemoryThreshold
	}
	if c.RequiredCredentials == nil {
		c.RequiredCredentials = append([]string(nil), DefaultRequiredCredentials...)
	}
}

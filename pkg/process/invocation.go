package process

import (
	"time"
)

const (
	// DefaultWaitDelay bounds how long Wait keeps draining output after the
	// child exits while a grandchild still holds its stdout/stderr open.
	DefaultWaitDelay = 5 * time.Second

	// DefaultStderrExcerptLimit is the number of trailing stderr bytes kept in a Failure.
	DefaultStderrExcerptLimit = 2048
)

// Invocation describes one external script call. It is a value and is never mutated.
type Invocation struct {
	// ID is only used for logging and metrics, e.g. "midi" or "vocals".
	ID               string        `yaml:"id,omitempty" json:"id,omitempty"`
	ExecutablePath   string        `yaml:"executable_path" json:"executable_path"`
	Args             []string      `yaml:"args,omitempty" json:"args,omitempty"`
	Environment      []string      `yaml:"environment,omitempty" json:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
}

// WithArgs returns a copy of the invocation with extra arguments appended.
func (inv Invocation) WithArgs(args ...string) Invocation {
	merged := make([]string, 0, len(inv.Args)+len(args))
	merged = append(merged, inv.Args...)
	merged = append(merged, args...)
	inv.Args = merged
	return inv
}

// WithID returns a copy of the invocation carrying the given ID.
func (inv Invocation) WithID(id string) Invocation {
	inv.ID = id
	return inv
}

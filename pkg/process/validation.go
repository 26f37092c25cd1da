package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/burnt-beats/beats-core/pkg/errors"
)

// ValidateInvocation checks the parts of an invocation that do not depend on
// the executable actually existing. A missing binary is reported by the
// invoker as SpawnFailed, not as a validation error.
func ValidateInvocation(inv Invocation) error {
	if inv.ExecutablePath == "" {
		return errors.NewValidationError("executable path is required", nil)
	}

	if inv.Timeout <= 0 {
		return errors.NewValidationError("timeout must be positive", nil).WithContext("timeout", inv.Timeout.String())
	}

	if inv.WorkingDirectory != "" {
		if !filepath.IsAbs(inv.WorkingDirectory) {
			return errors.NewValidationError("working directory must be absolute path", nil)
		}

		if info, err := os.Stat(inv.WorkingDirectory); err != nil {
			return errors.NewValidationError("working directory not accessible: "+inv.WorkingDirectory, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+inv.WorkingDirectory, nil)
		}
	}

	for _, env := range inv.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	return nil
}

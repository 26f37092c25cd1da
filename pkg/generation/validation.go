package generation

import (
	"strings"

	"github.com/burnt-beats/beats-core/pkg/errors"
)

const (
	MinTempo    = 40
	MaxTempo    = 300
	MinDuration = 1
	MaxDuration = 600
)

// ValidateRequest checks the backing-track inputs. It runs before anything
// is spawned.
func ValidateRequest(req Request) error {
	collection := errors.NewErrorCollection()

	required := []struct {
		field string
		value string
	}{
		{"title", req.Title},
		{"theme", req.Theme},
		{"genre", req.Genre},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			collection.Add(errors.NewValidationError(r.field+" is required", nil).WithContext("field", r.field))
		}
	}

	if req.Tempo < MinTempo || req.Tempo > MaxTempo {
		collection.Add(errors.NewValidationError("tempo must be between 40 and 300 BPM", nil).
			WithContext("field", "tempo").
			WithContext("value", req.Tempo))
	}

	if req.Duration != nil && (*req.Duration < MinDuration || *req.Duration > MaxDuration) {
		collection.Add(errors.NewValidationError("duration must be between 1 and 600 seconds", nil).
			WithContext("field", "duration").
			WithContext("value", *req.Duration))
	}

	if collection.HasErrors() {
		return errors.NewValidationError("invalid generation request", collection)
	}
	return nil
}

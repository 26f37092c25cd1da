package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		error    *DomainError
		expected string
	}{
		{
			name:     "error without cause",
			error:    NewValidationError("title is required", nil),
			expected: "validation: title is required",
		},
		{
			name:     "error with cause",
			error:    NewMandatoryStepError("backing track failed", errors.New("exit 1")),
			expected: "mandatory_step: backing track failed: exit 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.error.Error())
		})
	}
}

func TestDomainError_WithContext(t *testing.T) {
	err := NewMandatoryStepError("backing track failed", nil).
		WithContext("reason", "NonZeroExit").
		WithContext("exit_code", 2)

	assert.Equal(t, "NonZeroExit", err.Context["reason"])
	assert.Equal(t, 2, err.Context["exit_code"])
	assert.Equal(t, err.Context, ContextOf(err))
}

func TestDomainError_WrappedTypeChecking(t *testing.T) {
	inner := NewValidationError("tempo out of range", nil)
	wrapped := fmt.Errorf("handling request: %w", inner)

	assert.True(t, IsValidationError(wrapped))
	assert.False(t, IsMandatoryStepError(wrapped))
	assert.Equal(t, ErrorTypeValidation, TypeOf(wrapped))
	assert.True(t, errors.Is(wrapped, &DomainError{Type: ErrorTypeValidation}))

	plain := errors.New("plain")
	assert.Equal(t, ErrorType(""), TypeOf(plain))
	assert.Nil(t, ContextOf(plain))
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()
	assert.False(t, collection.HasErrors())
	assert.Nil(t, collection.ToError())

	collection.Add(NewIOError("probe file not writable", nil))
	collection.Add(NewHealthCheckError("memory probe panicked", nil))
	collection.Add(nil)

	require.True(t, collection.HasErrors())
	assert.Len(t, collection.Errors, 2)
	assert.Contains(t, collection.ToError().Error(), "2 errors occurred")
}

func TestAllErrorTypes(t *testing.T) {
	errorTypes := []struct {
		name        string
		constructor func(string, error) *DomainError
		checker     func(error) bool
		errorType   ErrorType
	}{
		{"validation", NewValidationError, IsValidationError, ErrorTypeValidation},
		{"process", NewProcessError, IsProcessError, ErrorTypeProcess},
		{"mandatory_step", NewMandatoryStepError, IsMandatoryStepError, ErrorTypeMandatoryStep},
		{"health_check", NewHealthCheckError, IsHealthCheckError, ErrorTypeHealthCheck},
		{"timeout", NewTimeoutError, IsTimeoutError, ErrorTypeTimeout},
		{"io", NewIOError, IsIOError, ErrorTypeIO},
		{"internal", NewInternalError, IsInternalError, ErrorTypeInternal},
		{"cancelled", NewCancelledError, IsCancelledError, ErrorTypeCancelled},
	}

	for _, tt := range errorTypes {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("test message", nil)
			assert.Equal(t, tt.errorType, err.Type)
			assert.True(t, tt.checker(err))
		})
	}
}

package process

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// FailureReason classifies why an invocation did not produce a usable payload.
type FailureReason string

const (
	ReasonNonZeroExit       FailureReason = "NonZeroExit"
	ReasonTimeout           FailureReason = "Timeout"
	ReasonSpawnFailed       FailureReason = "SpawnFailed"
	ReasonOutputParseFailed FailureReason = "OutputParseFailed"
)

// Failure carries enough detail for an operator to diagnose a failed script.
type Failure struct {
	Reason        FailureReason `json:"reason"`
	ExitCode      *int          `json:"exit_code,omitempty"`
	StderrExcerpt string        `json:"stderr_excerpt,omitempty"`
	Message       string        `json:"message,omitempty"`
}

func (f *Failure) Error() string {
	msg := string(f.Reason)
	if f.ExitCode != nil {
		msg += fmt.Sprintf(" (exit code %d)", *f.ExitCode)
	}
	if f.Message != "" {
		msg += ": " + f.Message
	}
	return msg
}

// Result is the outcome of one invocation. Exactly one of Output or Failure is set.
type Result struct {
	InvocationID string          `json:"invocation_id,omitempty"`
	Status       Status          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	Stdout       string          `json:"stdout,omitempty"`
	Failure      *Failure        `json:"failure,omitempty"`
	PID          int             `json:"pid,omitempty"`
	Duration     time.Duration   `json:"duration"`
}

func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess && r.Failure == nil
}

func successResult(id string, output json.RawMessage, stdout string) Result {
	return Result{
		InvocationID: id,
		Status:       StatusSuccess,
		Output:       output,
		Stdout:       stdout,
	}
}

func failureResult(id string, failure *Failure) Result {
	return Result{
		InvocationID: id,
		Status:       StatusFailure,
		Failure:      failure,
	}
}

// Decode unmarshals a successful result's payload into T. A failed result
// returns its own Failure; a payload that does not fit T is reported as
// OutputParseFailed so callers handle both cases the same way.
func Decode[T any](r Result) (T, *Failure) {
	var payload T
	if !r.Succeeded() {
		if r.Failure == nil {
			return payload, &Failure{Reason: ReasonOutputParseFailed, Message: "result has neither output nor failure"}
		}
		return payload, r.Failure
	}
	if err := json.Unmarshal(r.Output, &payload); err != nil {
		return payload, &Failure{
			Reason:  ReasonOutputParseFailed,
			Message: fmt.Sprintf("payload does not match expected shape: %v", err),
		}
	}
	return payload, nil
}

// extractPayload finds the structured payload in captured stdout. The whole
// output is tried first, then the last non-empty line that is valid JSON, so
// scripts may print progress lines before their result.
func extractPayload(stdout []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, false
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), true
	}

	lines := bytes.Split(trimmed, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if (line[0] == '{' || line[0] == '[') && json.Valid(line) {
			return json.RawMessage(line), true
		}
	}
	return nil, false
}

// tail returns at most limit trailing bytes of b as a string.
func tail(b []byte, limit int) string {
	b = bytes.TrimSpace(b)
	if limit > 0 && len(b) > limit {
		b = b[len(b)-limit:]
	}
	return string(b)
}

package generation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/burnt-beats/beats-core/pkg/errors"
	"github.com/burnt-beats/beats-core/pkg/logging"
	"github.com/burnt-beats/beats-core/pkg/process"

	"github.com/google/uuid"
)

// Step outcomes reported to observers.
const (
	OutcomeSuccess      = "success"
	OutcomeByRequest    = "omitted_by_request"
	OutcomeMissingInput = "missing_input"
	OutcomeFailure      = "failure"
)

// Generation outcomes reported to observers.
const (
	GenerationCompleted        = "completed"
	GenerationPartial          = "partial"
	GenerationValidationFailed = "validation_failed"
	GenerationMandatoryFailed  = "mandatory_failed"
	GenerationError            = "error"
)

// Orchestrator produces composite songs. Generate returns either a usable
// Result or an error, never both.
type Orchestrator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// ScriptError is a well-formed payload in which the script reports its own
// failure (`{"status":"error","error":"..."}`).
type ScriptError struct {
	Step    string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s script reported error: %s", e.Step, e.Message)
}

type Option func(*orchestrator)

func WithStepObserver(observer func(step, outcome string)) Option {
	return func(o *orchestrator) {
		o.stepObservers = append(o.stepObservers, observer)
	}
}

func WithGenerationObserver(observer func(outcome string)) Option {
	return func(o *orchestrator) {
		o.generationObservers = append(o.generationObservers, observer)
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(o *orchestrator) {
		o.newID = newID
	}
}

type orchestrator struct {
	config              Config
	invoker             process.Invoker
	logger              logging.Logger
	newID               func() string
	stepObservers       []func(step, outcome string)
	generationObservers []func(outcome string)
}

func NewOrchestrator(config Config, invoker process.Invoker, logger logging.Logger, opts ...Option) Orchestrator {
	o := &orchestrator{
		config:  config,
		invoker: invoker,
		logger:  logger,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type optionalStep struct {
	name      string
	requested func(Request) bool
	// missing names the absent input, or returns "" when the step can run.
	missing func(Request) string
	run     func(ctx context.Context, req Request, dir string) (*Artifact, error)
}

func (o *orchestrator) optionalSteps() []optionalStep {
	return []optionalStep{
		{
			name:      StepVocals,
			requested: Request.wantsVocals,
			missing: func(r Request) string {
				if strings.TrimSpace(r.Lyrics) == "" {
					return "lyrics"
				}
				return ""
			},
			run: o.runVocals,
		},
		{
			name:      StepAIMusic,
			requested: Request.wantsAIMusic,
			missing: func(r Request) string {
				if strings.TrimSpace(r.AIPrompt) == "" {
					return "ai_prompt"
				}
				return ""
			},
			run: o.runAIMusic,
		},
	}
}

func (o *orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	if err := ValidateRequest(req); err != nil {
		o.logger.Warnf("Generation request rejected, title: %q, error: %v", req.Title, err)
		o.recordGeneration(GenerationValidationFailed)
		return Result{}, err
	}

	id := o.newID()
	c := newComposite(id, time.Now())
	dir := filepath.Join(o.config.OutputDirectory, id)

	o.logger.Infof("Generation started, id: %s, title: %q, genre: %s, tempo: %d, vocals: %v, ai music: %v",
		id, req.Title, req.Genre, req.Tempo, req.wantsVocals(), req.wantsAIMusic())

	if err := os.MkdirAll(dir, 0755); err != nil {
		o.logger.Errorf("Failed to create output directory, id: %s, path: %s, error: %v", id, dir, err)
		o.recordGeneration(GenerationError)
		return Result{}, errors.NewIOError("failed to create output directory", err).WithContext("path", dir)
	}

	midi, err := o.runMIDI(ctx, req, dir)
	if err != nil {
		o.recordStep(StepMIDI, OutcomeFailure)
		o.recordGeneration(GenerationMandatoryFailed)
		o.logger.Errorf("Backing track failed, aborting generation, id: %s, error: %v", id, err)
		if err := os.RemoveAll(dir); err != nil {
			o.logger.Warnf("Failed to remove output directory, id: %s, path: %s, error: %v", id, dir, err)
		}
		return Result{}, mandatoryStepError(id, err)
	}
	o.recordStep(StepMIDI, OutcomeSuccess)
	o.setEntry(c, StepMIDI, ArtifactEntry{Artifact: midi})

	var wg sync.WaitGroup
	for _, step := range o.optionalSteps() {
		if !step.requested(req) {
			o.recordStep(step.name, OutcomeByRequest)
			o.setEntry(c, step.name, ArtifactEntry{Omission: &Omission{Kind: OmittedByRequest}})
			continue
		}
		if input := step.missing(req); input != "" {
			o.recordStep(step.name, OutcomeMissingInput)
			o.setEntry(c, step.name, ArtifactEntry{Omission: &Omission{Kind: OmittedMissingInput, Reason: "missing " + input}})
			continue
		}

		wg.Add(1)
		go func(step optionalStep) {
			defer wg.Done()
			o.setEntry(c, step.name, o.runOptional(ctx, id, step, req, dir))
		}(step)
	}
	wg.Wait()

	result := c.complete(time.Now())
	if result.Partial() {
		o.recordGeneration(GenerationPartial)
	} else {
		o.recordGeneration(GenerationCompleted)
	}
	o.logger.Infof("Generation completed, id: %s, partial: %v, duration: %v", id, result.Partial(), result.CompletedAt.Sub(result.CreatedAt))
	return result, nil
}

func (o *orchestrator) setEntry(c *composite, step string, entry ArtifactEntry) {
	if err := c.set(step, entry); err != nil {
		o.logger.Errorf("Artifact entry dropped, step: %s, error: %v", step, err)
	}
}

// runOptional converts every failure, including a panic, into an omission.
func (o *orchestrator) runOptional(ctx context.Context, id string, step optionalStep, req Request, dir string) (entry ArtifactEntry) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("Optional step panicked, id: %s, step: %s, panic: %v", id, step.name, r)
			o.recordStep(step.name, OutcomeFailure)
			entry = ArtifactEntry{Omission: &Omission{Kind: OmittedFailure, Reason: fmt.Sprintf("Error:%v", r)}}
		}
	}()

	artifact, err := step.run(ctx, req, dir)
	if err != nil {
		o.logger.Warnf("Optional step failed, recording omission, id: %s, step: %s, error: %v", id, step.name, err)
		o.recordStep(step.name, OutcomeFailure)
		return ArtifactEntry{Omission: &Omission{Kind: OmittedFailure, Reason: omissionReason(err)}}
	}
	o.recordStep(step.name, OutcomeSuccess)
	return ArtifactEntry{Artifact: artifact}
}

func (o *orchestrator) runMIDI(ctx context.Context, req Request, dir string) (*Artifact, error) {
	output := filepath.Join(dir, "backing.mid")
	args := []string{
		"--title", req.Title,
		"--theme", req.Theme,
		"--genre", req.Genre,
		"--tempo", strconv.Itoa(req.Tempo),
		"--output", output,
	}
	if req.Duration != nil {
		args = append(args, "--duration", strconv.Itoa(*req.Duration))
	}
	if req.VoiceID != "" {
		args = append(args, "--voice-id", req.VoiceID)
	}

	payload, err := o.invoke(ctx, StepMIDI, o.config.MIDI, args)
	if err != nil {
		return nil, err
	}

	metadata := o.readMetadata(output)
	if metadata == nil {
		metadata = payload
	}
	return &Artifact{Path: pathFrom(payload, output, "path", "output"), Metadata: metadata}, nil
}

func (o *orchestrator) runVocals(ctx context.Context, req Request, dir string) (*Artifact, error) {
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	output := filepath.Join(dir, "vocals.wav")
	args := []string{
		"--action", "clone",
		"--voice-id", voiceID,
		"--text", req.Lyrics,
		"--output", output,
	}

	payload, err := o.invoke(ctx, StepVocals, o.config.Vocals, args)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: pathFrom(payload, output, "audio_path", "path"), Metadata: payload}, nil
}

func (o *orchestrator) runAIMusic(ctx context.Context, req Request, dir string) (*Artifact, error) {
	length := DefaultAudioLength
	if req.Duration != nil {
		length = *req.Duration
	}
	output := filepath.Join(dir, "ai.wav")
	args := []string{"--prompt", req.AIPrompt}
	if o.config.AIMusic.ModelPath != "" {
		args = append(args, "--model_path", o.config.AIMusic.ModelPath)
	}
	args = append(args,
		"--output_file", output,
		"--audio_length_in_s", strconv.Itoa(length),
	)

	payload, err := o.invoke(ctx, StepAIMusic, o.config.AIMusic.ScriptConfig, args)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: pathFrom(payload, output, "output_file", "audio_path", "path"), Metadata: payload}, nil
}

// invoke runs one script and decodes its object payload.
func (o *orchestrator) invoke(ctx context.Context, step string, script ScriptConfig, args []string) (map[string]any, error) {
	inv := script.Invocation(step).WithArgs(args...)
	result := o.invoker.Invoke(ctx, inv)

	payload, failure := process.Decode[map[string]any](result)
	if failure != nil {
		return nil, failure
	}
	if payload == nil {
		return nil, &process.Failure{Reason: process.ReasonOutputParseFailed, Message: "payload is null"}
	}
	if status, _ := payload["status"].(string); status == "error" {
		message, _ := payload["error"].(string)
		if message == "" {
			message = "unspecified error"
		}
		return nil, &ScriptError{Step: step, Message: message}
	}
	return payload, nil
}

// readMetadata loads the sidecar `<name>_metadata.json` the backing-track
// script writes next to its output. Absent or unreadable sidecars yield nil.
func (o *orchestrator) readMetadata(output string) map[string]any {
	path := strings.TrimSuffix(output, filepath.Ext(output)) + "_metadata.json"
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			o.logger.Warnf("Failed to read metadata file, path: %s, error: %v", path, err)
		}
		return nil
	}

	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		o.logger.Warnf("Invalid metadata file, path: %s, error: %v", path, err)
		return nil
	}
	return metadata
}

func (o *orchestrator) recordStep(step, outcome string) {
	for _, observer := range o.stepObservers {
		observer(step, outcome)
	}
}

func (o *orchestrator) recordGeneration(outcome string) {
	for _, observer := range o.generationObservers {
		observer(outcome)
	}
}

func pathFrom(payload map[string]any, fallback string, keys ...string) string {
	for _, key := range keys {
		if path, ok := payload[key].(string); ok && path != "" {
			return path
		}
	}
	return fallback
}

// omissionReason renders the reason recorded for a failed optional step.
func omissionReason(err error) string {
	var failure *process.Failure
	if stderrors.As(err, &failure) {
		return "ProcessFailure:" + string(failure.Reason)
	}
	var scriptErr *ScriptError
	if stderrors.As(err, &scriptErr) {
		return "ScriptError:" + scriptErr.Message
	}
	return "Error:" + err.Error()
}

func mandatoryStepError(id string, err error) *errors.DomainError {
	domainErr := errors.NewMandatoryStepError("backing track generation failed", err).
		WithContext("id", id).
		WithContext("step", StepMIDI)

	var failure *process.Failure
	if stderrors.As(err, &failure) {
		domainErr.WithContext("reason", string(failure.Reason))
		if failure.ExitCode != nil {
			domainErr.WithContext("exit_code", *failure.ExitCode)
		}
		if failure.StderrExcerpt != "" {
			domainErr.WithContext("stderr", failure.StderrExcerpt)
		}
	} else {
		domainErr.WithContext("reason", "ScriptError")
	}
	return domainErr
}

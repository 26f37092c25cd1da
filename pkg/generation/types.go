package generation

import "time"

const (
	StepMIDI    = "midi"
	StepVocals  = "vocals"
	StepAIMusic = "aiMusic"
)

// Request describes one composite song. Title, theme, genre and tempo drive
// the mandatory backing track; the rest is optional.
type Request struct {
	Title          string `json:"title"`
	Theme          string `json:"theme"`
	Genre          string `json:"genre"`
	Tempo          int    `json:"tempo"`
	Duration       *int   `json:"duration,omitempty"`
	Lyrics         string `json:"lyrics,omitempty"`
	VoiceID        string `json:"voice_id,omitempty"`
	AIPrompt       string `json:"ai_prompt,omitempty"`
	IncludeVocals  bool   `json:"include_vocals,omitempty"`
	IncludeAIMusic bool   `json:"include_ai_music,omitempty"`
}

func (r Request) wantsVocals() bool {
	return r.IncludeVocals || r.Lyrics != ""
}

func (r Request) wantsAIMusic() bool {
	return r.IncludeAIMusic || r.AIPrompt != ""
}

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

type OmissionKind string

const (
	OmittedByRequest    OmissionKind = "by_request"
	OmittedMissingInput OmissionKind = "missing_input"
	OmittedFailure      OmissionKind = "failure"
)

type Artifact struct {
	Path     string         `json:"path"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Omission records why an optional artifact is absent.
type Omission struct {
	Kind   OmissionKind `json:"kind"`
	Reason string       `json:"reason,omitempty"`
}

// ArtifactEntry holds exactly one of Artifact or Omission.
type ArtifactEntry struct {
	Artifact *Artifact `json:"artifact,omitempty"`
	Omission *Omission `json:"omission,omitempty"`
}

type Result struct {
	ID          string                   `json:"id"`
	Status      Status                   `json:"status"`
	Artifacts   map[string]ArtifactEntry `json:"artifacts"`
	CreatedAt   time.Time                `json:"created_at"`
	CompletedAt time.Time                `json:"completed_at"`
}

// Usable reports whether callers can consume the result: it is completed and
// carries the backing track.
func (r Result) Usable() bool {
	if r.Status != StatusCompleted {
		return false
	}
	entry, ok := r.Artifacts[StepMIDI]
	return ok && entry.Artifact != nil
}

// Partial reports whether any optional artifact failed to generate.
func (r Result) Partial() bool {
	for _, entry := range r.Artifacts {
		if entry.Omission != nil && entry.Omission.Kind != OmittedByRequest {
			return true
		}
	}
	return false
}

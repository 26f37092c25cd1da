package generation

import (
	"time"

	"github.com/burnt-beats/beats-core/pkg/errors"
	"github.com/burnt-beats/beats-core/pkg/process"
)

const (
	DefaultMIDITimeout    = 120 * time.Second
	DefaultVocalsTimeout  = 300 * time.Second
	DefaultAIMusicTimeout = 600 * time.Second

	DefaultOutputDirectory = "generated"
	DefaultVoiceID         = "default"
	DefaultAudioLength     = 10
)

// ScriptConfig describes how to launch one generation script. Args is the
// fixed prefix (typically the script path); per-request flags are appended.
type ScriptConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	Args             []string      `yaml:"args,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	Timeout          time.Duration `yaml:"timeout"`
}

func (s ScriptConfig) Invocation(id string) process.Invocation {
	return process.Invocation{
		ID:               id,
		ExecutablePath:   s.ExecutablePath,
		Args:             append([]string(nil), s.Args...),
		WorkingDirectory: s.WorkingDirectory,
		Environment:      append([]string(nil), s.Environment...),
		Timeout:          s.Timeout,
	}
}

type AIMusicConfig struct {
	ScriptConfig `yaml:",inline"`
	ModelPath    string `yaml:"model_path,omitempty"`
}

type Config struct {
	OutputDirectory string        `yaml:"output_directory"`
	MIDI            ScriptConfig  `yaml:"midi"`
	Vocals          ScriptConfig  `yaml:"vocals"`
	AIMusic         AIMusicConfig `yaml:"ai_music"`
}

// ApplyDefaults fills zero-valued fields with the stock python scripts.
func (c *Config) ApplyDefaults() {
	if c.OutputDirectory == "" {
		c.OutputDirectory = DefaultOutputDirectory
	}
	applyScriptDefaults(&c.MIDI, "server/enhanced-midi-generator.py", DefaultMIDITimeout)
	applyScriptDefaults(&c.Vocals, "server/rvc-integration.py", DefaultVocalsTimeout)
	applyScriptDefaults(&c.AIMusic.ScriptConfig, "inference_audioldm2.py", DefaultAIMusicTimeout)
}

func applyScriptDefaults(s *ScriptConfig, script string, timeout time.Duration) {
	if s.ExecutablePath == "" {
		s.ExecutablePath = "python3"
		if len(s.Args) == 0 {
			s.Args = []string{script}
		}
	}
	if s.Timeout == 0 {
		s.Timeout = timeout
	}
}

// ValidateConfig validates generation configuration
func ValidateConfig(config Config) error {
	if config.OutputDirectory == "" {
		return errors.NewValidationError("output directory is required", nil)
	}

	scripts := map[string]ScriptConfig{
		StepMIDI:    config.MIDI,
		StepVocals:  config.Vocals,
		StepAIMusic: config.AIMusic.ScriptConfig,
	}
	for step, script := range scripts {
		if err := process.ValidateInvocation(script.Invocation(step)); err != nil {
			return errors.NewValidationError("invalid script configuration", err).WithContext("step", step)
		}
	}

	return nil
}

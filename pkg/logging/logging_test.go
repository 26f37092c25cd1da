package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_PrefixAndLevels(t *testing.T) {
	var lines []string
	record := func(level string) LogFunc {
		return func(format string, args ...interface{}) {
			lines = append(lines, level+" "+fmt.Sprintf(format, args...))
		}
	}

	logger := NewLogger("module: test , ", LogFuncs{
		Debugf: record("debug"),
		Infof:  record("info"),
		Warnf:  record("warn"),
		Errorf: record("error"),
	})

	logger.Debugf("a %d", 1)
	logger.Infof("b %d", 2)
	logger.Warnf("c %d", 3)
	logger.Errorf("d %d", 4)
	logger.LogLevelf(LogLevelInfo, "e %d", 5)

	assert.Equal(t, []string{
		"debug module: test , a 1",
		"info module: test , b 2",
		"warn module: test , c 3",
		"error module: test , d 4",
		"info module: test , e 5",
	}, lines)
}

func TestLogger_MissingFuncsAreIgnored(t *testing.T) {
	logger := Nop()
	assert.NotPanics(t, func() {
		logger.Debugf("x")
		logger.Errorf("y")
		logger.LogLevelf(42, "z")
	})
}

func TestWithModule(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	base := NewZapBacked("", zap.New(core))

	WithModule(base, "invoker").Warnf("Invocation timed out, id: %s", "midi")

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "module: invoker , Invocation timed out, id: midi", entries[0].Message)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		expected  zapcore.Level
		shouldErr bool
	}{
		{"debug", "debug", zapcore.DebugLevel, false},
		{"empty_defaults_to_info", "", zapcore.InfoLevel, false},
		{"warn", "warn", zapcore.WarnLevel, false},
		{"error", "error", zapcore.ErrorLevel, false},
		{"invalid", "verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := ParseLevel(tt.level)
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestNewZapLogger(t *testing.T) {
	config := DefaultZapConfig()
	config.Format = "console"
	config.Output = "stderr"

	logger, err := NewZapLogger(config)
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewZapLogger(ZapConfig{Level: "loud"})
	assert.Error(t, err)
}

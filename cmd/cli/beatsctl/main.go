package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/burnt-beats/beats-core/pkg/logging"
	"github.com/burnt-beats/beats-core/pkg/monitoring"
	"github.com/burnt-beats/beats-core/pkg/process"
	"github.com/burnt-beats/beats-core/pkg/server"

	flags "github.com/jessevdk/go-flags"
)

type globalOptions struct {
	LogLevel string `long:"log-level" default:"warn" description:"debug, info, warn or error"`
}

type healthCommand struct {
	URL     string        `long:"url" default:"http://localhost:5000" description:"base URL of the service"`
	Full    bool          `long:"full" description:"query the full health report instead of the liveness summary"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"request timeout"`
}

type invokeCommand struct {
	Executable string        `long:"executable" required:"true" description:"script interpreter or executable"`
	WorkDir    string        `long:"workdir" description:"absolute working directory"`
	Env        []string      `long:"env" description:"extra KEY=VALUE environment entries"`
	Timeout    time.Duration `long:"timeout" default:"120s" description:"invocation timeout"`
	ID         string        `long:"id" default:"cli" description:"invocation id used in logs"`
}

var globals globalOptions

func newLogger() (logging.Logger, error) {
	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = globals.LogLevel
	zapConfig.Format = "console"
	zapConfig.Output = "stderr"
	zapLogger, err := logging.NewZapLogger(zapConfig)
	if err != nil {
		return nil, err
	}
	return logging.NewZapBacked(logging.ModulePrefix("beatsctl"), zapLogger), nil
}

// Execute reports the service health and fails when it is not serving traffic.
func (c *healthCommand) Execute(args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	route := server.RouteHealthz
	if c.Full {
		route = server.RouteHealth
	}
	url := strings.TrimSuffix(c.URL, "/") + route
	logger.Debugf("Querying health, url: %s", url)

	client := &http.Client{Timeout: c.Timeout}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}

	var summary struct {
		Status monitoring.OverallStatus `json:"status"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		return fmt.Errorf("unexpected health response: %w", err)
	}

	fmt.Println(strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service is %s (HTTP %d)", summary.Status, resp.StatusCode)
	}
	return nil
}

// Execute runs one script through the invoker and prints the result.
func (c *invokeCommand) Execute(args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	inv := process.Invocation{
		ID:               c.ID,
		ExecutablePath:   c.Executable,
		Args:             args,
		WorkingDirectory: c.WorkDir,
		Environment:      c.Env,
		Timeout:          c.Timeout,
	}
	result := process.NewInvoker(logging.WithModule(logger, "process")).Invoke(context.Background(), inv)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}
	if !result.Succeeded() {
		return result.Failure
	}
	return nil
}

func main() {
	parser := flags.NewParser(&globals, flags.HelpFlag|flags.PassDoubleDash)
	_, _ = parser.AddCommand("health", "Check service health",
		"Queries /healthz (or /health with --full) and exits non-zero unless the service reports 200.", &healthCommand{})
	_, _ = parser.AddCommand("invoke", "Run one generation script",
		"Runs an executable with the given arguments under the invoker's timeout and payload rules.", &invokeCommand{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

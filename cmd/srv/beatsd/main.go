package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/burnt-beats/beats-core/pkg/config"
	"github.com/burnt-beats/beats-core/pkg/generation"
	"github.com/burnt-beats/beats-core/pkg/logging"
	"github.com/burnt-beats/beats-core/pkg/metrics"
	"github.com/burnt-beats/beats-core/pkg/monitoring"
	"github.com/burnt-beats/beats-core/pkg/process"
	"github.com/burnt-beats/beats-core/pkg/processfile"
	"github.com/burnt-beats/beats-core/pkg/server"
	"github.com/burnt-beats/beats-core/pkg/shutdown"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type flagOptions struct {
	Config    string `long:"config" short:"c" description:"path to the YAML configuration file"`
	Port      int    `long:"port" description:"port to listen on, overrides the configuration file"`
	LogLevel  string `long:"log-level" description:"debug, info, warn or error"`
	LogFormat string `long:"log-format" description:"json or console"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfigFromFile(opts.Config)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg, opts)

	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = cfg.Server.LogLevel
	zapConfig.Format = cfg.Server.LogFormat
	zapLogger, err := logging.NewZapLogger(zapConfig)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Error("Service terminated with error", zap.Error(err))
		_ = zapLogger.Sync()
		os.Exit(1)
	}
}

func applyFlagOverrides(cfg *config.Config, opts flagOptions) {
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.LogLevel != "" {
		cfg.Server.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Server.LogFormat = opts.LogFormat
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	base := newBaseLogger(zapLogger)
	logger := logging.WithModule(base, "beatsd")
	logger.Infof("Starting..., port: %d, output directory: %s", cfg.Server.Port, cfg.Generation.OutputDirectory)

	collector := metrics.NewCollector(metrics.DefaultNamespace)

	pidFile := writePIDFile(cfg.Server.PIDFile, logging.WithModule(base, "processfile"))
	if pidFile != "" {
		manager, name := processfile.NewForPath(pidFile, logging.WithModule(base, "processfile"))
		defer func() { _ = manager.RemovePIDFile(name) }()
	}

	invoker := process.NewInvoker(
		logging.WithModule(base, "process"),
		process.WithObserver(collector.InvocationObserver()),
	)

	orchestrator := generation.NewOrchestrator(cfg.Generation, invoker,
		logging.WithModule(base, "generation"),
		generation.WithStepObserver(collector.GenerationStep),
		generation.WithGenerationObserver(collector.Generation),
	)

	aggregator := monitoring.NewAggregator(
		monitoring.NewStandardProbes(cfg.Health, pidFile),
		logging.WithModule(base, "monitoring"),
		monitoring.WithProbeTimeout(cfg.Health.ProbeTimeout),
		monitoring.WithSnapshotObserver(monitoring.RecordingObserver(collector)),
	)
	if err := aggregator.Start(cfg.Health.Interval); err != nil {
		return err
	}

	srv := server.NewServer(aggregator, orchestrator, collector, logging.WithModule(base, "server"))
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		aggregator.Stop()
		return err
	}

	coordinator := shutdown.NewCoordinator(httpServer, listener,
		logging.WithModule(base, "shutdown"),
		shutdown.WithDrainTimeout(cfg.Server.DrainTimeout),
		shutdown.WithStopper(aggregator),
		shutdown.WithAfterDrain(invoker),
		shutdown.WithFinalHealthCheck(aggregator),
		shutdown.WithStateObserver(func(state shutdown.State) {
			collector.ShutdownState(string(state), shutdown.AllStates)
		}),
	)

	err = coordinator.Serve()
	logger.Infof("Done")
	return err
}

// newBaseLogger adapts zap without a prefix; every component, the service
// itself included, derives its own module logger from it.
func newBaseLogger(zapLogger *zap.Logger) logging.Logger {
	return logging.NewZapBacked("", zapLogger)
}

// writePIDFile records this process and returns the path the process probe
// should watch. An empty result makes the probe check the current process.
func writePIDFile(path string, logger logging.Logger) string {
	if path == "" {
		return ""
	}
	manager, name := processfile.NewForPath(path, logger)
	if err := manager.WritePIDFile(name, os.Getpid()); err != nil {
		logger.Warnf("Continuing without PID file, error: %v", err)
		return ""
	}
	return manager.GeneratePIDFilePath(name)
}

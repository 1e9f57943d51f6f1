// Package main provides the go-sample-profiler CLI entry point.
//
// go-sample-profiler attaches the macOS sample tool to one or more browser
// processes, waits until each has started recording, and collects every
// report when the run ends.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-sample-profiler/internal/config"
	"github.com/randomizedcoder/go-sample-profiler/internal/logging"
	"github.com/randomizedcoder/go-sample-profiler/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-sample-profiler
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-sample-profiler %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Printf("go-sample-profiler %s\n", version)
		return 0
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		printSampleCommands(os.Stdout, cfg)
		return 0
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	runID := logging.NewRunID()
	logger = logging.WithRun(logger, runID)
	logging.SetDefault(logger)

	// Log startup
	logger.Info("starting",
		"version", version,
		"profiler", cfg.Profiler,
		"targets", len(cfg.Targets),
		"browser_pid", cfg.BrowserPID,
		"duration", cfg.Duration.String(),
		"metrics_addr", cfg.MetricsAddr,
		"config_file", cfg.ConfigFile,
	)

	if !cfg.TUIEnabled {
		printBanner(os.Stdout, cfg)
	}

	// Create and run orchestrator
	orch := orchestrator.New(cfg, logger, runID, orchestrator.Options{Version: version})
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		if cfg.TUIEnabled {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if errors.Is(err, orchestrator.ErrUnsupported) {
			return 2
		}
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      go-sample-profiler                           ║")
	fmt.Fprintln(w, "║        Browser Process Profiling with the sample Tool             ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	if cfg.UsesDiscovery() {
		fmt.Fprintf(w, "  Browser:     pid %d and descendants\n", cfg.BrowserPID)
		fmt.Fprintf(w, "  Output:      %s.<role><n>\n", cfg.OutputPath)
	} else {
		fmt.Fprintf(w, "  Targets:     %d process(es)\n", len(cfg.Targets))
	}
	fmt.Fprintf(w, "  Profiler:    %s (%s)\n", cfg.Profiler, cfg.SamplePath)
	if cfg.Duration > 0 {
		fmt.Fprintf(w, "  Duration:    %s\n", cfg.Duration)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop and collect profiles.")
	fmt.Fprintln(w)
}

// printSampleCommands prints the sample command for each explicit target.
func printSampleCommands(w io.Writer, cfg *config.Config) {
	runner := orchestrator.NewRunner(cfg)

	fmt.Fprintln(w, "# sample command that would be run for each target:")
	fmt.Fprintln(w)
	if cfg.UsesDiscovery() {
		fmt.Fprintf(w, "# targets are discovered from browser pid %d at startup\n", cfg.BrowserPID)
		return
	}
	for _, t := range orchestrator.Targets(cfg) {
		fmt.Fprintln(w, runner.CommandString(t))
	}
}

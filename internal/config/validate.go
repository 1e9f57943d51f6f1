package config

import (
	"errors"
	"fmt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	if cfg.ShowVersion {
		return nil
	}

	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Exactly one target source
	switch {
	case len(cfg.Targets) == 0 && cfg.BrowserPID == 0:
		add("targets", "at least one -target or a -browser-pid is required")
	case len(cfg.Targets) > 0 && cfg.BrowserPID != 0:
		add("targets", "-target and -browser-pid are mutually exclusive")
	}

	if cfg.BrowserPID < 0 {
		add("browser_pid", "must be positive (got %d)", cfg.BrowserPID)
	}
	if cfg.BrowserPID > 0 && cfg.OutputPath == "" {
		add("output", "-browser-pid requires -output")
	}

	seenPIDs := make(map[int]bool, len(cfg.Targets))
	seenPaths := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		if t.PID <= 0 {
			add(field, "pid must be positive (got %d)", t.PID)
		}
		if t.Output == "" {
			add(field, "output path is required")
		}
		if seenPIDs[t.PID] {
			add(field, "duplicate pid %d", t.PID)
		}
		if t.Output != "" && seenPaths[t.Output] {
			add(field, "duplicate output path %s", t.Output)
		}
		seenPIDs[t.PID] = true
		seenPaths[t.Output] = true
	}

	if cfg.Platform == "" {
		add("platform", "must not be empty")
	}
	if cfg.Profiler == "" {
		add("profiler", "must not be empty")
	}
	if cfg.SamplePath == "" {
		add("sample_path", "must not be empty")
	}

	// sample takes [duration [interval]] positionally
	if cfg.SampleDuration < 0 {
		add("sample_duration", "must not be negative")
	}
	if cfg.SampleInterval < 0 {
		add("sample_interval", "must not be negative")
	}
	if cfg.SampleInterval > 0 && cfg.SampleDuration == 0 {
		add("sample_interval", "requires -sample-duration")
	}

	if cfg.ReadyTimeout <= 0 {
		add("ready_timeout", "must be positive")
	}
	if cfg.Duration < 0 {
		add("duration", "must not be negative")
	}
	if cfg.StopTimeout <= 0 {
		add("stop_timeout", "must be positive")
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

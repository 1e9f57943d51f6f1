// Package stats formats the end-of-run report for a profiling session.
//
// This file implements the exit summary formatter which displays the
// outcome of every sampler at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TargetOutcome is the result of one sampler, flattened for display.
type TargetOutcome struct {
	PID        int
	Name       string
	OutputPath string
	ExitCode   int

	// ReadyAfter is how long the sampler took to attach.
	ReadyAfter time.Duration

	// Err is empty on success.
	Err string
}

// SummaryConfig holds everything the exit summary shows.
type SummaryConfig struct {
	// RunID identifies the run in logs and metrics.
	RunID string

	// Profiler is the registry name of the profiler that ran.
	Profiler string

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// MetricsFile is where the final metrics snapshot was written
	MetricsFile string

	Targets  int
	Started  int64
	Ready    int64
	Timeouts int64
	Failed   int64

	// ExitCodes is a map of exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int64

	ReadinessP50 time.Duration
	ReadinessP95 time.Duration
	ReadinessP99 time.Duration
	ReadinessMax time.Duration

	// Outcomes lists every sampler that reached collection, in order.
	Outcomes []TargetOutcome
}

// FormatExitSummary formats the run outcome for display at program exit.
func FormatExitSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                        go-sample-profiler Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Run info
	if cfg.RunID != "" {
		fmt.Fprintf(&b, "Run ID:                 %s\n", cfg.RunID)
	}
	if cfg.Profiler != "" {
		fmt.Fprintf(&b, "Profiler:               %s\n", cfg.Profiler)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Targets:                %d\n", cfg.Targets)
	fmt.Fprintf(&b, "Samplers Ready:         %d / %d started\n", cfg.Ready, cfg.Started)
	if cfg.Failed > 0 {
		fmt.Fprintf(&b, "Samplers Failed:        %d", cfg.Failed)
		if cfg.Timeouts > 0 {
			fmt.Fprintf(&b, " (%d readiness timeouts)", cfg.Timeouts)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Readiness distribution
	if cfg.Ready > 0 {
		writeSection(&b, "Readiness Latency")
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(cfg.ReadinessP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(cfg.ReadinessP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(cfg.ReadinessP99))
		fmt.Fprintf(&b, "  Max:                  %s\n", FormatMs(cfg.ReadinessMax))
		b.WriteString("\n")
	}

	// Per-target outcomes
	if len(cfg.Outcomes) > 0 {
		writeSection(&b, "Profiles")
		for _, o := range cfg.Outcomes {
			label := fmt.Sprintf("pid %d", o.PID)
			if o.Name != "" {
				label += " (" + o.Name + ")"
			}
			if o.Err == "" {
				fmt.Fprintf(&b, "  %-28s ok      %s\n", label, o.OutputPath)
				continue
			}
			fmt.Fprintf(&b, "  %-28s FAILED  exit %d %s\n", label, o.ExitCode, exitCodeLabel(o.ExitCode))
			fmt.Fprintf(&b, "    %s\n", firstLine(o.Err))
		}
		b.WriteString("\n")
	}

	// Exit codes (from metrics.Collector)
	if len(cfg.ExitCodes) > 0 {
		writeSection(&b, "Exit Codes")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), cfg.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.MetricsFile != "" {
		fmt.Fprintf(&b, "Metrics snapshot:     %s\n", cfg.MetricsFile)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

func writeSection(b *strings.Builder, title string) {
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	pad := (79 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
}

// firstLine trims multi-line errors (which embed the sampler output) to
// their headline.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single console line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent console lines kept per sampler.
	MaxBufferedLines = 64
)

// OutputHandler receives console lines from one profiler subprocess.
// It keeps the most recent lines for status displays and logs each one.
type OutputHandler struct {
	targetPID int
	logger    *slog.Logger
	verbose   bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	total  int
	mu     sync.Mutex
}

// NewOutputHandler creates a handler for the sampler attached to targetPID.
func NewOutputHandler(targetPID int, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		targetPID: targetPID,
		logger:    logger,
		verbose:   verbose,
		buffer:    make([]string, MaxBufferedLines),
	}
}

// HandleLine processes a single line of console output.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	h.logLine(line)
}

// logLine logs the line at a level derived from its content.
func (h *OutputHandler) logLine(line string) {
	if h.logger == nil {
		return
	}
	level := ClassifyLine(line)

	// Routine progress chatter only shows up in verbose mode
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "sample_output",
		"target_pid", h.targetPID,
		"line", line,
	)
}

// ClassifyLine picks a log level for a line of sample's console output.
func ClassifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "error"),
		strings.Contains(lower, "cannot"),
		strings.Contains(lower, "no such process"),
		strings.Contains(lower, "not permitted"):
		return slog.LevelWarn
	case strings.Contains(lower, "sampling process"),
		strings.Contains(lower, "sample analysis"),
		strings.Contains(lower, "written to file"):
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.total {
		n = h.total
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// LastLine returns the most recent line, or "" before any output.
func (h *OutputHandler) LastLine() string {
	lines := h.RecentLines(1)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// TotalLines returns the number of lines handled so far.
func (h *OutputHandler) TotalLines() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

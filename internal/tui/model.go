package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-sample-profiler/internal/metrics"
	"github.com/randomizedcoder/go-sample-profiler/internal/profiler"
	"github.com/randomizedcoder/go-sample-profiler/internal/sampler"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatusMsg carries an updated sampler snapshot.
type StatusMsg struct {
	Statuses []profiler.Status
}

// CollectingMsg tells the TUI that profiles are being collected.
type CollectingMsg struct{}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	profilerName string
	runID        string
	metricsAddr  string
	duration     time.Duration

	// Current state
	statuses   []profiler.Status
	summary    *metrics.Summary
	startTime  time.Time
	lastUpdate time.Time
	showOutput bool
	collecting bool

	// Display options
	width  int
	height int

	statusSource  StatusSource
	summarySource SummarySource

	// Quit flag
	quitting bool
}

// StatusSource provides the per-sampler snapshot.
type StatusSource interface {
	Snapshot() []profiler.Status
}

// SummarySource provides run-level metrics. Optional.
type SummarySource interface {
	GenerateSummary() *metrics.Summary
}

// Config holds TUI configuration.
type Config struct {
	Profiler      string
	RunID         string
	MetricsAddr   string
	Duration      time.Duration // 0 = until stopped
	StatusSource  StatusSource
	SummarySource SummarySource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		profilerName:  cfg.Profiler,
		runID:         cfg.RunID,
		metricsAddr:   cfg.MetricsAddr,
		duration:      cfg.Duration,
		statusSource:  cfg.StatusSource,
		summarySource: cfg.SummarySource,
		startTime:     time.Now(),
		lastUpdate:    time.Now(),
		width:         80,
		height:        24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "enter", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "o":
			m.showOutput = !m.showOutput
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case StatusMsg:
		m.statuses = msg.Statuses
		m.lastUpdate = time.Now()
		return m, nil

	case CollectingMsg:
		m.collecting = true
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls fresh data from the configured sources.
func (m *Model) refresh() {
	if m.statusSource != nil {
		m.statuses = m.statusSource.Snapshot()
	}
	if m.summarySource != nil {
		m.summary = m.summarySource.GenerateSummary()
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the session started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// ReadyCount returns how many samplers are currently recording.
func (m Model) ReadyCount() int {
	n := 0
	for _, s := range m.statuses {
		if s.State == sampler.StateReady {
			n++
		}
	}
	return n
}

// Total returns the number of samplers shown.
func (m Model) Total() int {
	return len(m.statuses)
}

// Progress returns recording progress (0.0 to 1.0), or -1 when the run has
// no fixed duration.
func (m Model) Progress() float64 {
	if m.duration <= 0 {
		return -1
	}
	p := float64(m.Elapsed()) / float64(m.duration)
	if p > 1 {
		p = 1
	}
	return p
}

// Quitting reports whether the user asked to stop.
func (m Model) Quitting() bool {
	return m.quitting
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStatus pushes a snapshot to the TUI.
func SendStatus(p *tea.Program, statuses []profiler.Status) {
	if p != nil {
		p.Send(StatusMsg{Statuses: statuses})
	}
}

// SendCollecting tells the TUI collection has begun.
func SendCollecting(p *tea.Program) {
	if p != nil {
		p.Send(CollectingMsg{})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max || max < 4 {
		return s
	}
	return string(r[:max-3]) + "..."
}

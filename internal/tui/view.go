package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-sample-profiler/internal/metrics"
	"github.com/randomizedcoder/go-sample-profiler/internal/sampler"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the session dashboard.
func (m Model) renderDashboard() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())
	sections = append(sections, m.renderSamplerTable())

	if m.summary != nil {
		sections = append(sections, m.renderReadiness())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	ready := m.ReadyCount()
	total := m.Total()

	header := fmt.Sprintf(
		" go-sample-profiler │ %s │ Ready: %d/%d │ Elapsed: %s ",
		m.profilerName,
		ready,
		total,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("Recording"))

	if progress := m.Progress(); progress >= 0 {
		barWidth := m.width - 30
		if barWidth < 20 {
			barWidth = 20
		}
		lines = append(lines, RenderProgressBar(progress, barWidth))
	}

	lines = append(lines, m.renderStatusLine())

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderStatusLine() string {
	ready := m.ReadyCount()
	total := m.Total()

	switch {
	case m.collecting:
		return statusInfo.Render("Collecting profiles...")
	case total == 0:
		return dimStyle.Render("Waiting for samplers...")
	case ready == total:
		if m.duration > 0 {
			remaining := m.duration - m.Elapsed()
			if remaining < 0 {
				remaining = 0
			}
			return statusOK.Render(fmt.Sprintf("✓ All samplers recording, %s remaining", formatDuration(remaining)))
		}
		return statusOK.Render("✓ All samplers recording. Press q or Enter to collect")
	default:
		return GetReadyStyle(ready, total).Render(fmt.Sprintf("%d/%d samplers recording", ready, total))
	}
}

// =============================================================================
// Sampler Table
// =============================================================================

func (m Model) renderSamplerTable() string {
	if len(m.statuses) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No samplers running."),
		)
	}

	lastCol := "Output"
	if m.showOutput {
		lastCol = "Last Line"
	}
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-8s %-14s %-8s %-12s %-10s %s",
			"PID", "Name", "Sampler", "State", "Ready For", lastCol),
	)

	// Limit rows to fit screen
	maxRows := m.height - 14
	if maxRows < 5 {
		maxRows = 5
	}

	lastWidth := m.width - 60
	if lastWidth < 20 {
		lastWidth = 20
	}

	var rows []string
	for i, s := range m.statuses {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more samplers", len(m.statuses)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		readyFor := "-"
		if s.State == sampler.StateReady && !s.ReadySince.IsZero() {
			readyFor = formatDuration(time.Since(s.ReadySince))
		}

		last := s.Target.OutputPath
		if m.showOutput {
			last = s.LastLine
		}

		name := s.Target.Name
		if name == "" {
			name = "-"
		}

		prefix := rowStyle.Render(fmt.Sprintf("%-8d %-14s %-8d ",
			s.Target.PID, truncate(name, 14), s.SamplerPID))
		state := GetStateStyle(s.State).Render(fmt.Sprintf("%-12s", s.State.String()))
		suffix := rowStyle.Render(fmt.Sprintf(" %-10s %s", readyFor, truncate(last, lastWidth)))

		rows = append(rows, prefix+state+suffix)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render(fmt.Sprintf("Samplers (%d)", len(m.statuses))),
		header,
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Readiness Statistics
// =============================================================================

func (m Model) renderReadiness() string {
	s := m.summary

	rows := []string{
		RenderKeyValue("Started", fmt.Sprintf("%d", s.Started)),
		RenderKeyValue("Ready", fmt.Sprintf("%d", s.Ready)),
	}
	if s.Ready > 0 {
		rows = append(rows,
			RenderKeyValue("Attach P50", formatMs(s.ReadinessP50)),
			RenderKeyValue("Attach P95", formatMs(s.ReadinessP95)),
			RenderKeyValue("Attach Max", formatMs(s.ReadinessMax)),
		)
	}
	if s.Failed > 0 || s.Timeouts > 0 {
		rows = append(rows, statusError.Render(
			fmt.Sprintf("Failed: %d (timeouts: %d)", s.Failed, s.Timeouts)))
	}
	if codes := renderExitCodes(s); codes != "" {
		rows = append(rows, RenderKeyValue("Exit Codes", codes))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Attach Latency"),
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderExitCodes(s *metrics.Summary) string {
	if len(s.ExitCodes) == 0 {
		return ""
	}
	var parts []string
	for code, count := range s.ExitCodes {
		parts = append(parts, fmt.Sprintf("%s×%d", metrics.ExitCodeLabel(code), count))
	}
	// map order is random; keep the line stable between ticks
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q/enter: collect & quit",
		"o: toggle output",
		"r: refresh",
	}

	right := "Run: " + m.runID
	if m.metricsAddr != "" {
		right += " │ Metrics: " + m.metricsAddr
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightRendered := dimStyle.Render(right)

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightRendered) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightRendered,
		),
	)
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/0x6d61/reconcore/internal/recon"
)

// View implements tea.Model and renders the discovery dashboard.
func (m Model) View() string {
	if !m.ready {
		return "\n  ⚡ Starting discovery...\n"
	}

	statusBar := m.renderStatusBar()
	stagesPane := paneStyle.Render(m.renderStages())
	logPane := paneStyle.Render(m.renderLog())
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, statusBar, stagesPane, logPane, footer)
}

func (m Model) renderStatusBar() string {
	left := fmt.Sprintf("RECONCORE ─ %s", m.target)
	right := fmt.Sprintf("%5.1f%%", m.percent)
	pad := m.width - runewidth.StringWidth(left) - runewidth.StringWidth(right) - 2
	if pad < 1 {
		pad = 1
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", pad) + right)
}

func (m Model) renderStages() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("STAGES"))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.percent / 100))
	b.WriteString("\n\n")

	for _, st := range m.stages {
		b.WriteString(m.renderStageRow(st))
		b.WriteString("\n")
		if st.state == "running" || st.state == "failed" {
			for _, name := range sortedSourceNames(st.sources) {
				b.WriteString(renderSourceRow(name, st.sources[name]))
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStageRow(st stageView) string {
	name := runewidth.FillRight(st.name, 12)
	switch st.state {
	case "running":
		return fmt.Sprintf("%s %s %s", m.spin.View(), stageActiveStyle.Render(name), sourceRunningStyle.Render("running"))
	case "done":
		return fmt.Sprintf("  %s %s", stageNameStyle.Render(name), stageDoneStyle.Render("done"))
	case "failed":
		return fmt.Sprintf("  %s %s", stageNameStyle.Render(name), stageFailStyle.Render("FAILED"))
	case "skipped":
		return fmt.Sprintf("  %s %s", stagePendStyle.Render(name), sourceMutedStyle.Render("skipped"))
	default:
		return fmt.Sprintf("  %s %s", stagePendStyle.Render(name), sourceMutedStyle.Render("pending"))
	}
}

func renderSourceRow(name string, st recon.SourceStatus) string {
	label := runewidth.FillRight(name, 16)
	counts := fmt.Sprintf("%d/%d", st.Done+st.Failed, st.Total)
	if st.Failed > 0 {
		counts += fmt.Sprintf(" (%d failed)", st.Failed)
	}
	var styled string
	switch st.State {
	case recon.SourceOK:
		styled = sourceOKStyle.Render("ok    ")
	case recon.SourceFailed:
		styled = sourceFailStyle.Render("failed")
	case recon.SourceRunning:
		styled = sourceRunningStyle.Render("run   ")
	default:
		styled = sourceMutedStyle.Render("wait  ")
	}
	return fmt.Sprintf("      %s %s %s", sourceMutedStyle.Render(label), styled, sourceMutedStyle.Render(counts))
}

func (m Model) renderLog() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("EVENTS"))
	b.WriteString("\n")
	if len(m.recent) == 0 {
		b.WriteString(sourceMutedStyle.Render("waiting for events..."))
	}
	for _, line := range m.recent {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderFooter() string {
	switch {
	case m.failed:
		return stageFailStyle.Render(" session failed: "+m.message) + hintStyle.Render("  (q to quit)")
	case m.done:
		return stageDoneStyle.Render(" session completed: "+m.message) + hintStyle.Render("  (q to quit)")
	default:
		return hintStyle.Render(" q: quit")
	}
}

package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary = lipgloss.Color("#00D7FF") // cyan — running / focus
	colorSuccess = lipgloss.Color("#87FF5F") // green — completed sources
	colorWarning = lipgloss.Color("#FFD700") // yellow — pending / partial
	colorDanger  = lipgloss.Color("#FF5555") // red — failed
	colorMuted   = lipgloss.Color("#555577") // dim gray — hints / skipped
	colorBorder  = lipgloss.Color("#333355")
	colorTitle   = lipgloss.Color("#FFFFFF")
)

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorTitle).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#0D0D1A")).
			Foreground(colorPrimary).
			Padding(0, 1)

	stageNameStyle   = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	stagePendStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	stageActiveStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	stageDoneStyle   = lipgloss.NewStyle().Foreground(colorSuccess)
	stageFailStyle   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)

	sourceOKStyle      = lipgloss.NewStyle().Foreground(colorSuccess)
	sourceFailStyle    = lipgloss.NewStyle().Foreground(colorDanger)
	sourceRunningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	sourceMutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)

	hintStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
)

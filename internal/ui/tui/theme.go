package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha palette.
var (
	colorGreen  = lipgloss.Color("#a6e3a1")
	colorBlue   = lipgloss.Color("#89b4fa")
	colorYellow = lipgloss.Color("#f9e2af")
	colorRed    = lipgloss.Color("#f38ba8")
	colorTeal   = lipgloss.Color("#94e2d5")
	colorMauve  = lipgloss.Color("#cba6f7")
	colorMuted  = lipgloss.Color("#5a6278")
	colorDim    = lipgloss.Color("#3a4055")
	colorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleHeader         = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	styleHeaderLabel    = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
	styleRoute          = lipgloss.NewStyle().Foreground(colorMuted)
	styleStage          = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconDone       = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconFailed     = lipgloss.NewStyle().Foreground(colorRed)
	styleIconSkipped    = lipgloss.NewStyle().Foreground(colorMuted)
	styleAddr           = lipgloss.NewStyle().Foreground(colorBright)
	styleSize           = lipgloss.NewStyle().Foreground(colorMuted)
	styleSpeed          = lipgloss.NewStyle().Foreground(colorTeal)
	styleError          = lipgloss.NewStyle().Foreground(colorRed)
	styleKeybindKey     = lipgloss.NewStyle().Foreground(colorMauve).Bold(true)
	styleKeybindLabel   = lipgloss.NewStyle().Foreground(colorMuted)
	styleSparkline      = lipgloss.NewStyle().Foreground(colorBlue)
	styleProgressFilled = lipgloss.NewStyle().Foreground(colorGreen)
	styleStatus         = lipgloss.NewStyle().Foreground(colorYellow).Italic(true)
	styleDivider        = lipgloss.NewStyle().Foreground(colorDim)
)

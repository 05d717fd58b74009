package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/event"
	"github.com/bamsammich/gload/internal/stats"
	"github.com/bamsammich/gload/internal/ui"
)

// Config configures the TUI presenter.
type Config struct {
	Stats  stats.ReadTicker
	Route  string
	Extras endpoint.Extras
	// Cancel interrupts the transfer; the terminal is in raw mode, so
	// ctrl+c arrives as a key rather than SIGINT.
	Cancel func()
}

// Presenter wraps a Bubble Tea program and implements ui.Presenter.
type Presenter struct {
	cfg   Config
	model Model
}

var _ ui.Presenter = (*Presenter)(nil)

// NewPresenter creates a new TUI presenter.
func NewPresenter(cfg Config) *Presenter {
	return &Presenter{cfg: cfg}
}

// Run starts the Bubble Tea program and blocks until the user quits.
func (p *Presenter) Run(events <-chan event.Event) error {
	p.model = NewModel(events, p.cfg.Stats, p.cfg.Route, p.cfg.Extras, p.cfg.Cancel)
	prog := tea.NewProgram(
		p.model,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	finalModel, err := prog.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(Model); ok {
		p.model = m
	}
	return nil
}

// Summary returns the final completion summary line.
func (p *Presenter) Summary() string {
	return ui.CompletionSummary(p.cfg.Stats.Snapshot())
}

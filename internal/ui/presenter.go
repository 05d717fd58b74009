package ui

import (
	"io"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     stats.ReadTicker

	// Route is shown until the engine reports the resolved endpoints.
	Route string
	// Extras tags the burn stage, e.g. "burning [decompress]".
	Extras endpoint.Extras

	IsTTY      bool
	Quiet      bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(
	cfg Config,
) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if !cfg.IsTTY || cfg.NoProgress {
		return &plainPresenter{
			w:      cfg.Writer,
			errW:   cfg.ErrWriter,
			stats:  cfg.Stats,
			extras: cfg.Extras,
		}
	}
	return &hudPresenter{
		w:      cfg.ErrWriter, // HUD renders to stderr (the TTY)
		stats:  cfg.Stats,
		route:  cfg.Route,
		extras: cfg.Extras,
	}
}

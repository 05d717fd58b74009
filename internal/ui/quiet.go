package ui

import "github.com/bamsammich/gload/internal/stats"

// quietPresenter consumes events and prints nothing but a failure summary.
type quietPresenter struct {
	stats stats.Reader
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for range events {
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	if p.stats.Snapshot().TransfersFailed == 0 {
		return ""
	}
	return CompletionSummary(p.stats.Snapshot())
}

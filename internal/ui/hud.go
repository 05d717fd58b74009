package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

const (
	hudLines         = 2
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

// hudPresenter provides a rich TTY display with a scrolling feed of burned
// chunks and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w     io.Writer
	stats stats.ReadTicker

	extras endpoint.Extras

	// Internal state.
	route       string
	stage       string
	hudDrawn    bool
	lastHUDDraw time.Time
}

func (p *hudPresenter) Run(events <-chan Event) error {
	// Fire first tick quickly to seed the ring buffer with initial speed data,
	// then switch to 1s interval.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for long single-pass loads that emit nothing for a while.
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(1 * time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case TransferStarted:
		p.route = ev.Source + " -> " + ev.Dest
		p.stage = "loading"
		p.feed("%s%s%s\n", ansiBold, p.route, ansiReset)

	case ChunkLoaded:
		p.stage = "burning"

	case ChunkBurned:
		p.stage = "loading"
		p.printChunk(ev)

	case Progress:
		p.stage = "inflating"

	case BadBlock:
		note := "skipped"
		if ev.Marked {
			note = "marked bad"
		}
		p.feed("✗  %s  %sbad block, %s%s\n", FormatAddr(ev.Addr), ansiDim, note, ansiReset)

	case FinalizeStarted:
		p.stage = ev.Stage

	case VerifyStarted:
		p.stage = "verifying"
		p.feed("%sverifying readback...%s\n", ansiDim, ansiReset)

	case VerifyFailed:
		p.feed("✗  %s  READBACK MISMATCH\n", ev.Dest)

	case TransferFailed:
		p.feed("✗  %s  %s\n", FormatAddr(ev.Size), errText(ev.Error))

	case TransferCompleted:
		p.stage = "done"
	}
}

// feed prints a line above the HUD and redraws it.
func (p *hudPresenter) feed(format string, args ...any) {
	p.clearHUD()
	fmt.Fprintf(p.w, format, args...)
	p.drawHUD()
}

func (p *hudPresenter) printChunk(ev Event) {
	speed := p.stats.RollingSpeed(5)
	if speed > 0 {
		p.feed("✓  %s  %10s  %s\n", FormatAddr(ev.Offset), FormatBytes(ev.Size), FormatRate(speed))
		return
	}
	p.feed("✓  %s  %10s\n", FormatAddr(ev.Offset), FormatBytes(ev.Size))
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()

	p.clearHUD()

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesBurned) / float64(snap.BytesTotal)
	}

	// Line 1: throughput sparkline + speed + byte totals + route.
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	total := "?"
	if snap.BytesTotal > 0 {
		total = FormatBytes(snap.BytesTotal)
	}
	fmt.Fprintf(p.w, "       %s   %s   %s / %s   %s%s%s\n",
		spark, FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.BytesBurned), total,
		ansiDim, p.route, ansiReset)

	// Line 2: progress bar (▪/□) + chunks + stage + eta.
	fmt.Fprintf(p.w, " %3.0f%%  %s   %s chunks   %s%s%s   eta %s\n",
		pct*100, ProgressBar(pct, progressBarWidth),
		FormatCount(snap.ChunksBurned),
		ansiDim, p.stageLabel(), ansiReset,
		FormatETA(p.stats.ETA()))

	p.hudDrawn = true
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) stageLabel() string {
	switch {
	case p.stage == "":
		return "waiting"
	case p.stage == "burning" && p.extras != 0:
		return "burning [" + p.extras.String() + "]"
	}
	return p.stage
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", hudLines)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

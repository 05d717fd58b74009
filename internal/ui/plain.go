package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/stats"
)

const plainProgressEvery = 5 // seconds between progress lines

// plainPresenter outputs one line per burned chunk to stdout,
// and periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w      io.Writer
	errW   io.Writer
	stats  stats.ReadTicker
	extras endpoint.Extras
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	ticks := 0

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			ticks++
			if ticks%plainProgressEvery == 0 {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case TransferStarted:
		if p.extras != 0 {
			fmt.Fprintf(p.w, "%s -> %s  [%s]\n", ev.Source, ev.Dest, p.extras)
			return
		}
		fmt.Fprintf(p.w, "%s -> %s\n", ev.Source, ev.Dest)
	case ChunkBurned:
		speed := p.stats.RollingSpeed(5)
		fmt.Fprintf(p.w, "%s  %s  %s\n", FormatAddr(ev.Offset), FormatBytes(ev.Size), FormatRate(speed))
	case BadBlock:
		state := "skipped"
		if ev.Marked {
			state = "marked"
		}
		fmt.Fprintf(p.w, "bad block at %s  %s\n", FormatAddr(ev.Addr), state)
	case VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s  %s\n", ev.Dest, errText(ev.Error))
	case TransferFailed:
		fmt.Fprintf(p.w, "failed at %s  %s\n", FormatAddr(ev.Size), errText(ev.Error))
	case ChunkLoaded, Progress, FinalizeStarted, TransferCompleted:
		// silent in plain mode
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesBurned) / float64(snap.BytesTotal) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s eta %s\n",
			pct,
			FormatBytes(snap.BytesBurned), FormatBytes(snap.BytesTotal),
			FormatRate(p.stats.RollingSpeed(10)),
			FormatETA(p.stats.ETA()),
		)
	} else {
		fmt.Fprintf(p.errW, "progress: %s loaded %s burned\n",
			FormatBytes(snap.BytesLoaded),
			FormatBytes(snap.BytesBurned),
		)
	}
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}

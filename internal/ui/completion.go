package ui

import (
	"fmt"

	"github.com/bamsammich/gload/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  loaded 16.0 MiB  burned 16.0 MiB  avg 12.1 MiB/s  time 3s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesBurned) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.TransfersFailed > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  loaded %s  burned %s  avg %s  time %s",
		icon,
		FormatBytes(snap.BytesLoaded),
		FormatBytes(snap.BytesBurned),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.BlocksErased > 0 {
		base += "  erased " + FormatCount(snap.BlocksErased)
	}
	if snap.BadBlocks > 0 {
		base += fmt.Sprintf("  badblocks %d (%d marked)", snap.BadBlocks, snap.MarkedBad)
	}

	base += fmt.Sprintf("  errors %d", snap.TransfersFailed)

	return base
}

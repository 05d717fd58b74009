package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bamsammich/gload/internal/stats"
)

var rateUnits = []string{"B/s", "KiB/s", "MiB/s", "GiB/s", "TiB/s"}

// FormatRate formats a bytes-per-second rate with binary units.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	val := bytesPerSec
	for i, u := range rateUnits {
		if val >= 1024 && i < len(rateUnits)-1 {
			val /= 1024
			continue
		}
		switch {
		case i == 0:
			return fmt.Sprintf("%.0f %s", val, u)
		case val < 10:
			return fmt.Sprintf("%.2f %s", val, u)
		case val < 100:
			return fmt.Sprintf("%.1f %s", val, u)
		default:
			return fmt.Sprintf("%.0f %s", val, u)
		}
	}
	return ""
}

// FormatETA is FormatDuration with "--" for unknown estimates.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatCount formats an integer with comma separators.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// FormatAddr formats a device offset the way flash tools print them.
func FormatAddr(addr uint64) string {
	return fmt.Sprintf("0x%08x", addr)
}

// ProgressBar renders a progress bar of the given width using ▪/□ characters.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	pct = min(max(pct, 0), 1)
	filled := min(int(pct*float64(width)), width)
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b uint64) string {
	return stats.FormatBytes(b)
}

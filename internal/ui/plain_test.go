package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/event"
	"github.com/bamsammich/gload/internal/stats"
)

func runPlain(t *testing.T, collector *stats.Collector, evs ...Event) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: collector}

	events := make(chan Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)

	require.NoError(t, p.Run(events))
	return out.String(), errOut.String()
}

func TestPlainPresenterChunks(t *testing.T) {
	t.Parallel()
	out, _ := runPlain(t, stats.NewCollector(),
		Event{Type: event.TransferStarted, Source: "mmc0:1", Dest: "nor0:3"},
		Event{Type: event.ChunkLoaded, Offset: 0, Size: 1024},
		Event{Type: event.ChunkBurned, Offset: 0, Size: 1024},
		Event{Type: event.ChunkBurned, Offset: 1024, Size: 100 << 20},
		Event{Type: event.TransferCompleted, Size: 1024 + 100<<20},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "mmc0:1 -> nor0:3", lines[0])
	assert.Contains(t, lines[1], "0x00000000  1.0 KiB")
	assert.Contains(t, lines[2], "0x00000400  100.0 MiB")
}

func TestPlainPresenterBadBlock(t *testing.T) {
	t.Parallel()
	out, _ := runPlain(t, stats.NewCollector(),
		Event{Type: event.BadBlock, Addr: 0x8000, Marked: true},
		Event{Type: event.BadBlock, Addr: 0xc000},
	)

	assert.Contains(t, out, "bad block at 0x00008000  marked")
	assert.Contains(t, out, "bad block at 0x0000c000  skipped")
}

func TestPlainPresenterTransferFailed(t *testing.T) {
	t.Parallel()
	out, _ := runPlain(t, stats.NewCollector(),
		Event{Type: event.TransferFailed, Size: 512, Error: assert.AnError},
	)

	assert.Contains(t, out, "failed at 0x00000200")
	assert.Contains(t, out, assert.AnError.Error())
}

func TestPlainPresenterVerify(t *testing.T) {
	t.Parallel()
	out, _ := runPlain(t, stats.NewCollector(),
		Event{Type: event.VerifyStarted, Dest: "mmc0"},
		Event{Type: event.VerifyFailed, Dest: "mmc0"},
	)

	assert.Contains(t, out, "verifying...")
	assert.Contains(t, out, "MISMATCH: mmc0  error")
}

func TestPlainPresenterProgress(t *testing.T) {
	t.Parallel()
	collector := stats.NewCollector()
	var errOut bytes.Buffer
	p := &plainPresenter{w: &bytes.Buffer{}, errW: &errOut, stats: collector}

	collector.AddBytesLoaded(2048)
	p.printProgress()
	assert.Equal(t, "progress: 2.0 KiB loaded 0 B burned\n", errOut.String())

	errOut.Reset()
	collector.SetTotal(4096)
	collector.AddBytesBurned(2048)
	p.printProgress()
	assert.Contains(t, errOut.String(), "progress: 50% 2.0 KiB/4.0 KiB")
}

func TestPlainPresenterSummary(t *testing.T) {
	t.Parallel()
	collector := stats.NewCollector()
	collector.AddTransfer()
	collector.AddTransferFailed()
	collector.AddBadBlock(true)
	p := &plainPresenter{stats: collector}

	summary := p.Summary()
	assert.Contains(t, summary, "done ✗")
	assert.Contains(t, summary, "badblocks 1 (1 marked)")
	assert.Contains(t, summary, "errors 1")
}

func TestQuietPresenter(t *testing.T) {
	t.Parallel()
	collector := stats.NewCollector()
	p := NewPresenter(Config{Stats: collector, Quiet: true})

	events := make(chan Event, 1)
	events <- Event{Type: event.ChunkBurned, Size: 1}
	close(events)
	require.NoError(t, p.Run(events))
	assert.Empty(t, p.Summary())

	collector.AddTransferFailed()
	assert.Contains(t, p.Summary(), "errors 1")
}

func TestNewPresenter(t *testing.T) {
	t.Parallel()
	collector := stats.NewCollector()

	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{Stats: collector}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{Stats: collector, IsTTY: true, NoProgress: true}))
	assert.IsType(t, &hudPresenter{}, NewPresenter(Config{Stats: collector, IsTTY: true}))
	assert.IsType(t, &quietPresenter{}, NewPresenter(Config{Stats: collector, IsTTY: true, Quiet: true}))

	hud, ok := NewPresenter(Config{
		Stats:  collector,
		IsTTY:  true,
		Route:  "ram -> mmc0:2",
		Extras: endpoint.SecureVerify,
	}).(*hudPresenter)
	require.True(t, ok)
	assert.Equal(t, "ram -> mmc0:2", hud.route)
	assert.Equal(t, endpoint.SecureVerify, hud.extras)
}

func TestPlainPresenterTagsExtras(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	p := &plainPresenter{w: &out, errW: &bytes.Buffer{}, stats: stats.NewCollector(), extras: endpoint.Decompress}

	p.handleEvent(Event{Type: event.TransferStarted, Source: "net:10.0.0.1", Dest: "flash0:1"})
	assert.Equal(t, "net:10.0.0.1 -> flash0:1  [decompress]\n", out.String())
}

// Package tui is the full-screen Bubble Tea view of a load&burn transfer.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/event"
	"github.com/bamsammich/gload/internal/stats"
	"github.com/bamsammich/gload/internal/ui"
)

type viewMode int

const (
	viewChunks viewMode = iota
	viewBlocks
)

// maxChunks bounds the burned-chunk history kept for the feed.
const maxChunks = 512

// Bubble Tea messages.
type engineEventMsg event.Event
type channelDoneMsg struct{}
type tickMsg time.Time

// readNextEvent returns a tea.Cmd that blocks on the event channel.
func readNextEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return channelDoneMsg{}
		}
		return engineEventMsg(ev)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type chunkEntry struct {
	offset uint64
	size   uint64
	speed  float64
}

type badEntry struct {
	addr   uint64
	marked bool
}

// Model is the root Bubble Tea model.
type Model struct {
	events <-chan event.Event
	stats  stats.ReadTicker
	cancel func()
	extras endpoint.Extras

	route     string
	stage     string
	chunks    []chunkEntry
	badBlocks []badEntry
	finalized []string
	failure   string
	verifying bool

	mode      viewMode
	width     int
	height    int
	statusMsg string
	done      bool
	failed    bool
	quitting  bool

	lastSnap  stats.Snapshot
	lastSpeed float64
	lastETA   time.Duration
}

// NewModel creates a model reading events until the channel closes. cancel,
// when set, is called on ctrl+c while the transfer is running.
func NewModel(events <-chan event.Event, collector stats.ReadTicker, route string, extras endpoint.Extras, cancel func()) Model {
	return Model{
		events: events,
		stats:  collector,
		cancel: cancel,
		route:  route,
		extras: extras,
		width:  80,
		height: 24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		readNextEvent(m.events),
		tickCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case engineEventMsg:
		m.handleEngineEvent(event.Event(msg))
		return m, readNextEvent(m.events)

	case channelDoneMsg:
		m.done = true
		m.lastSnap = m.stats.Snapshot()
		m.lastSpeed = m.stats.RollingSpeed(10)
		m.lastETA = 0
		return m, tickCmd()

	case tickMsg:
		m.stats.Tick()
		m.lastSnap = m.stats.Snapshot()
		m.lastSpeed = m.stats.RollingSpeed(10)
		m.lastETA = m.stats.ETA()
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if !m.done && m.cancel != nil {
			m.cancel()
			m.cancel = nil
			m.statusMsg = "interrupting: waiting for finalizers..."
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case "q":
		m.quitting = true
		return m, tea.Quit

	case "f":
		m.mode = viewChunks
		m.statusMsg = ""
		return m, nil

	case "b":
		m.mode = viewBlocks
		m.statusMsg = ""
		return m, nil
	}

	return m, nil
}

// handleEngineEvent folds ev into the view state. Totals come from the
// collector; the model never writes to it.
func (m *Model) handleEngineEvent(ev event.Event) {
	switch ev.Type {
	case event.TransferStarted:
		m.route = ev.Source + " -> " + ev.Dest
		m.stage = "loading"

	case event.ChunkLoaded:
		m.stage = "burning"

	case event.ChunkBurned:
		m.stage = "loading"
		m.chunks = append(m.chunks, chunkEntry{offset: ev.Offset, size: ev.Size, speed: m.stats.RollingSpeed(5)})
		if len(m.chunks) > maxChunks {
			m.chunks = m.chunks[len(m.chunks)-maxChunks:]
		}

	case event.Progress:
		m.stage = "inflating"

	case event.BadBlock:
		m.badBlocks = append(m.badBlocks, badEntry{addr: ev.Addr, marked: ev.Marked})

	case event.FinalizeStarted:
		m.stage = ev.Stage
		m.finalized = append(m.finalized, ev.Stage)

	case event.VerifyStarted:
		m.stage = "verifying"
		m.verifying = true

	case event.VerifyFailed:
		m.failure = "readback mismatch: " + errString(ev.Error)

	case event.TransferFailed:
		m.failed = true
		if m.failure == "" {
			m.failure = fmt.Sprintf("failed at %s: %s", ui.FormatAddr(ev.Size), errString(ev.Error))
		}

	case event.TransferCompleted:
		m.stage = "done"
	}
}

func errString(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}

func (m Model) stageLabel() string {
	switch {
	case m.stage == "":
		return "waiting"
	case m.stage == "burning" && m.extras != 0:
		return "burning [" + m.extras.String() + "]"
	}
	return m.stage
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	// Header (2 lines).
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(styleRoute.Render("  " + m.route))
	b.WriteByte('\n')

	// header (2) + divider (1) + status (1) + footer (1)
	contentHeight := max(m.height-5, 3)
	b.WriteString(styleDivider.Render(strings.Repeat("─", max(m.width, 1))))
	b.WriteByte('\n')

	switch m.mode {
	case viewChunks:
		b.WriteString(m.renderChunks(contentHeight))
	case viewBlocks:
		b.WriteString(m.renderBlocks(contentHeight))
	}

	switch {
	case m.statusMsg != "":
		b.WriteString(styleStatus.Render("  " + m.statusMsg))
	case m.failure != "":
		b.WriteString(styleError.Render("  " + m.failure))
	}
	b.WriteByte('\n')

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	snap := m.lastSnap

	if m.done {
		state := styleIconDone.Render("done")
		if m.failed {
			state = styleIconFailed.Render("failed")
		}
		return styleHeader.Render(fmt.Sprintf("  %s  %s  loaded %s  burned %s  %s",
			styleHeaderLabel.Render("gload"),
			state,
			ui.FormatBytes(snap.BytesLoaded),
			ui.FormatBytes(snap.BytesBurned),
			ui.FormatDuration(snap.Elapsed),
		))
	}

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesBurned) / float64(snap.BytesTotal)
	}
	total := "?"
	if snap.BytesTotal > 0 {
		total = ui.FormatBytes(snap.BytesTotal)
	}
	return styleHeader.Render(fmt.Sprintf("  %s  %3.0f%%  %s  %s / %s  %s  %s  eta %s",
		styleHeaderLabel.Render("gload"),
		pct*100,
		styleProgressFilled.Render(ui.ProgressBar(pct, 10)),
		ui.FormatBytes(snap.BytesBurned),
		total,
		styleSpeed.Render(ui.FormatRate(m.lastSpeed)),
		styleStage.Render(m.stageLabel()),
		ui.FormatETA(m.lastETA),
	))
}

// renderChunks shows the throughput sparkline and the most recent burned
// chunks, newest last.
func (m Model) renderChunks(height int) string {
	var b strings.Builder
	sparkWidth := max(m.width-4, 10)
	b.WriteString("  " + styleSparkline.Render(ui.Sparkline(m.stats.SparklineData(sparkWidth), sparkWidth)))
	b.WriteByte('\n')

	rows := height - 1
	chunks := m.chunks
	if len(chunks) > rows {
		chunks = chunks[len(chunks)-rows:]
	}
	for _, c := range chunks {
		line := fmt.Sprintf("  %s  %s  %s",
			styleIconDone.Render("✓"),
			styleAddr.Render(ui.FormatAddr(c.offset)),
			styleSize.Render(fmt.Sprintf("%10s", ui.FormatBytes(c.size))))
		if c.speed > 0 {
			line += "  " + styleSpeed.Render(ui.FormatRate(c.speed))
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for range rows - len(chunks) {
		b.WriteByte('\n')
	}
	return b.String()
}

// renderBlocks shows the flash bookkeeping: bad blocks met, blocks erased
// past the payload and the finalizers that ran.
func (m Model) renderBlocks(height int) string {
	snap := m.lastSnap
	lines := []string{
		fmt.Sprintf("  bad blocks %d (%d marked)   erased %s   finalizers %s",
			snap.BadBlocks, snap.MarkedBad, ui.FormatCount(snap.BlocksErased), finalizers(m.finalized)),
	}
	if m.verifying {
		lines = append(lines, "  readback verify ran")
	}
	for _, bb := range m.badBlocks {
		note := styleIconSkipped.Render("skipped")
		if bb.marked {
			note = styleError.Render("marked bad")
		}
		lines = append(lines, fmt.Sprintf("  %s  %s  %s", styleIconFailed.Render("✗"), styleAddr.Render(ui.FormatAddr(bb.addr)), note))
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	for range height - len(lines) {
		b.WriteByte('\n')
	}
	return b.String()
}

func finalizers(stages []string) string {
	if len(stages) == 0 {
		return "-"
	}
	return strings.Join(stages, ", ")
}

func (m Model) renderFooter() string {
	type keybind struct {
		key   string
		label string
	}

	binds := []keybind{
		{"f", "chunks"},
		{"b", "blocks"},
		{"q", "quit"},
	}
	if !m.done {
		binds = append(binds, keybind{"ctrl+c", "interrupt"})
	}

	parts := make([]string, 0, len(binds))
	for _, kb := range binds {
		parts = append(parts,
			styleKeybindKey.Render(kb.key)+" "+styleKeybindLabel.Render(kb.label))
	}
	return "  " + strings.Join(parts, "   ")
}

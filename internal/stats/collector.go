package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Reader is the read side of a Collector, used by presenters.
type Reader interface {
	Snapshot() Snapshot
	RollingSpeed(seconds int) float64
	SparklineData(n int) []float64
	ETA() time.Duration
}

// ReadTicker is a Reader that presenters also drive once per second.
type ReadTicker interface {
	Reader
	Tick()
}

// Collector tracks transfer statistics using lock-free atomic counters.
type Collector struct {
	startTime time.Time

	bytesLoaded   atomic.Uint64
	bytesBurned   atomic.Uint64
	bytesTotal    atomic.Uint64
	chunksLoaded  atomic.Int64
	chunksBurned  atomic.Int64
	badBlocks     atomic.Int64
	markedBad     atomic.Int64
	blocksErased  atomic.Int64
	transfers     atomic.Int64
	transfersFail atomic.Int64

	// Ring buffer, written only by Tick().
	mu         sync.Mutex
	throughput [ringSize]uint64 // burned bytes delta per second
	ringIdx    int
	ringCount  int // samples written, capped at ringSize
	lastBytes  uint64
}

// Compile-time interface check.
var _ ReadTicker = (*Collector)(nil)

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotal records the expected payload size once it is known.
func (c *Collector) SetTotal(bytes uint64) { c.bytesTotal.Store(bytes) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BytesLoaded     uint64
	BytesBurned     uint64
	BytesTotal      uint64
	ChunksLoaded    int64
	ChunksBurned    int64
	BadBlocks       int64
	MarkedBad       int64
	BlocksErased    int64
	Transfers       int64
	TransfersFailed int64
	Elapsed         time.Duration
}

func (c *Collector) AddBytesLoaded(n uint64) { c.bytesLoaded.Add(n) }
func (c *Collector) AddBytesBurned(n uint64) { c.bytesBurned.Add(n) }
func (c *Collector) AddChunkLoaded()         { c.chunksLoaded.Add(1) }
func (c *Collector) AddChunkBurned()         { c.chunksBurned.Add(1) }
func (c *Collector) AddBlocksErased(n int64) { c.blocksErased.Add(n) }
func (c *Collector) AddTransfer()            { c.transfers.Add(1) }
func (c *Collector) AddTransferFailed()      { c.transfersFail.Add(1) }

// AddBadBlock counts a bad block; marked is true when this transfer marked it.
func (c *Collector) AddBadBlock(marked bool) {
	c.badBlocks.Add(1)
	if marked {
		c.markedBad.Add(1)
	}
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		BytesLoaded:     c.bytesLoaded.Load(),
		BytesBurned:     c.bytesBurned.Load(),
		BytesTotal:      c.bytesTotal.Load(),
		ChunksLoaded:    c.chunksLoaded.Load(),
		ChunksBurned:    c.chunksBurned.Load(),
		BadBlocks:       c.badBlocks.Load(),
		MarkedBad:       c.markedBad.Load(),
		BlocksErased:    c.blocksErased.Load(),
		Transfers:       c.transfers.Load(),
		TransfersFailed: c.transfersFail.Load(),
		Elapsed:         c.Elapsed(),
	}
}

// Tick snapshots the burned-byte delta into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	current := c.bytesBurned.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum uint64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n burned-bytes/sec samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	total, done := c.bytesTotal.Load(), c.bytesBurned.Load()
	if done >= total {
		return 0
	}
	return time.Duration(float64(total-done)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"loaded=%d burned=%d chunks=%d/%d badblocks=%d marked=%d erased=%d",
		s.BytesLoaded, s.BytesBurned, s.ChunksLoaded, s.ChunksBurned,
		s.BadBlocks, s.MarkedBad, s.BlocksErased,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

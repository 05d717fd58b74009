package endpoint

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRAMFull is returned when a payload does not fit the RAM region.
var ErrRAMFull = errors.New("payload exceeds ram region")

// RAM is the process load region. Loading from RAM reads its current
// contents; burning to RAM replaces them.
type RAM struct {
	mu    sync.Mutex
	data  []byte
	limit uint64
}

// NewRAM returns an empty region holding at most limit bytes.
func NewRAM(limit uint64) *RAM {
	return &RAM{limit: limit}
}

// Limit returns the region capacity.
func (r *RAM) Limit() uint64 { return r.limit }

// Len returns the size of the current contents.
func (r *RAM) Len() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.data))
}

// Bytes returns a copy of the current contents.
func (r *RAM) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}

// ReadAt copies contents from off into p.
func (r *RAM) ReadAt(p []byte, off uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if off >= uint64(len(r.data)) {
		return 0
	}
	return uint64(copy(p, r.data[off:]))
}

// Replace sets the contents to p.
func (r *RAM) Replace(p []byte) (uint64, error) {
	if uint64(len(p)) > r.limit {
		return 0, fmt.Errorf("%d bytes into %d: %w", len(p), r.limit, ErrRAMFull)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data[:0], p...)
	return uint64(len(p)), nil
}

// Reset empties the region.
func (r *RAM) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = r.data[:0]
}

// WriteUnit is one byte; RAM needs no padding.
func (*RAM) WriteUnit() uint64 { return 1 }

// Available returns the capacity left after off.
func (r *RAM) Available(off uint64) uint64 {
	if off >= r.limit {
		return 0
	}
	return r.limit - off
}

// Program writes p at off, growing the contents as needed.
func (r *RAM) Program(off uint64, p []byte) (uint64, error) {
	end := off + uint64(len(p))
	if end > r.limit {
		return 0, fmt.Errorf("write to 0x%x: %w", end, ErrRAMFull)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if end > uint64(len(r.data)) {
		r.data = append(r.data, make([]byte, end-uint64(len(r.data)))...)
	}
	copy(r.data[off:], p)
	return uint64(len(p)), nil
}

package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// PartType describes how a device's partition table was obtained.
type PartType int

const (
	PartUnknown  PartType = iota // no partition table, whole-device access only
	PartDeclared                 // partitions supplied by configuration
	PartMBR                      // partitions read from an on-disk MBR
)

func (p PartType) String() string {
	switch p {
	case PartDeclared:
		return "declared"
	case PartMBR:
		return "mbr"
	default:
		return "unknown"
	}
}

var (
	ErrNoPartition = errors.New("no such partition")
	ErrUnaligned   = errors.New("offset not aligned to block size")
	ErrClosed      = errors.New("device closed")
)

// Partition is a contiguous run of blocks on a device.
type Partition struct {
	Name   string
	FSType string
	Start  uint64 // first block
	Blocks uint64
}

// Device is a block-addressed storage device.
type Device interface {
	// Name returns the device name, e.g. "mmc0".
	Name() string

	BlockSize() int
	Blocks() uint64

	// ReadBlocks reads len(p)/BlockSize() blocks starting at block start and
	// returns the number of blocks read. Reads are clamped to the device end.
	ReadBlocks(start uint64, p []byte) (int, error)

	// WriteBlocks writes len(p)/BlockSize() blocks starting at block start
	// and returns the number of blocks written.
	WriteBlocks(start uint64, p []byte) (int, error)

	// Partitions returns the partition table in declaration order.
	Partitions() []Partition
	PartType() PartType

	Close() error
}

type storage interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// disk implements Device over any random-access storage.
type disk struct {
	name      string
	store     storage
	parts     []Partition
	partType  PartType
	blockSize int
	blocks    uint64

	mu     sync.Mutex
	closed bool
}

// Compile-time interface check.
var _ Device = (*disk)(nil)

// OpenFile opens an image file as a block device. When parts is empty the
// first block is probed for an MBR.
func OpenFile(name, path string, blockSize int, parts []Partition) (Device, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%s: invalid block size %d", name, blockSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s image: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s image: %w", name, err)
	}
	d := newDisk(name, f, blockSize, uint64(info.Size())/uint64(blockSize), parts)
	return d, nil
}

// NewMemory returns an in-memory block device of the given geometry.
func NewMemory(name string, blockSize int, blocks uint64, parts []Partition) Device {
	store := &memStore{buf: make([]byte, uint64(blockSize)*blocks)}
	return newDisk(name, store, blockSize, blocks, parts)
}

func newDisk(name string, store storage, blockSize int, blocks uint64, parts []Partition) *disk {
	d := &disk{
		name:      name,
		store:     store,
		blockSize: blockSize,
		blocks:    blocks,
	}
	switch {
	case len(parts) > 0:
		d.parts = append([]Partition(nil), parts...)
		d.partType = PartDeclared
	case blockSize >= mbrSize && blocks > 0:
		sector := make([]byte, blockSize)
		if _, err := store.ReadAt(sector, 0); err == nil {
			if found, ok := ParseMBR(sector); ok {
				d.parts = found
				d.partType = PartMBR
			}
		}
	}
	return d
}

func (d *disk) Name() string            { return d.name }
func (d *disk) BlockSize() int          { return d.blockSize }
func (d *disk) Blocks() uint64          { return d.blocks }
func (d *disk) Partitions() []Partition { return d.parts }
func (d *disk) PartType() PartType      { return d.partType }

func (d *disk) ReadBlocks(start uint64, p []byte) (int, error) {
	cnt, err := d.span(start, p)
	if err != nil || cnt == 0 {
		return 0, err
	}
	n, err := d.store.ReadAt(p[:cnt*uint64(d.blockSize)], int64(start)*int64(d.blockSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return n / d.blockSize, fmt.Errorf("%s: read block %d: %w", d.name, start, err)
	}
	return n / d.blockSize, nil
}

func (d *disk) WriteBlocks(start uint64, p []byte) (int, error) {
	cnt, err := d.span(start, p)
	if err != nil || cnt == 0 {
		return 0, err
	}
	n, err := d.store.WriteAt(p[:cnt*uint64(d.blockSize)], int64(start)*int64(d.blockSize))
	if err != nil {
		return n / d.blockSize, fmt.Errorf("%s: write block %d: %w", d.name, start, err)
	}
	return n / d.blockSize, nil
}

// span returns how many whole blocks of p fit on the device from start.
func (d *disk) span(start uint64, p []byte) (uint64, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if len(p)%d.blockSize != 0 {
		return 0, fmt.Errorf("%s: buffer of %d bytes is not a block multiple", d.name, len(p))
	}
	if start >= d.blocks {
		return 0, nil
	}
	return min(uint64(len(p)/d.blockSize), d.blocks-start), nil
}

func (d *disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.store.Close()
}

type memStore struct {
	buf []byte
}

func (m *memStore) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStore) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(m.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.buf[off:], p), nil
}

func (*memStore) Close() error { return nil }

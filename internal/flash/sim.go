package flash

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// SimConfig describes the geometry of a simulated flash device.
type SimConfig struct {
	Name       string
	Partitions []Partition
	BadBlocks  []uint64 // factory-bad erase-unit indexes
	Media      MediaKind
	Size       uint64
	EraseSize  uint64
	WriteSize  uint64
}

// Validate checks the geometry: sizes multiple of each other and partitions
// aligned to the erase unit inside the device.
func (c SimConfig) Validate() error {
	switch {
	case c.EraseSize == 0 || c.WriteSize == 0:
		return fmt.Errorf("%s: erase and write sizes must be non-zero", c.Name)
	case c.EraseSize%c.WriteSize != 0:
		return fmt.Errorf("%s: erase size %d is not a multiple of write size %d", c.Name, c.EraseSize, c.WriteSize)
	case c.Size == 0 || c.Size%c.EraseSize != 0:
		return fmt.Errorf("%s: size %d is not a multiple of erase size %d", c.Name, c.Size, c.EraseSize)
	}
	for _, p := range c.Partitions {
		if p.Offset%c.EraseSize != 0 || p.Size%c.EraseSize != 0 {
			return fmt.Errorf("%s: partition %q not aligned to erase size", c.Name, p.Name)
		}
		if p.Offset+p.Size > c.Size {
			return fmt.Errorf("%s: partition %q exceeds device", c.Name, p.Name)
		}
	}
	return nil
}

// Ops counts the device operations issued, for instrumentation.
type Ops struct {
	Erases   int
	Reads    int
	Writes   int
	IsBads   int
	MarkBads int
	Closes   int
}

// WriteRecord is one physical program operation.
type WriteRecord struct {
	Addr uint64
	Len  int
}

type backing interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Sim is a flash device backed by memory or an image file. It keeps a bad
// block table, can inject erase failures and records every operation.
type Sim struct {
	cfg  SimConfig
	data backing

	mu         sync.Mutex
	bad        map[uint64]bool
	failErase  map[uint64]bool
	failMark   map[uint64]bool
	ops        Ops
	writes     []WriteRecord
	eraseCalls map[uint64]int
	closed     bool
}

// Compile-time interface check.
var _ Device = (*Sim)(nil)

// NewSim returns an erased in-memory flash device.
func NewSim(cfg SimConfig) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mem := &memBacking{buf: bytes.Repeat([]byte{0xff}, int(cfg.Size))} //nolint:gosec // G115: sim sizes are small
	return newSim(cfg, mem), nil
}

// OpenImage returns a flash device backed by the image file at path. The
// file must be exactly cfg.Size bytes long.
func OpenImage(cfg SimConfig, path string) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s image: %w", cfg.Name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s image: %w", cfg.Name, err)
	}
	if uint64(info.Size()) != cfg.Size { //nolint:gosec // G115: file sizes are non-negative
		f.Close()
		return nil, fmt.Errorf("%s image is %d bytes, want %d", cfg.Name, info.Size(), cfg.Size)
	}
	return newSim(cfg, f), nil
}

func newSim(cfg SimConfig, data backing) *Sim {
	s := &Sim{
		cfg:        cfg,
		data:       data,
		bad:        make(map[uint64]bool),
		failErase:  make(map[uint64]bool),
		failMark:   make(map[uint64]bool),
		eraseCalls: make(map[uint64]int),
	}
	for _, b := range cfg.BadBlocks {
		s.bad[b] = true
	}
	return s
}

func (s *Sim) Name() string            { return s.cfg.Name }
func (s *Sim) Media() MediaKind        { return s.cfg.Media }
func (s *Sim) Size() uint64            { return s.cfg.Size }
func (s *Sim) EraseSize() uint64       { return s.cfg.EraseSize }
func (s *Sim) WriteSize() uint64       { return s.cfg.WriteSize }
func (s *Sim) Partitions() []Partition { return s.cfg.Partitions }

// FailErase makes every erase of physical erase unit block fail until the
// block is marked bad.
func (s *Sim) FailErase(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErase[block] = true
}

// FailMark makes marking physical erase unit block bad fail.
func (s *Sim) FailMark(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMark[block] = true
}

// Ops returns a copy of the operation counters.
func (s *Sim) Ops() Ops {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops
}

// Writes returns the physical program log.
func (s *Sim) Writes() []WriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WriteRecord(nil), s.writes...)
}

// EraseCalls returns how many times physical erase unit block was erased.
func (s *Sim) EraseCalls(block uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eraseCalls[block]
}

// Bad reports whether physical erase unit block is in the bad block table.
func (s *Sim) Bad(block uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bad[block]
}

func (s *Sim) check(addr uint64, n uint64) error {
	if s.closed {
		return ErrClosed
	}
	if addr >= s.cfg.Size || n > s.cfg.Size-addr {
		return fmt.Errorf("%s: 0x%x+0x%x: %w", s.cfg.Name, addr, n, ErrOutOfRange)
	}
	return nil
}

func (s *Sim) Erase(addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.Erases++
	if addr%s.cfg.EraseSize != 0 {
		return fmt.Errorf("%s: erase 0x%x: %w", s.cfg.Name, addr, ErrUnaligned)
	}
	if err := s.check(addr, s.cfg.EraseSize); err != nil {
		return err
	}
	block := addr / s.cfg.EraseSize
	s.eraseCalls[block]++
	if s.bad[block] {
		return fmt.Errorf("%s: erase block %d: %w", s.cfg.Name, block, ErrBadBlock)
	}
	if s.failErase[block] {
		return fmt.Errorf("%s: erase block %d: %w", s.cfg.Name, block, ErrEraseFailed)
	}
	blank := bytes.Repeat([]byte{0xff}, int(s.cfg.EraseSize)) //nolint:gosec // G115: erase sizes are small
	_, err := s.data.WriteAt(blank, int64(addr))               //nolint:gosec // G115: bounded by device size
	return err
}

func (s *Sim) Read(addr uint64, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.Reads++
	if err := s.check(addr, uint64(len(p))); err != nil {
		return 0, err
	}
	n, err := s.data.ReadAt(p, int64(addr)) //nolint:gosec // G115: bounded by device size
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

func (s *Sim) Write(addr uint64, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.Writes++
	if addr%s.cfg.WriteSize != 0 || uint64(len(p))%s.cfg.WriteSize != 0 {
		return 0, fmt.Errorf("%s: write 0x%x+0x%x: %w", s.cfg.Name, addr, len(p), ErrUnaligned)
	}
	if err := s.check(addr, uint64(len(p))); err != nil {
		return 0, err
	}
	if s.bad[addr/s.cfg.EraseSize] {
		return 0, fmt.Errorf("%s: write 0x%x: %w", s.cfg.Name, addr, ErrBadBlock)
	}
	n, err := s.data.WriteAt(p, int64(addr)) //nolint:gosec // G115: bounded by device size
	s.writes = append(s.writes, WriteRecord{Addr: addr, Len: n})
	return n, err
}

func (s *Sim) IsBad(addr uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.IsBads++
	if err := s.check(addr, 1); err != nil {
		return false, err
	}
	return s.bad[addr/s.cfg.EraseSize], nil
}

func (s *Sim) MarkBad(addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.MarkBads++
	if err := s.check(addr, 1); err != nil {
		return err
	}
	block := addr / s.cfg.EraseSize
	if s.failMark[block] {
		return fmt.Errorf("%s: mark block %d bad: %w", s.cfg.Name, block, ErrEraseFailed)
	}
	s.bad[block] = true
	delete(s.failErase, block)
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.Closes++
	if s.closed {
		return nil
	}
	s.closed = true
	return s.data.Close()
}

type memBacking struct {
	buf []byte
}

func (m *memBacking) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBacking) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.buf[off:], p), nil
}

func (*memBacking) Close() error { return nil }

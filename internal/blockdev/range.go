package blockdev

import "fmt"

// Range is a byte-addressed window onto a device: either the whole device
// (partition 0) or one partition of its table.
type Range struct {
	dev  Device
	base uint64 // bytes
	size uint64 // bytes
}

// NewRange returns the byte range of partition part on d. Partition indexes
// are 1-based in table order; 0 selects the whole device.
func NewRange(d Device, part int) (*Range, error) {
	bs := uint64(d.BlockSize())
	if part == 0 {
		return &Range{dev: d, size: d.Blocks() * bs}, nil
	}
	parts := d.Partitions()
	if part < 0 || part > len(parts) {
		return nil, fmt.Errorf("%s:%d: %w", d.Name(), part, ErrNoPartition)
	}
	p := parts[part-1]
	return &Range{dev: d, base: p.Start * bs, size: p.Blocks * bs}, nil
}

// Base returns the absolute byte offset of the range on the device.
func (r *Range) Base() uint64 { return r.base }

// Size returns the range length in bytes.
func (r *Range) Size() uint64 { return r.size }

// WriteUnit is the device block size.
func (r *Range) WriteUnit() uint64 { return uint64(r.dev.BlockSize()) }

// Available returns the bytes left in the range from off.
func (r *Range) Available(off uint64) uint64 {
	if off >= r.size {
		return 0
	}
	return r.size - off
}

// ReadAt fills p from range offset off, rounding the read up to whole blocks
// and clamping at the range end. It returns the bytes placed in p.
func (r *Range) ReadAt(p []byte, off uint64) (int, error) {
	bs := r.WriteUnit()
	if off%bs != 0 {
		return 0, fmt.Errorf("%s: read at %d: %w", r.dev.Name(), off, ErrUnaligned)
	}
	want := min(uint64(len(p)), r.Available(off))
	if want == 0 {
		return 0, nil
	}
	full := want / bs * bs
	var got uint64
	if full > 0 {
		n, err := r.dev.ReadBlocks((r.base+off)/bs, p[:full])
		got = uint64(n) * bs
		if err != nil {
			return int(got), err
		}
	}
	if tail := want - full; tail > 0 && got == full {
		scratch := make([]byte, bs)
		n, err := r.dev.ReadBlocks((r.base+off+full)/bs, scratch)
		if err != nil {
			return int(got), err
		}
		if n > 0 {
			got += uint64(copy(p[full:want], scratch))
		}
	}
	return int(got), nil
}

// Program writes p at range offset off. A trailing partial block is
// zero-padded. Writes are clamped at the range end; the returned count is
// the number of bytes of p consumed.
func (r *Range) Program(off uint64, p []byte) (uint64, error) {
	bs := r.WriteUnit()
	if off%bs != 0 {
		return 0, fmt.Errorf("%s: write at %d: %w", r.dev.Name(), off, ErrUnaligned)
	}
	want := min(uint64(len(p)), r.Available(off))
	if want == 0 {
		return 0, nil
	}
	full := want / bs * bs
	var put uint64
	if full > 0 {
		n, err := r.dev.WriteBlocks((r.base+off)/bs, p[:full])
		put = uint64(n) * bs
		if err != nil {
			return put, err
		}
	}
	if tail := want - full; tail > 0 && put == full {
		scratch := make([]byte, bs)
		copy(scratch, p[full:want])
		n, err := r.dev.WriteBlocks((r.base+off+full)/bs, scratch)
		if err != nil {
			return put, err
		}
		if n > 0 {
			put += tail
		}
	}
	return put, nil
}

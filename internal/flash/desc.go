package flash

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrNoSpace is returned when bad-block skipping pushes a write past the end
// of its region.
var ErrNoSpace = errors.New("no good erase blocks left in region")

// Desc wraps a Device with bad-block remapping. Logical offsets map to
// physical addresses as physical = logical + skip, where skip grows by one
// erase unit each time a bad block is found or marked.
type Desc struct {
	dev  Device
	skip uint64

	// OnBad is called with the physical address of every bad block that
	// moves the mapping. marked is true when the block was marked bad by
	// this descriptor after an erase failure.
	OnBad func(addr uint64, marked bool)
}

// NewDesc returns a descriptor over dev with an empty skip counter.
func NewDesc(dev Device) *Desc {
	return &Desc{dev: dev}
}

func (d *Desc) Device() Device { return d.dev }

// Skip returns the accumulated physical displacement in bytes.
func (d *Desc) Skip() uint64 { return d.skip }

// ClearBad resets the displacement before a new transfer.
func (d *Desc) ClearBad() { d.skip = 0 }

func (d *Desc) phys(off uint64) uint64 { return off + d.skip }

func (d *Desc) bump(addr uint64, marked bool) {
	d.skip += d.dev.EraseSize()
	if d.OnBad != nil {
		d.OnBad(addr, marked)
	}
}

// IsBad reports whether the erase unit at logical offset off is bad. A bad
// block advances the mapping by one erase unit.
func (d *Desc) IsBad(off uint64) (bool, error) {
	addr := d.phys(off)
	bad, err := d.dev.IsBad(addr)
	if err != nil {
		return false, err
	}
	if bad {
		d.bump(addr, false)
	}
	return bad, nil
}

// MarkBad marks the erase unit at logical offset off bad. The mapping
// advances even when the device refuses the mark.
func (d *Desc) MarkBad(off uint64) error {
	addr := d.phys(off)
	err := d.dev.MarkBad(addr)
	d.bump(addr, true)
	if err != nil {
		return fmt.Errorf("mark 0x%x bad: %w", addr, err)
	}
	return nil
}

// Erase erases the erase unit at logical offset off.
func (d *Desc) Erase(off uint64) error {
	return d.dev.Erase(d.phys(off))
}

// Write programs p at logical offset off, which must be erase aligned.
// Each erase unit is checked, erased and written; a partial final unit is
// padded with 0xFF. It returns the number of bytes of p consumed.
func (d *Desc) Write(off uint64, p []byte) (uint64, error) {
	return d.write(off, p, d.dev.Size())
}

func (d *Desc) write(off uint64, p []byte, end uint64) (uint64, error) {
	es := d.dev.EraseSize()
	if off%es != 0 {
		return 0, fmt.Errorf("write at 0x%x: %w", off, ErrUnaligned)
	}

	var done uint64
	total := uint64(len(p))
	for done < total {
		cur := off + done
		if d.phys(cur)+es > end {
			return done, fmt.Errorf("write at 0x%x: %w", d.phys(cur), ErrNoSpace)
		}

		bad, err := d.IsBad(cur)
		if err != nil {
			return done, err
		}
		if bad {
			continue
		}

		if err := d.Erase(cur); err != nil {
			if errors.Is(err, ErrOutOfRange) || errors.Is(err, ErrClosed) {
				return done, err
			}
			if err := d.MarkBad(cur); err != nil {
				return done, err
			}
			continue
		}

		chunk := p[done:min(done+es, total)]
		if uint64(len(chunk)) < es {
			padded := bytes.Repeat([]byte{0xff}, int(es)) //nolint:gosec // G115: erase sizes are small
			copy(padded, chunk)
			chunk = padded
		}
		if _, err := d.dev.Write(d.phys(cur), chunk); err != nil {
			return done, err
		}
		done += min(es, total-done)
	}
	return done, nil
}

// Read reads len(p) bytes starting at logical offset off, skipping bad
// blocks along the way.
func (d *Desc) Read(off uint64, p []byte) (uint64, error) {
	return d.read(off, p, d.dev.Size())
}

func (d *Desc) read(off uint64, p []byte, end uint64) (uint64, error) {
	es := d.dev.EraseSize()
	var done uint64
	total := uint64(len(p))
	for done < total {
		cur := off + done
		addr := d.phys(cur)
		if addr >= end {
			break
		}
		bad, err := d.IsBad(cur)
		if err != nil {
			return done, err
		}
		if bad {
			continue
		}
		n := min(total-done, es-addr%es, end-addr)
		if _, err := d.dev.Read(addr, p[done:done+n]); err != nil {
			return done, err
		}
		done += n
	}
	return done, nil
}

// PartitionOffset returns the byte offset of partition part. Partitions are
// 1-indexed; 0 is the whole device.
func (d *Desc) PartitionOffset(part int) (uint64, bool) {
	if part == 0 {
		return 0, true
	}
	parts := d.dev.Partitions()
	if part < 0 || part > len(parts) {
		return 0, false
	}
	return parts[part-1].Offset, true
}

func (d *Desc) partitionSize(part int) (uint64, bool) {
	if part == 0 {
		return d.dev.Size(), true
	}
	parts := d.dev.Partitions()
	if part < 0 || part > len(parts) {
		return 0, false
	}
	return parts[part-1].Size, true
}

// Remaining returns how many bytes are left in partition part after logical
// offset off, accounting for skipped blocks.
func (d *Desc) Remaining(off uint64, part int) uint64 {
	size, ok := d.partitionSize(part)
	if !ok || off+d.skip >= size {
		return 0
	}
	return size - off - d.skip
}

// Region returns a view of partition part (0 is the whole device).
func (d *Desc) Region(part int) (*Region, error) {
	base, ok := d.PartitionOffset(part)
	if !ok {
		return nil, fmt.Errorf("%s partition %d: %w", d.dev.Name(), part, ErrOutOfRange)
	}
	size, _ := d.partitionSize(part)
	return &Region{d: d, part: part, base: base, size: size}, nil
}

// Region is a partition of a Desc addressed from zero.
type Region struct {
	d    *Desc
	part int
	base uint64
	size uint64
}

func (r *Region) Desc() *Desc       { return r.d }
func (r *Region) Base() uint64      { return r.base }
func (r *Region) Size() uint64      { return r.size }
func (r *Region) WriteUnit() uint64 { return r.d.dev.WriteSize() }

// Available returns the bytes left after offset off.
func (r *Region) Available(off uint64) uint64 {
	return r.d.Remaining(off, r.part)
}

// Program writes p at region offset off.
func (r *Region) Program(off uint64, p []byte) (uint64, error) {
	return r.d.write(r.base+off, p, r.base+r.size)
}

// ReadAt reads into p from region offset off. Reads stop at the region end.
func (r *Region) ReadAt(p []byte, off uint64) (uint64, error) {
	return r.d.read(r.base+off, p, r.base+r.size)
}

// EraseRest erases every good block from off, rounded up to the erase size,
// to the end of the region, and returns how many blocks it erased. Blocks
// that fail to erase are marked bad.
func (r *Region) EraseRest(off uint64) (int, error) {
	es := r.d.dev.EraseSize()
	cur := r.base + (off+es-1)/es*es
	end := r.base + r.size
	erased := 0
	for r.d.phys(cur)+es <= end {
		bad, err := r.d.IsBad(cur)
		if err != nil {
			return erased, err
		}
		if bad {
			continue
		}
		if err := r.d.Erase(cur); err != nil {
			if err := r.d.MarkBad(cur); err != nil {
				return erased, err
			}
			continue
		}
		erased++
		cur += es
	}
	return erased, nil
}

// Package inflate streams a gzip image from memory onto a block-granular
// sink, verifying the trailer CRC32 and length as it goes.
package inflate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

var (
	ErrBadHeader        = errors.New("invalid gzip header")
	ErrTruncated        = errors.New("gzip stream truncated")
	ErrSizeMismatch     = errors.New("uncompressed size does not match expected size")
	ErrDeviceTooSmall   = errors.New("image larger than destination")
	ErrChecksumMismatch = errors.New("crc32 or length mismatch")
	ErrBufferSize       = errors.New("buffer size must be a non-zero multiple of the write unit")
	ErrUnaligned        = errors.New("start offset not aligned to write unit")
	ErrInterrupted      = errors.New("interrupted")
)

const (
	flagHCRC     = 0x02
	flagExtra    = 0x04
	flagName     = 0x08
	flagComment  = 0x10
	flagReserved = 0xe0

	methodDeflate = 8
	trailerLen    = 8
)

// Sink receives decompressed data in whole write units.
type Sink interface {
	WriteUnit() uint64
	// Available returns the bytes that can still be written after off.
	Available(off uint64) uint64
	// Program writes p, a whole number of write units, at off.
	Program(off uint64, p []byte) (uint64, error)
}

// Options controls a Write call.
type Options struct {
	Interrupt func() bool
	Progress  func(done, total uint64)

	// BufSize is the staging buffer, a multiple of the sink write unit.
	BufSize uint64
	// Start is the sink offset of the first write.
	Start uint64
	// Expected is the expected uncompressed size; zero trusts the trailer.
	Expected uint64
}

// Header is the parsed gzip member header.
type Header struct {
	Name    string
	Comment string
	Extra   []byte
	// DataOffset is the index of the first deflate byte.
	DataOffset int
}

// Trailer is the gzip member trailer.
type Trailer struct {
	CRC  uint32
	Size uint32
}

// ParseHeader validates the gzip member header at the start of src.
func ParseHeader(src []byte) (Header, error) {
	var h Header
	if len(src) < 10 || src[0] != 0x1f || src[1] != 0x8b {
		return h, fmt.Errorf("magic: %w", ErrBadHeader)
	}
	if src[2] != methodDeflate {
		return h, fmt.Errorf("method %d: %w", src[2], ErrBadHeader)
	}
	flags := src[3]
	if flags&flagReserved != 0 {
		return h, fmt.Errorf("reserved flags 0x%02x: %w", flags, ErrBadHeader)
	}

	i := 10
	if flags&flagExtra != 0 {
		if i+2 > len(src) {
			return h, fmt.Errorf("extra length: %w", ErrTruncated)
		}
		n := int(binary.LittleEndian.Uint16(src[i:]))
		i += 2
		if i+n > len(src) {
			return h, fmt.Errorf("extra field: %w", ErrTruncated)
		}
		h.Extra = src[i : i+n]
		i += n
	}
	if flags&flagName != 0 {
		s, next, err := cstring(src, i)
		if err != nil {
			return h, fmt.Errorf("name: %w", err)
		}
		h.Name, i = s, next
	}
	if flags&flagComment != 0 {
		s, next, err := cstring(src, i)
		if err != nil {
			return h, fmt.Errorf("comment: %w", err)
		}
		h.Comment, i = s, next
	}
	if flags&flagHCRC != 0 {
		i += 2
	}
	if i >= len(src)-trailerLen {
		return h, ErrTruncated
	}
	h.DataOffset = i
	return h, nil
}

func cstring(src []byte, i int) (string, int, error) {
	for j := i; j < len(src); j++ {
		if src[j] == 0 {
			return string(src[i:j]), j + 1, nil
		}
	}
	return "", 0, ErrTruncated
}

// ParseTrailer reads the CRC32 and size that end the member.
func ParseTrailer(src []byte) (Trailer, error) {
	if len(src) < trailerLen {
		return Trailer{}, ErrTruncated
	}
	t := src[len(src)-trailerLen:]
	return Trailer{
		CRC:  binary.LittleEndian.Uint32(t),
		Size: binary.LittleEndian.Uint32(t[4:]),
	}, nil
}

// Write decompresses the gzip image src onto dst and returns the number of
// uncompressed bytes written. The capacity check happens before any write;
// the checksum check happens after the last one.
func Write(src []byte, dst Sink, opts Options) (uint64, error) {
	unit := dst.WriteUnit()
	if unit == 0 || opts.BufSize == 0 || opts.BufSize%unit != 0 {
		return 0, ErrBufferSize
	}
	if opts.Start%unit != 0 {
		return 0, ErrUnaligned
	}

	hdr, err := ParseHeader(src)
	if err != nil {
		return 0, err
	}
	trl, err := ParseTrailer(src)
	if err != nil {
		return 0, err
	}

	expected := opts.Expected
	if expected == 0 {
		expected = uint64(trl.Size)
	} else if expected != uint64(trl.Size) {
		return 0, fmt.Errorf("expected %d, trailer %d: %w", expected, trl.Size, ErrSizeMismatch)
	}

	need := (expected + unit - 1) / unit * unit
	if avail := dst.Available(opts.Start); need > avail {
		return 0, fmt.Errorf("need %d bytes, %d available: %w", need, avail, ErrDeviceTooSmall)
	}

	zr := flate.NewReader(bytes.NewReader(src[hdr.DataOffset : len(src)-trailerLen]))
	defer zr.Close()

	buf := make([]byte, opts.BufSize)
	crc := crc32.NewIEEE()
	off := opts.Start
	var total uint64

	for {
		n, rerr := fill(zr, buf)
		if n > 0 {
			crc.Write(buf[:n])
			total += uint64(n)

			out := buf[:n]
			if rem := uint64(n) % unit; rem != 0 {
				pad := unit - rem
				clear(buf[n : uint64(n)+pad])
				out = buf[:uint64(n)+pad]
			}
			if _, err := dst.Program(off, out); err != nil {
				return total, fmt.Errorf("program at 0x%x: %w", off, err)
			}
			off += uint64(len(out))

			if opts.Progress != nil {
				opts.Progress(total, expected)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return total, fmt.Errorf("inflate: %w", rerr)
		}
		if opts.Interrupt != nil && opts.Interrupt() {
			return total, ErrInterrupted
		}
	}

	if total != uint64(trl.Size) || crc.Sum32() != trl.CRC {
		return total, fmt.Errorf("got %d bytes crc %08x, trailer %d bytes crc %08x: %w",
			total, crc.Sum32(), trl.Size, trl.CRC, ErrChecksumMismatch)
	}
	return total, nil
}

// fill reads into buf until it is full or the stream ends.
func fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

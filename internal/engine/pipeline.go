package engine

import (
	"fmt"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/secure"
)

const (
	DefaultBufferSize       = 16 << 20
	DefaultDecompressBuffer = 1 << 20
)

// Pipeline is the load/burn/finalize selection for one transfer. It borrows
// the endpoints and owns nothing.
type Pipeline struct {
	Source *endpoint.Endpoint
	Dest   *endpoint.Endpoint
	Extras endpoint.Extras

	// SinglePass moves the whole payload in one load and one burn.
	SinglePass bool
	// BufferSize is the working buffer, aligned to the participating
	// devices' write units.
	BufferSize uint64
	// Transferred is the logical offset reached by the copy loop.
	Transferred uint64

	load    loadFunc
	burn    burnFunc
	loadFin finFunc
	burnFin finFunc

	loadName string
	burnName string
}

// Build selects the backend functions for src and dst. Unsupported
// combinations are rejected here, before any I/O.
func Build(src, dst *endpoint.Endpoint, extras endpoint.Extras, opts Options) (*Pipeline, error) {
	opts = opts.withDefaults()
	p := &Pipeline{
		Source:   src,
		Dest:     dst,
		Extras:   extras,
		loadFin:  nopFin,
		burnFin:  nopFin,
		loadName: "none",
		burnName: "none",
	}
	if err := p.selectLoad(); err != nil {
		return nil, err
	}
	if err := p.selectBurn(opts); err != nil {
		return nil, err
	}

	p.SinglePass = extras != 0 ||
		src.Kind == endpoint.Ram || src.Kind == endpoint.Network ||
		dst.Kind == endpoint.Ram || dst.Kind == endpoint.Network
	p.BufferSize = alignDown(opts.BufferSize, max(unitOf(src), unitOf(dst)))
	return p, nil
}

func (p *Pipeline) unsupported(ep *endpoint.Endpoint) error {
	return &UnsupportedEndpointError{Role: ep.Role, Kind: ep.Kind, Format: ep.Format, Extras: p.Extras}
}

func (p *Pipeline) selectLoad() error {
	load, name, ok := loaderFor(p.Source)
	if !ok {
		return p.unsupported(p.Source)
	}
	p.load, p.loadName = load, name
	if p.Source.Kind == endpoint.RawFlash {
		p.loadFin = clearFlash(p.Source)
	}
	return nil
}

// loaderFor returns the load function reading ep's raw contents or file.
func loaderFor(ep *endpoint.Endpoint) (loadFunc, string, bool) {
	switch {
	case ep.Kind == endpoint.Ram && ep.Format == endpoint.RawBytes:
		return loadRAM(ep), "ram", true
	case ep.Kind == endpoint.Network && ep.Format.IsNetwork():
		return loadNet(ep), "net:" + ep.Format.String(), true
	case ep.Kind == endpoint.Block && ep.Format == endpoint.RawBytes:
		return loadBlock(ep), "blk", true
	case ep.Kind == endpoint.Block && ep.Format.IsFilesystem():
		return loadFile(ep), "fs:" + ep.Format.String(), true
	case ep.Kind == endpoint.RawFlash && ep.Format == endpoint.RawBytes:
		return loadFlash(ep), "flash", true
	default:
		return nil, "", false
	}
}

func (p *Pipeline) selectBurn(opts Options) error {
	dst := p.Dest
	var plain burnFunc
	switch {
	case dst.Kind == endpoint.Ram && dst.Format == endpoint.RawBytes:
		plain, p.burnName = burnRAM(dst), "ram"
	case dst.Kind == endpoint.Block && dst.Format == endpoint.RawBytes:
		plain, p.burnName = burnBlock(dst), "blk"
	case dst.Kind == endpoint.Block && dst.Format.IsFilesystem():
		if p.Extras != 0 {
			return p.unsupported(dst)
		}
		plain, p.burnName = burnFile(dst), "fs:"+dst.Format.String()
	case dst.Kind == endpoint.RawFlash && dst.Format == endpoint.RawBytes:
		plain, p.burnName = burnFlash(dst), "flash"
		p.burnFin = eraseRestFlash(dst, opts.Stats.AddBlocksErased)
	default:
		return p.unsupported(dst)
	}

	switch {
	case p.Extras&endpoint.SecureVerify != 0:
		if len(opts.PublicKey) == 0 {
			return fmt.Errorf("secure check: %w", secure.ErrNoKey)
		}
		p.burn = burnVerified(opts.PublicKey, plain)
		p.burnName += "+securecheck"
	case p.Extras&endpoint.Decompress != 0:
		bufSize := alignUp(opts.DecompressBuffer, unitOf(dst))
		progress := func(done, total uint64) {
			opts.Stats.SetTotal(total)
			opts.emit(eventProgress(done, total))
		}
		p.burn = burnInflate(dst, bufSize, opts.Interrupt, progress)
		p.burnName += "+decompress"
	default:
		p.burn = plain
	}
	return nil
}

// unitOf is the alignment a device needs for every chunk offset: the erase
// size for flash, the block size for block devices, 1 otherwise.
func unitOf(ep *endpoint.Endpoint) uint64 {
	switch ep.Kind {
	case endpoint.RawFlash:
		return ep.Flash().Device().EraseSize()
	case endpoint.Block:
		if ep.Block() != nil {
			return uint64(ep.Block().BlockSize()) //nolint:gosec // G115: block sizes are positive
		}
	}
	return 1
}

func alignDown(n, unit uint64) uint64 {
	if unit <= 1 {
		return n
	}
	if n < unit {
		return unit
	}
	return n / unit * unit
}

func alignUp(n, unit uint64) uint64 {
	if unit <= 1 {
		return n
	}
	return (n + unit - 1) / unit * unit
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("%s -> %s (single-pass=%t buffer=%d)", p.loadName, p.burnName, p.SinglePass, p.BufferSize)
}

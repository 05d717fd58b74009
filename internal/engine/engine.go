package engine

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/event"
	"github.com/bamsammich/gload/internal/flash"
	"github.com/bamsammich/gload/internal/stats"
)

// Options tunes a transfer.
type Options struct {
	// Interrupt is polled by the decompression writer between chunks.
	// Nil means the run context being done.
	Interrupt func() bool
	Events    chan<- event.Event
	Stats     *stats.Collector
	PublicKey ed25519.PublicKey

	// BufferSize bounds the working buffer; zero selects 16 MiB.
	BufferSize uint64
	// DecompressBuffer is the inflate staging buffer; zero selects 1 MiB.
	DecompressBuffer uint64
	// Verify reads the destination back after a successful burn.
	Verify bool

	transfer string
}

func (o Options) withDefaults() Options {
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.DecompressBuffer == 0 {
		o.DecompressBuffer = DefaultDecompressBuffer
	}
	if o.Stats == nil {
		o.Stats = stats.NewCollector()
	}
	return o
}

func (o Options) emit(e event.Event) {
	if o.Events == nil {
		return
	}
	e.Timestamp = time.Now()
	e.Transfer = o.transfer
	select {
	case o.Events <- e:
	default:
	}
}

func eventProgress(done, total uint64) event.Event {
	return event.Event{Type: event.Progress, Size: done, Total: total}
}

// Config describes one transfer between two resolved endpoints.
type Config struct {
	Source  *endpoint.Endpoint
	Dest    *endpoint.Endpoint
	Extras  endpoint.Extras
	Options Options
}

// Result is the outcome of a transfer.
type Result struct {
	Err    error
	ID     string
	Digest string // BLAKE3 of the loaded payload
	Stats  stats.Snapshot
	Bytes  uint64 // logical bytes transferred
}

// Run builds the pipeline for cfg and executes it, blocking until the
// finalizers have run. Endpoints stay open; the caller closes them.
func Run(ctx context.Context, cfg Config) Result {
	opts := cfg.Options.withDefaults()
	opts.transfer = uuid.NewString()
	if opts.Interrupt == nil {
		opts.Interrupt = func() bool { return ctx.Err() != nil }
	}
	log := slog.With("transfer", opts.transfer)

	p, err := Build(cfg.Source, cfg.Dest, cfg.Extras, opts)
	if err != nil {
		return Result{ID: opts.transfer, Err: err, Stats: opts.Stats.Snapshot()}
	}

	unhook := hookBadBlocks(opts, log, cfg.Source, cfg.Dest)
	defer unhook()

	log.Debug("pipeline", "source", cfg.Source, "dest", cfg.Dest, "plan", p)
	opts.Stats.AddTransfer()
	opts.emit(event.Event{Type: event.TransferStarted, Source: cfg.Source.String(), Dest: cfg.Dest.String()})

	digest := newPayloadDigest()
	loopErr := p.copy(ctx, opts, digest, log)
	err = errors.Join(loopErr, p.finalize(opts, log))
	unhook()

	if err == nil && opts.Verify {
		if cfg.Extras&endpoint.Decompress != 0 {
			log.Debug("skipping readback of decompressed payload")
		} else {
			err = Verify(ctx, VerifyConfig{
				Dest:       cfg.Dest,
				Events:     opts.Events,
				Transfer:   opts.transfer,
				Digest:     digest.String(),
				Length:     p.Transferred,
				BufferSize: p.BufferSize,
			})
		}
	}

	res := Result{
		ID:     opts.transfer,
		Bytes:  p.Transferred,
		Digest: digest.String(),
		Err:    err,
	}
	if err != nil {
		opts.Stats.AddTransferFailed()
		opts.emit(event.Event{Type: event.TransferFailed, Size: p.Transferred, Error: err})
	} else {
		opts.emit(event.Event{Type: event.TransferCompleted, Size: p.Transferred})
	}
	log.Debug("load&burn finished", "burned", p.Transferred, "error", err)
	res.Stats = opts.Stats.Snapshot()
	return res
}

// hookBadBlocks routes flash bad-block discoveries into events and stats
// until the returned func is called.
func hookBadBlocks(opts Options, log *slog.Logger, eps ...*endpoint.Endpoint) func() {
	var descs []*flash.Desc
	for _, ep := range eps {
		if ep.Kind != endpoint.RawFlash {
			continue
		}
		d := ep.Flash()
		d.OnBad = func(addr uint64, marked bool) {
			log.Warn("bad block", "device", ep.Name(), "addr", addr, "marked", marked)
			opts.Stats.AddBadBlock(marked)
			opts.emit(event.Event{Type: event.BadBlock, Addr: addr, Marked: marked})
		}
		descs = append(descs, d)
	}
	return func() {
		for _, d := range descs {
			d.OnBad = nil
		}
	}
}

// copy runs the load/burn loop and records the reached offset in
// p.Transferred.
func (p *Pipeline) copy(ctx context.Context, opts Options, digest *payloadDigest, log *slog.Logger) error {
	buf := make([]byte, p.BufferSize)
	var off uint64
	defer func() { p.Transferred = off }()

	for {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: StageLoad, Offset: off, Err: err}
		}

		log.Debug("loading", "offset", off)
		n, err := p.load(ctx, off, buf)
		if err != nil {
			return &StageError{Stage: StageLoad, Offset: off, Err: err}
		}
		if n == 0 {
			return nil
		}
		if p.SinglePass && n == uint64(len(buf)) {
			if err := p.probeOverflow(ctx, n); err != nil {
				return err
			}
		}
		opts.Stats.AddBytesLoaded(n)
		opts.Stats.AddChunkLoaded()
		opts.emit(event.Event{Type: event.ChunkLoaded, Offset: off, Size: n})

		log.Debug("loaded&burning", "offset", off, "loaded", n)
		consumed, err := p.burn(ctx, off, buf[:n])
		if err != nil {
			return &StageError{Stage: StageBurn, Offset: off, Err: err}
		}
		if consumed == 0 {
			return nil
		}
		if p.SinglePass {
			digest.Write(buf[:n])
		} else {
			digest.Write(buf[:min(consumed, n)])
		}
		opts.Stats.AddBytesBurned(consumed)
		opts.Stats.AddChunkBurned()
		opts.emit(event.Event{Type: event.ChunkBurned, Offset: off, Size: consumed})

		off += consumed
		if p.SinglePass {
			opts.Stats.SetTotal(consumed)
			return nil
		}
	}
}

// probeOverflow fails a single-pass load that filled the whole buffer while
// the source still has data.
func (p *Pipeline) probeOverflow(ctx context.Context, n uint64) error {
	var probe [1]byte
	more, err := p.load(ctx, n, probe[:])
	if err != nil {
		return &StageError{Stage: StageLoad, Offset: n, Err: err}
	}
	if more > 0 {
		return &StageError{
			Stage:  StageLoad,
			Offset: n,
			Err:    fmt.Errorf("%w (%d bytes)", ErrPayloadTooLarge, p.BufferSize),
		}
	}
	return nil
}

// finalize runs both finalizers exactly once, whatever the loop outcome.
func (p *Pipeline) finalize(opts Options, log *slog.Logger) error {
	var errs []error
	for _, f := range []struct {
		fn    finFunc
		stage string
	}{
		{p.loadFin, StageLoadFinalize},
		{p.burnFin, StageBurnFinalize},
	} {
		opts.emit(event.Event{Type: event.FinalizeStarted, Stage: f.stage, Offset: p.Transferred})
		if err := f.fn(p.Transferred); err != nil {
			log.Debug("finalize failed", "stage", f.stage, "error", err)
			errs = append(errs, &StageError{Stage: f.stage, Offset: p.Transferred, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Transfer resolves source and dest through reg, runs the transfer and
// releases both endpoints on every path.
func Transfer(ctx context.Context, reg *endpoint.Registry, source, dest endpoint.Target, extras endpoint.Extras, opts Options) Result {
	src, err := reg.Resolve(source.Spec, endpoint.Source, source)
	if err != nil {
		return Result{Err: fmt.Errorf("source: %w", err)}
	}
	defer closeEndpoint(src)

	dst, err := reg.Resolve(dest.Spec, endpoint.Dest, dest)
	if err != nil {
		return Result{Err: fmt.Errorf("dest: %w", err)}
	}
	defer closeEndpoint(dst)

	return Run(ctx, Config{Source: src, Dest: dst, Extras: extras, Options: opts})
}

func closeEndpoint(ep *endpoint.Endpoint) {
	if err := ep.Close(); err != nil {
		slog.Warn("close endpoint", "endpoint", ep.Name(), "error", err)
	}
}

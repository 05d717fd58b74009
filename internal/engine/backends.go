package engine

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/flash"
	"github.com/bamsammich/gload/internal/fsys"
	"github.com/bamsammich/gload/internal/inflate"
	"github.com/bamsammich/gload/internal/netfetch"
	"github.com/bamsammich/gload/internal/secure"
)

// loadFunc fills buf from logical offset off and returns the bytes produced.
type loadFunc func(ctx context.Context, off uint64, buf []byte) (uint64, error)

// burnFunc writes p at logical offset off and returns the bytes consumed.
type burnFunc func(ctx context.Context, off uint64, p []byte) (uint64, error)

// finFunc runs once after the copy loop; end is the final logical offset.
type finFunc func(end uint64) error

func nopFin(uint64) error { return nil }

func loadRAM(ep *endpoint.Endpoint) loadFunc {
	ram := ep.RAM()
	return func(_ context.Context, off uint64, buf []byte) (uint64, error) {
		return ram.ReadAt(buf, off), nil
	}
}

func burnRAM(ep *endpoint.Endpoint) burnFunc {
	ram := ep.RAM()
	return func(_ context.Context, off uint64, p []byte) (uint64, error) {
		if off == 0 {
			return ram.Replace(p)
		}
		return ram.Program(off, p)
	}
}

// loadNet fetches the whole remote file in one call. The offset is ignored:
// any call after the first yields end of source.
func loadNet(ep *endpoint.Endpoint) loadFunc {
	n := ep.Net()
	proto := netfetch.ProtoTFTP
	if ep.Format == endpoint.NetworkDhcp {
		proto = netfetch.ProtoDHCP
	}
	return func(ctx context.Context, off uint64, buf []byte) (uint64, error) {
		if off > 0 {
			return 0, nil
		}
		got, err := n.Fetcher.Fetch(ctx, proto, n.Server, ep.Symbol, buf)
		return uint64(got), err //nolint:gosec // G115: byte counts are non-negative
	}
}

func loadFile(ep *endpoint.Endpoint) loadFunc {
	vol := ep.Volume()
	return func(_ context.Context, off uint64, buf []byte) (uint64, error) {
		n, err := fsys.ReadFile(vol, ep.Symbol, off, buf)
		return uint64(n), err //nolint:gosec // G115: byte counts are non-negative
	}
}

func burnFile(ep *endpoint.Endpoint) burnFunc {
	vol := ep.Volume()
	return func(_ context.Context, off uint64, p []byte) (uint64, error) {
		n, err := fsys.WriteFile(vol, ep.Symbol, off, p)
		return uint64(n), err //nolint:gosec // G115: byte counts are non-negative
	}
}

func loadBlock(ep *endpoint.Endpoint) loadFunc {
	rng := ep.Range()
	return func(_ context.Context, off uint64, buf []byte) (uint64, error) {
		n, err := rng.ReadAt(buf, off)
		return uint64(n), err //nolint:gosec // G115: byte counts are non-negative
	}
}

func burnBlock(ep *endpoint.Endpoint) burnFunc {
	rng := ep.Range()
	return func(_ context.Context, off uint64, p []byte) (uint64, error) {
		return rng.Program(off, p)
	}
}

// flashRegion looks the partition up on every call so table changes between
// resolve and use are honored.
func flashRegion(ep *endpoint.Endpoint) (*flash.Region, error) {
	return ep.Flash().Region(ep.FlashPartition())
}

func loadFlash(ep *endpoint.Endpoint) loadFunc {
	return func(_ context.Context, off uint64, buf []byte) (uint64, error) {
		r, err := flashRegion(ep)
		if err != nil {
			return 0, err
		}
		return r.ReadAt(buf, off)
	}
}

func burnFlash(ep *endpoint.Endpoint) burnFunc {
	return func(_ context.Context, off uint64, p []byte) (uint64, error) {
		r, err := flashRegion(ep)
		if err != nil {
			return 0, err
		}
		return r.Program(off, p)
	}
}

// clearFlash resets the bad-block accounting after a flash source pass.
func clearFlash(ep *endpoint.Endpoint) finFunc {
	return func(uint64) error {
		ep.Flash().ClearBad()
		return nil
	}
}

// eraseRestFlash erases the destination partition past the last written
// offset, then resets the bad-block accounting.
func eraseRestFlash(ep *endpoint.Endpoint, erased func(int64)) finFunc {
	return func(end uint64) error {
		defer ep.Flash().ClearBad()
		r, err := flashRegion(ep)
		if err != nil {
			return err
		}
		if end >= r.Size() {
			return nil
		}
		slog.Debug("erasing rest of partition", "device", ep.Name(), "from", end, "size", r.Size())
		n, err := r.EraseRest(end)
		if erased != nil {
			erased(int64(n))
		}
		if err != nil {
			return fmt.Errorf("erase rest of %s: %w", ep.Name(), err)
		}
		return nil
	}
}

// sinkFunc returns the inflate sink for a destination.
func sinkFunc(ep *endpoint.Endpoint) func() (inflate.Sink, error) {
	switch ep.Kind {
	case endpoint.Ram:
		return func() (inflate.Sink, error) {
			ep.RAM().Reset()
			return ep.RAM(), nil
		}
	case endpoint.RawFlash:
		return func() (inflate.Sink, error) {
			return flashRegion(ep)
		}
	default:
		return func() (inflate.Sink, error) {
			return ep.Range(), nil
		}
	}
}

// burnInflate decompresses the whole gzip payload onto the destination and
// reports the uncompressed size as consumed.
func burnInflate(ep *endpoint.Endpoint, bufSize uint64, interrupt func() bool, progress func(done, total uint64)) burnFunc {
	sink := sinkFunc(ep)
	return func(_ context.Context, off uint64, p []byte) (uint64, error) {
		s, err := sink()
		if err != nil {
			return 0, err
		}
		return inflate.Write(p, s, inflate.Options{
			BufSize:   bufSize,
			Start:     off,
			Interrupt: interrupt,
			Progress:  progress,
		})
	}
}

// burnVerified checks the signature trailer and then burns the full buffer
// with next.
func burnVerified(pub ed25519.PublicKey, next burnFunc) burnFunc {
	return func(ctx context.Context, off uint64, p []byte) (uint64, error) {
		if _, err := secure.Verify(p, pub); err != nil {
			return 0, err
		}
		slog.Debug("signature verified", "bytes", len(p))
		return next(ctx, off, p)
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/event"
)

var (
	// ErrVerifyMismatch is returned when the destination reads back
	// different bytes than were loaded.
	ErrVerifyMismatch = errors.New("readback digest mismatch")
	// ErrNotVerifiable is returned for destinations whose contents differ
	// from the loaded payload by construction.
	ErrNotVerifiable = errors.New("destination cannot be verified by readback")
)

// VerifyConfig controls the post-burn readback pass.
type VerifyConfig struct {
	Dest       *endpoint.Endpoint
	Events     chan<- event.Event
	Transfer   string
	Digest     string
	Length     uint64
	BufferSize uint64
}

// Verify reads Length bytes back from Dest and compares their BLAKE3
// digest with Digest.
func Verify(ctx context.Context, cfg VerifyConfig) error {
	opts := Options{Events: cfg.Events, transfer: cfg.Transfer}
	opts.emit(event.Event{Type: event.VerifyStarted, Dest: cfg.Dest.String(), Total: cfg.Length})

	err := readback(ctx, cfg)
	if err != nil {
		opts.emit(event.Event{Type: event.VerifyFailed, Dest: cfg.Dest.String(), Error: err})
	}
	return err
}

func readback(ctx context.Context, cfg VerifyConfig) error {
	load, _, ok := loaderFor(cfg.Dest)
	if !ok || cfg.Dest.Kind == endpoint.Network {
		return fmt.Errorf("%s: %w", cfg.Dest, ErrNotVerifiable)
	}
	if cfg.Dest.Kind == endpoint.RawFlash {
		defer cfg.Dest.Flash().ClearBad()
	}

	size := cfg.BufferSize
	if size == 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, alignDown(min(size, max(cfg.Length, 1)), unitOf(cfg.Dest)))

	digest := newPayloadDigest()
	var off uint64
	for off < cfg.Length {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := load(ctx, off, buf)
		if err != nil {
			return &StageError{Stage: StageVerify, Offset: off, Err: err}
		}
		if n == 0 {
			break
		}
		n = min(n, cfg.Length-off)
		digest.Write(buf[:n])
		off += n
	}

	if off != cfg.Length || digest.String() != cfg.Digest {
		slog.Debug("readback mismatch", "dest", cfg.Dest.Name(), "read", off, "want", cfg.Length)
		return fmt.Errorf("%s: read %d of %d bytes: %w", cfg.Dest.Name(), off, cfg.Length, ErrVerifyMismatch)
	}
	return nil
}

// Package netfetch is the network layer: a blocking fetch of a named file
// from a boot server into a caller-supplied buffer.
package netfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/pin/tftp/v3"
	"golang.org/x/time/rate"
)

// Proto selects the retrieval protocol.
type Proto int

const (
	ProtoTFTP Proto = iota + 1
	ProtoDHCP
)

func (p Proto) String() string {
	switch p {
	case ProtoTFTP:
		return "tftp"
	case ProtoDHCP:
		return "dhcp"
	default:
		return "unknown"
	}
}

var (
	ErrBufferTooSmall   = errors.New("remote file larger than transfer buffer")
	ErrUnsupportedProto = errors.New("protocol not supported by this fetcher")
)

// Fetcher retrieves a whole remote file in a single blocking call.
type Fetcher interface {
	// Fetch reads the file name from server into buf and returns its length.
	Fetch(ctx context.Context, proto Proto, server netip.Addr, name string, buf []byte) (int, error)
	Close() error
}

// TFTPConfig configures the TFTP fetcher.
type TFTPConfig struct {
	Limiter *rate.Limiter // optional bandwidth cap
	Timeout time.Duration
	Port    int
	Retries int
}

// TFTP fetches files with TFTP read requests in octet mode.
type TFTP struct {
	cfg TFTPConfig
}

// Compile-time interface check.
var _ Fetcher = (*TFTP)(nil)

// NewTFTP returns a TFTP fetcher. Zero fields take the protocol defaults.
func NewTFTP(cfg TFTPConfig) *TFTP {
	if cfg.Port == 0 {
		cfg.Port = 69
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 5
	}
	return &TFTP{cfg: cfg}
}

func (c *TFTP) Fetch(ctx context.Context, proto Proto, server netip.Addr, name string, buf []byte) (int, error) {
	if proto != ProtoTFTP {
		return 0, fmt.Errorf("%s: %w", proto, ErrUnsupportedProto)
	}

	addr := net.JoinHostPort(server.String(), strconv.Itoa(c.cfg.Port))
	client, err := tftp.NewClient(addr)
	if err != nil {
		return 0, fmt.Errorf("tftp client %s: %w", addr, err)
	}
	client.SetTimeout(c.cfg.Timeout)
	client.SetRetries(c.cfg.Retries)

	slog.Debug("tftp fetch", "server", addr, "file", name)
	wt, err := client.Receive(name, "octet")
	if err != nil {
		return 0, fmt.Errorf("tftp get %s from %s: %w", name, addr, err)
	}

	dst := &bufferWriter{buf: buf}
	var w io.Writer = dst
	if c.cfg.Limiter != nil {
		w = newRateLimitedWriter(ctx, dst, c.cfg.Limiter)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return dst.n, fmt.Errorf("tftp get %s from %s: %w", name, addr, err)
	}
	return dst.n, nil
}

// Close is a no-op: each fetch uses its own client.
func (*TFTP) Close() error { return nil }

// bufferWriter fills a fixed buffer and fails once it would overflow.
type bufferWriter struct {
	buf []byte
	n   int
}

func (b *bufferWriter) Write(p []byte) (int, error) {
	if len(p) > len(b.buf)-b.n {
		return 0, ErrBufferTooSmall
	}
	copy(b.buf[b.n:], p)
	b.n += len(p)
	return len(p), nil
}

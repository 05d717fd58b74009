package netfetch

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewBWLimiter creates a rate.Limiter that caps fetch throughput to
// bytesPerSec. The burst is 64 KB, or the rate itself when slower, so a
// handful of TFTP blocks pass without blocking.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 64 << 10
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// rateLimitedWriter wraps an io.Writer and enforces a shared rate limit.
type rateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

func newRateLimitedWriter(ctx context.Context, w io.Writer, limiter *rate.Limiter) *rateLimitedWriter {
	return &rateLimitedWriter{w: w, limiter: limiter, ctx: ctx}
}

// Write waits for tokens in burst-sized steps, since WaitN rejects requests
// larger than the burst.
func (rw *rateLimitedWriter) Write(p []byte) (int, error) {
	var written int
	for len(p) > 0 {
		step := min(len(p), rw.limiter.Burst())
		if err := rw.limiter.WaitN(rw.ctx, step); err != nil {
			return written, err
		}
		n, err := rw.w.Write(p[:step])
		written += n
		if err != nil {
			return written, err
		}
		p = p[step:]
	}
	return written, nil
}

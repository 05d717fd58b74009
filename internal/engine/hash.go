package engine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// payloadDigest accumulates the BLAKE3 hash of the bytes a transfer moved.
type payloadDigest struct {
	h *blake3.Hasher
	n uint64
}

func newPayloadDigest() *payloadDigest {
	return &payloadDigest{h: blake3.New()}
}

func (d *payloadDigest) Write(p []byte) {
	d.h.Write(p) //nolint:errcheck // hash writes never fail
	d.n += uint64(len(p))
}

// String returns the hex digest, or "" when nothing was hashed.
func (d *payloadDigest) String() string {
	if d.n == 0 {
		return ""
	}
	return hex.EncodeToString(d.h.Sum(nil))
}

// HashFile computes the BLAKE3 hash of the file at path, returning the hex-encoded digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	digest := h.Sum(nil)
	return hex.EncodeToString(digest), nil
}

// HashBytes is HashFile for an in-memory payload.
func HashBytes(p []byte) string {
	sum := blake3.Sum256(p)
	return hex.EncodeToString(sum[:])
}

// Package secure verifies signed boot images. A signed image is the body
// followed by a trailer of Magic and an ed25519 signature over the BLAKE3
// digest of the body.
package secure

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Magic opens the signature trailer.
const Magic = "GLSIG001"

// TrailerLen is the size of the signature trailer.
const TrailerLen = len(Magic) + ed25519.SignatureSize

var (
	ErrNoSignature  = errors.New("image carries no signature trailer")
	ErrBadSignature = errors.New("signature verification failed")
	ErrNoKey        = errors.New("no verification key configured")
	ErrBadKey       = errors.New("malformed key")
)

// Digest returns the BLAKE3-256 digest that gets signed.
func Digest(body []byte) [32]byte {
	return blake3.Sum256(body)
}

// Sign appends a signature trailer for body.
func Sign(body []byte, key ed25519.PrivateKey) []byte {
	sum := Digest(body)
	out := make([]byte, 0, len(body)+TrailerLen)
	out = append(out, body...)
	out = append(out, Magic...)
	return append(out, ed25519.Sign(key, sum[:])...)
}

// Verify checks the trailer of image against pub and returns the body.
func Verify(image []byte, pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, ErrNoKey
	}
	if len(image) < TrailerLen {
		return nil, ErrNoSignature
	}
	body := image[:len(image)-TrailerLen]
	trailer := image[len(body):]
	if !bytes.Equal(trailer[:len(Magic)], []byte(Magic)) {
		return nil, ErrNoSignature
	}
	sum := Digest(body)
	if !ed25519.Verify(pub, sum[:], trailer[len(Magic):]) {
		return nil, ErrBadSignature
	}
	return body, nil
}

// ParsePublicKey decodes a hex-encoded ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("public key: %w: %w", ErrBadKey, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes: %w", len(b), ErrBadKey)
	}
	return ed25519.PublicKey(b), nil
}

// ParsePrivateKey decodes a hex-encoded 32-byte ed25519 seed.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("private key: %w: %w", ErrBadKey, err)
	}
	if len(b) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key seed is %d bytes: %w", len(b), ErrBadKey)
	}
	return ed25519.NewKeyFromSeed(b), nil
}

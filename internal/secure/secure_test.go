package secure

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	key, err := ParsePrivateKey(hex.EncodeToString(bytes.Repeat([]byte{7}, ed25519.SeedSize)))
	require.NoError(t, err)
	return key
}

func TestSignVerify(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	pub := key.Public().(ed25519.PublicKey)
	body := []byte("u-boot image body")

	img := Sign(body, key)
	assert.Len(t, img, len(body)+TrailerLen)

	got, err := Verify(img, pub)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestVerify_Failures(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	pub := key.Public().(ed25519.PublicKey)
	img := Sign([]byte("payload"), key)

	t.Run("tampered body", func(t *testing.T) {
		t.Parallel()
		bad := bytes.Clone(img)
		bad[0] ^= 1
		_, err := Verify(bad, pub)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("missing trailer", func(t *testing.T) {
		t.Parallel()
		_, err := Verify([]byte("payload"), pub)
		require.ErrorIs(t, err, ErrNoSignature)
	})

	t.Run("wrong magic", func(t *testing.T) {
		t.Parallel()
		bad := bytes.Clone(img)
		bad[len(bad)-TrailerLen] = 'X'
		_, err := Verify(bad, pub)
		require.ErrorIs(t, err, ErrNoSignature)
	})

	t.Run("no key", func(t *testing.T) {
		t.Parallel()
		_, err := Verify(img, nil)
		require.ErrorIs(t, err, ErrNoKey)
	})

	t.Run("other key", func(t *testing.T) {
		t.Parallel()
		other := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{9}, ed25519.SeedSize))
		_, err := Verify(img, other.Public().(ed25519.PublicKey))
		require.ErrorIs(t, err, ErrBadSignature)
	})
}

func TestParseKeys(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	pubHex := hex.EncodeToString(key.Public().(ed25519.PublicKey))

	pub, err := ParsePublicKey(" " + pubHex + "\n")
	require.NoError(t, err)
	assert.Equal(t, key.Public(), pub)

	_, err = ParsePublicKey("zz")
	require.ErrorIs(t, err, ErrBadKey)
	_, err = ParsePublicKey("abcd")
	require.ErrorIs(t, err, ErrBadKey)
	_, err = ParsePrivateKey(pubHex + "00")
	require.ErrorIs(t, err, ErrBadKey)
}

package flash

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  SimConfig
	}{
		{"zero erase", SimConfig{Size: 64, WriteSize: 4}},
		{"erase not multiple of write", SimConfig{Size: 60, EraseSize: 6, WriteSize: 4}},
		{"size not multiple of erase", SimConfig{Size: 40, EraseSize: 16, WriteSize: 4}},
		{"partition beyond end", SimConfig{Size: 64, EraseSize: 16, WriteSize: 4, Partitions: []Partition{{Offset: 48, Size: 32}}}},
		{"partition unaligned", SimConfig{Size: 64, EraseSize: 16, WriteSize: 4, Partitions: []Partition{{Offset: 8, Size: 16}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSim(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestSim_ErasedState(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, 2, nil)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 32), physical(t, s, 0, 32))

	_, err := s.Write(0, pattern(testErase))
	require.NoError(t, err)
	require.NoError(t, s.Erase(0))
	assert.Equal(t, bytes.Repeat([]byte{0xff}, testErase), physical(t, s, 0, testErase))
}

func TestSim_Errors(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, 2, func(c *SimConfig) { c.BadBlocks = []uint64{1} })

	_, err := s.Write(2, pattern(4))
	require.ErrorIs(t, err, ErrUnaligned)
	require.ErrorIs(t, s.Erase(8), ErrUnaligned)
	require.ErrorIs(t, s.Erase(32), ErrOutOfRange)
	require.ErrorIs(t, s.Erase(16), ErrBadBlock)
	_, err = s.Write(16, pattern(4))
	require.ErrorIs(t, err, ErrBadBlock)
	_, err = s.IsBad(64)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestSim_CloseIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, 2, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 2, s.Ops().Closes)

	_, err := s.Read(0, make([]byte, 4))
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpenImage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nor.img")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xff}, 64), 0o600))

	cfg := SimConfig{Name: "flash0", Size: 64, EraseSize: testErase, WriteSize: testWrite}
	s, err := OpenImage(cfg, path)
	require.NoError(t, err)

	_, err = NewDesc(s).Write(0, []byte("kernel"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("kernel"), raw[:6])
	assert.Equal(t, byte(0xff), raw[6])

	cfg.Size = 128
	_, err = OpenImage(cfg, path)
	require.Error(t, err, "size mismatch")
}

func TestParseMediaKind(t *testing.T) {
	t.Parallel()

	m, err := ParseMediaKind("NAND")
	require.NoError(t, err)
	assert.Equal(t, NAND, m)

	m, err = ParseMediaKind("")
	require.NoError(t, err)
	assert.Equal(t, NOR, m)
	assert.Equal(t, "nor", m.String())

	_, err = ParseMediaKind("emmc")
	require.Error(t, err)
}

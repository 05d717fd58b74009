package blockdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ReadWriteBlocks(t *testing.T) {
	t.Parallel()

	d := NewMemory("mmc0", 512, 8, nil)
	assert.Equal(t, PartUnknown, d.PartType())

	data := bytes.Repeat([]byte{0xab}, 1024)
	n, err := d.WriteBlocks(2, data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	back := make([]byte, 1024)
	n, err = d.ReadBlocks(2, back)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, data, back)

	n, err = d.ReadBlocks(7, make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "reads clamp at the device end")

	_, err = d.WriteBlocks(0, make([]byte, 100))
	require.Error(t, err)
}

func TestDisk_CloseIdempotent(t *testing.T) {
	t.Parallel()

	d := NewMemory("usb0", 512, 2, nil)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, err := d.ReadBlocks(0, make([]byte, 512))
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpenFile_ProbesMBR(t *testing.T) {
	t.Parallel()

	parts := []Partition{
		{FSType: "vfat", Start: 1, Blocks: 3},
		{FSType: "ext4", Start: 4, Blocks: 4},
	}
	sector, err := EncodeMBR(parts)
	require.NoError(t, err)

	img := make([]byte, 8*512)
	copy(img, sector)
	path := filepath.Join(t.TempDir(), "sd.img")
	require.NoError(t, os.WriteFile(path, img, 0o600))

	d, err := OpenFile("mmc0", path, 512, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, PartMBR, d.PartType())
	assert.Equal(t, uint64(8), d.Blocks())
	got := d.Partitions()
	require.Len(t, got, 2)
	assert.Equal(t, "vfat", got[0].FSType)
	assert.Equal(t, uint64(4), got[1].Start)
	assert.Equal(t, "ext4", got[1].FSType)
}

func TestDeclaredPartitions(t *testing.T) {
	t.Parallel()

	d := NewMemory("mmc1", 512, 8, []Partition{{Name: "boot", Start: 2, Blocks: 2}})
	assert.Equal(t, PartDeclared, d.PartType())
	assert.Equal(t, "declared", d.PartType().String())
}

func TestParseMBR_Rejects(t *testing.T) {
	t.Parallel()

	_, ok := ParseMBR(make([]byte, 512))
	assert.False(t, ok, "no boot signature")

	sector := make([]byte, 512)
	sector[510], sector[511] = 0x55, 0xaa
	_, ok = ParseMBR(sector)
	assert.False(t, ok, "no entries")

	_, err := EncodeMBR(make([]Partition, 5))
	require.Error(t, err)
}

func TestRange(t *testing.T) {
	t.Parallel()

	d := NewMemory("mmc0", 512, 8, []Partition{{Name: "p1", Start: 2, Blocks: 4}})

	_, err := NewRange(d, 2)
	require.ErrorIs(t, err, ErrNoPartition)

	whole, err := NewRange(d, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), whole.Size())

	r, err := NewRange(d, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), r.Base())
	assert.Equal(t, uint64(2048), r.Size())
	assert.Equal(t, uint64(1548), r.Available(500))

	data := bytes.Repeat([]byte{0x5a}, 700)
	n, err := r.Program(0, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), n)

	raw := make([]byte, 1024)
	_, err = d.ReadBlocks(2, raw)
	require.NoError(t, err)
	assert.Equal(t, data, raw[:700])
	assert.Equal(t, make([]byte, 324), raw[700:], "tail block zero padded")

	back := make([]byte, 700)
	got, err := r.ReadAt(back, 0)
	require.NoError(t, err)
	assert.Equal(t, 700, got)
	assert.Equal(t, data, back)

	n, err = r.Program(1536, bytes.Repeat([]byte{1}, 1024))
	require.NoError(t, err)
	assert.Equal(t, uint64(512), n, "clamped at the range end")

	_, err = r.Program(3, data)
	require.ErrorIs(t, err, ErrUnaligned)
	_, err = r.ReadAt(back, 3)
	require.ErrorIs(t, err, ErrUnaligned)
}

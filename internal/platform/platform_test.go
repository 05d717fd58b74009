package platform

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateImage_Zero(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mmc0.img")

	require.NoError(t, CreateImage(ImageParams{Path: path, Size: 64 << 10}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 64<<10)
	assert.Equal(t, make([]byte, 64<<10), data)
}

func TestCreateImage_ErasedFlash(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nor0.img")
	size := int64(fillChunk + 4096)

	require.NoError(t, CreateImage(ImageParams{Path: path, Size: size, Fill: 0xFF}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, int(size))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, int(size)), data)
}

func TestCreateImage_Exists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "img")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	err := CreateImage(ImageParams{Path: path, Size: 512})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	require.NoError(t, CreateImage(ImageParams{Path: path, Size: 512, Overwrite: true}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(512), info.Size())
}

func TestCreateImage_InvalidSize(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "img")

	require.Error(t, CreateImage(ImageParams{Path: path, Size: 0}))
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

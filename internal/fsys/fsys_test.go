package fsys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_MountAndProbe(t *testing.T) {
	t.Parallel()

	tbl := NewTable()
	tbl.Attach("mmc0", 1, MemVolume("ext4"))

	v, err := tbl.Mount("mmc0", 1)
	require.NoError(t, err)
	assert.Equal(t, "ext4", v.Type)

	typ, err := tbl.ProbeType("mmc0", 1)
	require.NoError(t, err)
	assert.Equal(t, "ext4", typ)

	_, err = tbl.Mount("mmc0", 2)
	require.ErrorIs(t, err, ErrNotMounted)
}

func TestWriteReadFile(t *testing.T) {
	t.Parallel()

	v := MemVolume("vfat")

	n, err := WriteFile(v, "/boot/uImage", 0, []byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, err = WriteFile(v, "/boot/uImage", 6, []byte("world"))
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err = ReadFile(v, "/boot/uImage", 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))

	n, err = ReadFile(v, "/boot/uImage", 6, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	n, err = ReadFile(v, "/boot/uImage", 11, buf)
	require.NoError(t, err)
	assert.Zero(t, n, "reading at EOF yields nothing")

	_, err = ReadFile(v, "/missing", 0, buf)
	require.Error(t, err)
}

func TestWriteFile_TruncatesAtZero(t *testing.T) {
	t.Parallel()

	v := MemVolume("ext4")
	_, err := WriteFile(v, "a.bin", 0, []byte("longer content"))
	require.NoError(t, err)
	_, err = WriteFile(v, "a.bin", 0, []byte("short"))
	require.NoError(t, err)

	got, err := afero.ReadFile(v.FS, "a.bin")
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

func TestHostVolume(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "update"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "update", "rootfs.img"), []byte("rootfs"), 0o600))

	v := HostVolume(root, "ext4")
	buf := make([]byte, 16)
	n, err := ReadFile(v, "/update/rootfs.img", 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "rootfs", string(buf[:n]))
}

func TestCheckType(t *testing.T) {
	t.Parallel()

	v := MemVolume("vfat")
	require.NoError(t, CheckType(v, ""))
	require.NoError(t, CheckType(v, "fat32"))
	require.ErrorIs(t, CheckType(v, "ext4"), ErrTypeMismatch)
	require.NoError(t, CheckType(MemVolume("ext4"), "ext2"))
}

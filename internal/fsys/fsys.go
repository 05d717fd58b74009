// Package fsys is the filesystem layer: path-based file access on a
// mounted block device partition.
//
// Each mounted partition is an afero.Fs. Host-backed volumes serve a
// directory tree as the partition's contents; memory volumes back tests.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"
)

var (
	ErrNotMounted   = errors.New("no filesystem on partition")
	ErrTypeMismatch = errors.New("filesystem type mismatch")
)

// Volume is a mounted filesystem and its type name ("ext4", "vfat").
type Volume struct {
	FS   afero.Fs
	Type string
}

// HostVolume serves the host directory root as a volume of type fstype.
func HostVolume(root, fstype string) Volume {
	return Volume{FS: afero.NewBasePathFs(afero.NewOsFs(), root), Type: fstype}
}

// MemVolume returns an empty in-memory volume of type fstype.
func MemVolume(fstype string) Volume {
	return Volume{FS: afero.NewMemMapFs(), Type: fstype}
}

type volumeKey struct {
	device string
	part   int
}

// Table maps (device, partition) pairs to mounted volumes.
type Table struct {
	mu   sync.RWMutex
	vols map[volumeKey]Volume
}

// NewTable returns an empty mount table.
func NewTable() *Table {
	return &Table{vols: make(map[volumeKey]Volume)}
}

// Attach mounts v as partition part of device.
func (t *Table) Attach(device string, part int, v Volume) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vols[volumeKey{device: device, part: part}] = v
}

// Mount returns the volume on partition part of device.
func (t *Table) Mount(device string, part int) (Volume, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vols[volumeKey{device: device, part: part}]
	if !ok {
		return Volume{}, fmt.Errorf("%s:%d: %w", device, part, ErrNotMounted)
	}
	return v, nil
}

// ProbeType returns the filesystem type name on partition part of device.
func (t *Table) ProbeType(device string, part int) (string, error) {
	v, err := t.Mount(device, part)
	if err != nil {
		return "", err
	}
	return v.Type, nil
}

// ReadFile reads up to len(p) bytes of name starting at off. Reading at or
// past the end of the file yields 0 bytes and no error.
func ReadFile(v Volume, name string, off uint64, p []byte) (int, error) {
	f, err := v.FS.Open(name)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", name, err)
	}
	if off >= uint64(info.Size()) { //nolint:gosec // G115: file sizes are non-negative
		return 0, nil
	}

	n, err := f.ReadAt(p, int64(off)) //nolint:gosec // G115: bounded by file size above
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("read %s: %w", name, err)
	}
	return n, nil
}

// WriteFile writes p to name at off, creating the file and its parent
// directories as needed. A write at offset 0 truncates the file.
func WriteFile(v Volume, name string, off uint64, p []byte) (int, error) {
	if err := v.FS.MkdirAll(path.Dir(name), 0o755); err != nil {
		return 0, fmt.Errorf("create parent of %s: %w", name, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if off == 0 {
		flags |= os.O_TRUNC
	}
	f, err := v.FS.OpenFile(name, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}

	n, err := f.WriteAt(p, int64(off)) //nolint:gosec // G115: transfer offsets fit in int64
	if err != nil {
		f.Close()
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", name, err)
	}
	return n, nil
}

// CheckType reports ErrTypeMismatch when want is set and differs from the
// volume's type. "fat", "fat32" and "vfat" are treated as one family.
func CheckType(v Volume, want string) error {
	if want == "" || family(want) == family(v.Type) {
		return nil
	}
	return fmt.Errorf("volume is %s, requested %s: %w", v.Type, want, ErrTypeMismatch)
}

func family(fstype string) string {
	switch fstype {
	case "fat", "fat32", "vfat":
		return "fat"
	case "ext2", "ext3", "ext4":
		return "ext"
	default:
		return fstype
	}
}

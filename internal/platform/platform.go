// Package platform creates the image files that back simulated block and
// flash devices.
package platform

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

const fillChunk = 1 << 20

// ImageParams describes an image file to create.
type ImageParams struct {
	Path string
	Size int64
	// Fill is the byte every position holds initially: 0x00 for block
	// media, 0xFF for erased flash.
	Fill byte
	// Overwrite replaces an existing file instead of failing.
	Overwrite bool
}

// CreateImage creates the file described by p with its full size
// preallocated where the filesystem supports it.
func CreateImage(p ImageParams) (err error) {
	if p.Size <= 0 {
		return fmt.Errorf("image %s: invalid size %d", p.Path, p.Size)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if p.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(p.Path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
		if err != nil {
			os.Remove(p.Path)
		}
	}()

	preallocate(f, p.Size)

	if p.Fill == 0 {
		if err := f.Truncate(p.Size); err != nil {
			return fmt.Errorf("size image %s: %w", p.Path, err)
		}
		return nil
	}

	chunk := bytes.Repeat([]byte{p.Fill}, int(min(p.Size, fillChunk)))
	for left := p.Size; left > 0; {
		n := min(left, int64(len(chunk)))
		if _, err := f.Write(chunk[:n]); err != nil {
			return fmt.Errorf("fill image %s: %w", p.Path, err)
		}
		left -= n
	}
	return nil
}

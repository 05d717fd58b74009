// Package flash models raw flash devices and the bad-block remapping layer
// that sits between the transfer engine and the physical device.
package flash

import (
	"errors"
	"fmt"
	"strings"
)

// MediaKind is the physical flash technology.
type MediaKind int

const (
	NOR MediaKind = iota + 1
	NAND
)

func (m MediaKind) String() string {
	switch m {
	case NOR:
		return "nor"
	case NAND:
		return "nand"
	default:
		return "unknown"
	}
}

// ParseMediaKind maps "nor"/"nand" (case-insensitive) to a MediaKind.
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(s) {
	case "nor", "":
		return NOR, nil
	case "nand":
		return NAND, nil
	default:
		return 0, fmt.Errorf("unknown flash media %q", s)
	}
}

var (
	ErrBadBlock    = errors.New("bad erase block")
	ErrOutOfRange  = errors.New("address beyond device end")
	ErrUnaligned   = errors.New("address not aligned")
	ErrEraseFailed = errors.New("erase failed")
	ErrClosed      = errors.New("device closed")
)

// Partition is a named region of a flash device, in bytes.
type Partition struct {
	Name   string
	Offset uint64
	Size   uint64
}

// Device is the raw-flash layer: erase-unit granular erase, read and write,
// bad-block query and mark, and a partition table.
type Device interface {
	Name() string
	Media() MediaKind

	Size() uint64
	EraseSize() uint64
	WriteSize() uint64

	// Erase erases the erase unit starting at addr.
	Erase(addr uint64) error
	Read(addr uint64, p []byte) (int, error)
	Write(addr uint64, p []byte) (int, error)

	IsBad(addr uint64) (bool, error)
	MarkBad(addr uint64) error

	// Partitions returns the partition table in declaration order.
	Partitions() []Partition

	Close() error
}

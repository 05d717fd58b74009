package blockdev

import (
	"encoding/binary"
	"fmt"
)

const (
	mbrSize        = 512
	mbrTableOffset = 446
	mbrEntrySize   = 16
	mbrEntries     = 4
)

// mbrTypeNames maps common MBR partition type bytes to filesystem names.
var mbrTypeNames = map[byte]string{
	0x01: "vfat",
	0x04: "vfat",
	0x06: "vfat",
	0x0b: "vfat",
	0x0c: "vfat",
	0x0e: "vfat",
	0x83: "ext4",
}

// ParseMBR decodes the primary partition table of a classic MBR sector.
// It reports false when the sector carries no boot signature or no
// non-empty entries.
func ParseMBR(sector []byte) ([]Partition, bool) {
	if len(sector) < mbrSize || sector[510] != 0x55 || sector[511] != 0xaa {
		return nil, false
	}
	var parts []Partition
	for i := range mbrEntries {
		e := sector[mbrTableOffset+i*mbrEntrySize : mbrTableOffset+(i+1)*mbrEntrySize]
		typ := e[4]
		start := binary.LittleEndian.Uint32(e[8:12])
		count := binary.LittleEndian.Uint32(e[12:16])
		if typ == 0 || count == 0 {
			continue
		}
		parts = append(parts, Partition{
			Name:   fmt.Sprintf("p%d", i+1),
			FSType: mbrTypeNames[typ],
			Start:  uint64(start),
			Blocks: uint64(count),
		})
	}
	return parts, len(parts) > 0
}

// EncodeMBR builds an MBR sector describing parts. FSType "vfat" is encoded
// as 0x0c, everything else as 0x83.
func EncodeMBR(parts []Partition) ([]byte, error) {
	if len(parts) > mbrEntries {
		return nil, fmt.Errorf("mbr holds at most %d partitions, got %d", mbrEntries, len(parts))
	}
	sector := make([]byte, mbrSize)
	for i, p := range parts {
		e := sector[mbrTableOffset+i*mbrEntrySize : mbrTableOffset+(i+1)*mbrEntrySize]
		e[4] = 0x83
		if p.FSType == "vfat" {
			e[4] = 0x0c
		}
		binary.LittleEndian.PutUint32(e[8:12], uint32(p.Start))  //nolint:gosec // G115: MBR is 32-bit LBA
		binary.LittleEndian.PutUint32(e[12:16], uint32(p.Blocks)) //nolint:gosec // G115: MBR is 32-bit LBA
	}
	sector[510] = 0x55
	sector[511] = 0xaa
	return sector, nil
}

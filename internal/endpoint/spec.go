package endpoint

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Kind is the class of storage or transport behind an endpoint.
type Kind int

const (
	Ram Kind = iota + 1
	Network
	Block
	RawFlash
)

var kindNames = map[Kind]string{
	Ram:      "ram",
	Network:  "network",
	Block:    "block",
	RawFlash: "rawflash",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Format is how the payload is addressed on an endpoint.
type Format int

const (
	RawBytes Format = iota
	FilesystemExt
	FilesystemFat
	NetworkTftp
	NetworkDhcp
)

var formatNames = map[Format]string{
	RawBytes:      "raw",
	FilesystemExt: "ext4",
	FilesystemFat: "vfat",
	NetworkTftp:   "tftp",
	NetworkDhcp:   "dhcp",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// IsFilesystem reports whether f addresses a file on a mounted volume.
func (f Format) IsFilesystem() bool { return f == FilesystemExt || f == FilesystemFat }

// IsNetwork reports whether f is a network retrieval protocol.
func (f Format) IsNetwork() bool { return f == NetworkTftp || f == NetworkDhcp }

// ParseFormat maps a --fmt value to a Format. The empty string and "raw"
// select raw byte access.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "raw":
		return RawBytes, nil
	case "tftp":
		return NetworkTftp, nil
	case "dhcp":
		return NetworkDhcp, nil
	case "ext4", "ext2", "ext3":
		return FilesystemExt, nil
	case "vfat", "fat32", "fat":
		return FilesystemFat, nil
	default:
		return 0, fmt.Errorf("fmt %q not supported", s)
	}
}

// Role is the side of a transfer an endpoint plays.
type Role int

const (
	Source Role = iota + 1
	Dest
)

func (r Role) String() string {
	switch r {
	case Source:
		return "source"
	case Dest:
		return "dest"
	default:
		return "unknown"
	}
}

// NoPartition marks a specifier without a ":P" suffix.
const NoPartition = -1

// Spec is a parsed device specifier.
type Spec struct {
	IP        netip.Addr // explicit server address for net specs
	Class     string     // "ram", "net", "mmc", "usb", "scsi" or "flash"
	Kind      Kind
	Index     int
	Partition int
	HasIndex  bool
}

// Name returns the device name without the partition, e.g. "mmc0".
func (s Spec) Name() string {
	switch s.Kind {
	case Ram, Network:
		return s.Class
	default:
		return s.Class + strconv.Itoa(s.Index)
	}
}

func (s Spec) String() string {
	switch {
	case s.Kind == Network && s.IP.IsValid():
		return "net:" + s.IP.String()
	case s.Partition != NoPartition:
		return s.Name() + ":" + strconv.Itoa(s.Partition)
	default:
		return s.Name()
	}
}

var blockClasses = map[string]Kind{
	"mmc":   Block,
	"usb":   Block,
	"scsi":  Block,
	"flash": RawFlash,
}

// ParseSpec parses ram, net[:ipv4] and CLASS[N[:P]] for the block and
// flash classes. A missing index selects device 0.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{Partition: NoPartition}

	if s == "ram" {
		spec.Class, spec.Kind = "ram", Ram
		return spec, nil
	}
	if rest, ok := strings.CutPrefix(s, "net"); ok {
		spec.Class, spec.Kind = "net", Network
		if rest == "" {
			return spec, nil
		}
		ip, ok := strings.CutPrefix(rest, ":")
		if !ok {
			return spec, newResolveError(s, ErrUnsupportedPrefix, nil)
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil || !addr.Is4() || addr.IsUnspecified() {
			return spec, newResolveError(s, ErrMalformedAddress, err)
		}
		spec.IP = addr
		return spec, nil
	}

	for class, kind := range blockClasses {
		rest, ok := strings.CutPrefix(s, class)
		if !ok {
			continue
		}
		spec.Class, spec.Kind = class, kind
		idx, part, hasPart := strings.Cut(rest, ":")
		if idx != "" {
			n, err := strconv.Atoi(idx)
			if err != nil || n < 0 {
				return spec, newResolveError(s, ErrUnsupportedPrefix, nil)
			}
			spec.Index, spec.HasIndex = n, true
		} else if hasPart {
			return spec, newResolveError(s, ErrUnsupportedPrefix, nil)
		}
		if hasPart {
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 {
				return spec, newResolveError(s, ErrUnsupportedPrefix, nil)
			}
			spec.Partition = n
		}
		return spec, nil
	}

	return spec, newResolveError(s, ErrUnsupportedPrefix, nil)
}

package endpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/bamsammich/gload/internal/blockdev"
	"github.com/bamsammich/gload/internal/flash"
	"github.com/bamsammich/gload/internal/fsys"
	"github.com/bamsammich/gload/internal/netfetch"
)

// BlockSlot is one configured block device. Open acquires a fresh handle.
type BlockSlot struct {
	Open func() (blockdev.Device, error)
	Name string
}

// FlashSlot is one configured raw flash device.
type FlashSlot struct {
	Open  func() (flash.Device, error)
	Name  string
	Media flash.MediaKind
}

// Registry turns device specifiers into endpoints. It holds the device
// table, the RAM region, the mount table and the network dialer.
type Registry struct {
	ram    *RAM
	fs     *fsys.Table
	dial   func() (netfetch.Fetcher, error)
	block  map[string][]BlockSlot
	flash  []FlashSlot
	server netip.Addr
	media  flash.MediaKind

	// OnUSBReset runs when inference asks for a usb bus reset.
	OnUSBReset func() error
}

// Options configures a Registry.
type Options struct {
	RAM      *RAM
	FS       *fsys.Table
	Dial     func() (netfetch.Fetcher, error)
	ServerIP netip.Addr
	// FlashMedia filters flash devices; zero selects NOR.
	FlashMedia flash.MediaKind
}

// NewRegistry returns a registry with no devices attached.
func NewRegistry(opts Options) *Registry {
	if opts.FS == nil {
		opts.FS = fsys.NewTable()
	}
	if opts.FlashMedia == 0 {
		opts.FlashMedia = flash.NOR
	}
	return &Registry{
		ram:    opts.RAM,
		fs:     opts.FS,
		dial:   opts.Dial,
		server: opts.ServerIP,
		media:  opts.FlashMedia,
		block:  make(map[string][]BlockSlot),
	}
}

// AddBlock appends a device of class ("mmc", "usb", "scsi"); its index is
// the number of devices of that class added before it.
func (r *Registry) AddBlock(class string, slot BlockSlot) {
	r.block[class] = append(r.block[class], slot)
}

// AddFlash appends a raw flash device.
func (r *Registry) AddFlash(slot FlashSlot) {
	r.flash = append(r.flash, slot)
}

// Mounts returns the mount table.
func (r *Registry) Mounts() *fsys.Table { return r.fs }

// Resolve parses spec and acquires the backend handle for it. The caller
// owns the returned endpoint and must Close it.
func (r *Registry) Resolve(spec string, role Role, t Target) (*Endpoint, error) {
	s, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, newResolveError(spec, ErrSymbolRequired, err)
	}

	ep := &Endpoint{
		Spec:      s,
		Role:      role,
		Kind:      s.Kind,
		Format:    t.Format,
		Symbol:    t.Symbol,
		Partition: s.Partition,
	}

	switch s.Kind {
	case Ram:
		err = r.resolveRAM(ep)
	case Network:
		err = r.resolveNet(ep)
	case Block:
		err = r.resolveBlock(ep)
	case RawFlash:
		err = r.resolveFlash(ep)
	default:
		err = ErrUnsupportedPrefix
	}
	if err != nil {
		var re *ResolveError
		if errors.As(err, &re) {
			re.Spec = spec
			return nil, re
		}
		return nil, newResolveError(spec, ErrUnsupportedPrefix, err)
	}

	slog.Debug("endpoint resolved", "spec", spec, "role", role, "kind", s.Kind, "format", t.Format)
	return ep, nil
}

func (r *Registry) resolveRAM(ep *Endpoint) error {
	if r.ram == nil {
		return newResolveError(ep.Spec.String(), ErrAllocationFailed, errors.New("no ram region"))
	}
	ep.ram = r.ram
	return nil
}

func (r *Registry) resolveNet(ep *Endpoint) error {
	server := ep.Spec.IP
	if !server.IsValid() {
		server = r.server
	}
	if !server.IsValid() || server.IsUnspecified() {
		return newResolveError(ep.Spec.String(), ErrMalformedAddress, fmt.Errorf("server ip %q", server))
	}
	if r.dial == nil {
		return newResolveError(ep.Spec.String(), ErrAllocationFailed, errors.New("no network backend"))
	}
	f, err := r.dial()
	if err != nil {
		return newResolveError(ep.Spec.String(), ErrAllocationFailed, err)
	}
	ep.Spec.IP = server
	ep.net = &Net{Fetcher: f, Server: server}
	ep.release = f.Close
	return nil
}

func (r *Registry) blockSlot(class string, idx int) (BlockSlot, bool) {
	slots := r.block[class]
	if idx < 0 || idx >= len(slots) {
		return BlockSlot{}, false
	}
	return slots[idx], true
}

func (r *Registry) resolveBlock(ep *Endpoint) error {
	spec := ep.Spec.String()
	slot, ok := r.blockSlot(ep.Spec.Class, ep.Spec.Index)
	if !ok {
		return newResolveError(spec, ErrDeviceNotFound, nil)
	}
	dev, err := slot.Open()
	if err != nil {
		return newResolveError(spec, ErrAllocationFailed, err)
	}

	fail := func(kind, err error) error {
		dev.Close()
		return newResolveError(spec, kind, err)
	}

	if ep.Format.IsFilesystem() {
		part := volumePart(dev, ep.Partition)
		vol, err := r.fs.Mount(ep.Name(), part)
		if err != nil {
			return fail(ErrDeviceNotFound, err)
		}
		if err := fsys.CheckType(vol, ep.Format.String()); err != nil {
			return fail(ErrAllocationFailed, err)
		}
		ep.volume = vol
	} else {
		part := ep.Partition
		if part == NoPartition {
			part = 0
		}
		rng, err := blockdev.NewRange(dev, part)
		if err != nil {
			return fail(ErrDeviceNotFound, err)
		}
		ep.rng = rng
	}

	ep.block = dev
	ep.release = dev.Close
	return nil
}

// volumePart picks the partition a filesystem lives on when the specifier
// names none: the first partition of a partitioned device, else the whole
// device.
func volumePart(dev blockdev.Device, part int) int {
	if part != NoPartition {
		return part
	}
	if len(dev.Partitions()) > 0 {
		return 1
	}
	return 0
}

func (r *Registry) flashSlots() []FlashSlot {
	var out []FlashSlot
	for _, s := range r.flash {
		if s.Media == r.media {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) resolveFlash(ep *Endpoint) error {
	spec := ep.Spec.String()
	slots := r.flashSlots()
	if ep.Spec.Index >= len(slots) {
		return newResolveError(spec, ErrDeviceNotFound, nil)
	}
	dev, err := slots[ep.Spec.Index].Open()
	if err != nil {
		return newResolveError(spec, ErrAllocationFailed, err)
	}
	d := flash.NewDesc(dev)
	ep.flash = d
	ep.release = dev.Close
	return nil
}

// ServerIP returns the configured boot server address, or "" when unset.
func (r *Registry) ServerIP() string {
	if !r.server.IsValid() {
		return ""
	}
	return r.server.String()
}

// ResetUSB reinitializes the usb bus before inference probes it.
func (r *Registry) ResetUSB() error {
	slog.Debug("usb reset")
	if r.OnUSBReset != nil {
		return r.OnUSBReset()
	}
	return nil
}

// BlockPartitioned reports whether block device class+idx exists and has
// a partition table.
func (r *Registry) BlockPartitioned(class string, idx int) (bool, error) {
	slot, ok := r.blockSlot(class, idx)
	if !ok {
		return false, newResolveError(fmt.Sprintf("%s%d", class, idx), ErrDeviceNotFound, nil)
	}
	dev, err := slot.Open()
	if err != nil {
		return false, newResolveError(slot.Name, ErrAllocationFailed, err)
	}
	defer dev.Close()
	return len(dev.Partitions()) > 0, nil
}

// ProbeFS returns the filesystem type mounted at the block specifier spec.
func (r *Registry) ProbeFS(spec string) (string, error) {
	s, err := ParseSpec(spec)
	if err != nil {
		return "", err
	}
	if s.Kind != Block {
		return "", newResolveError(spec, ErrUnsupportedPrefix, errors.New("not a block device"))
	}
	slot, ok := r.blockSlot(s.Class, s.Index)
	if !ok {
		return "", newResolveError(spec, ErrDeviceNotFound, nil)
	}
	dev, err := slot.Open()
	if err != nil {
		return "", newResolveError(spec, ErrAllocationFailed, err)
	}
	part := volumePart(dev, s.Partition)
	dev.Close()
	return r.fs.ProbeType(s.Name(), part)
}

// DeviceInfo describes one entry of the device table.
type DeviceInfo struct {
	Err        error
	Name       string
	Kind       Kind
	Media      string
	PartType   string
	Partitions []PartitionInfo
	Size       uint64
	Unit       uint64 // block size or erase size
}

// PartitionInfo is one partition of a listed device.
type PartitionInfo struct {
	Name   string
	FSType string
	Offset uint64
	Size   uint64
}

// Devices opens every configured device and describes it.
func (r *Registry) Devices() []DeviceInfo {
	var out []DeviceInfo
	for _, class := range []string{"mmc", "scsi", "usb"} {
		for i, slot := range r.block[class] {
			info := DeviceInfo{Name: fmt.Sprintf("%s%d", class, i), Kind: Block}
			dev, err := slot.Open()
			if err != nil {
				info.Err = err
				out = append(out, info)
				continue
			}
			bs := uint64(dev.BlockSize()) //nolint:gosec // G115: block sizes are positive
			info.Size = dev.Blocks() * bs
			info.Unit = bs
			info.PartType = dev.PartType().String()
			for j, p := range dev.Partitions() {
				fstype := p.FSType
				if t, err := r.fs.ProbeType(info.Name, j+1); err == nil {
					fstype = t
				}
				info.Partitions = append(info.Partitions, PartitionInfo{
					Name: p.Name, FSType: fstype, Offset: p.Start * bs, Size: p.Blocks * bs,
				})
			}
			dev.Close()
			out = append(out, info)
		}
	}
	for i, slot := range r.flashSlots() {
		info := DeviceInfo{Name: fmt.Sprintf("flash%d", i), Kind: RawFlash, Media: slot.Media.String()}
		dev, err := slot.Open()
		if err != nil {
			info.Err = err
			out = append(out, info)
			continue
		}
		info.Size = dev.Size()
		info.Unit = dev.EraseSize()
		info.PartType = "declared"
		for _, p := range dev.Partitions() {
			info.Partitions = append(info.Partitions, PartitionInfo{Name: p.Name, Offset: p.Offset, Size: p.Size})
		}
		dev.Close()
		out = append(out, info)
	}
	return out
}

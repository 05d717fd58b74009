package endpoint

import (
	"context"
	"errors"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/gload/internal/blockdev"
	"github.com/bamsammich/gload/internal/flash"
	"github.com/bamsammich/gload/internal/fsys"
	"github.com/bamsammich/gload/internal/netfetch"
)

// countedBlock shares one device across opens and counts releases.
type countedBlock struct {
	blockdev.Device
	closes *atomic.Int32
}

func (c countedBlock) Close() error {
	c.closes.Add(1)
	return nil
}

type countedFlash struct {
	flash.Device
	closes *atomic.Int32
}

func (c countedFlash) Close() error {
	c.closes.Add(1)
	return nil
}

type fakeFetcher struct {
	closes *atomic.Int32
}

func (fakeFetcher) Fetch(context.Context, netfetch.Proto, netip.Addr, string, []byte) (int, error) {
	return 0, nil
}

func (f fakeFetcher) Close() error {
	f.closes.Add(1)
	return nil
}

type fixture struct {
	reg         *Registry
	blockCloses atomic.Int32
	flashCloses atomic.Int32
	netCloses   atomic.Int32
	opens       atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	tbl := fsys.NewTable()
	tbl.Attach("mmc0", 1, fsys.MemVolume("ext4"))
	tbl.Attach("usb0", 1, fsys.MemVolume("vfat"))

	f.reg = NewRegistry(Options{
		RAM:      NewRAM(1 << 20),
		FS:       tbl,
		ServerIP: netip.MustParseAddr("192.168.1.2"),
		Dial: func() (netfetch.Fetcher, error) {
			return fakeFetcher{closes: &f.netCloses}, nil
		},
	})

	mmc := blockdev.NewMemory("mmc0", 512, 64, []blockdev.Partition{{Name: "rootfs", Start: 8, Blocks: 56}})
	f.reg.AddBlock("mmc", BlockSlot{Name: "mmc0", Open: func() (blockdev.Device, error) {
		f.opens.Add(1)
		return countedBlock{Device: mmc, closes: &f.blockCloses}, nil
	}})
	usb := blockdev.NewMemory("usb0", 512, 16, []blockdev.Partition{{Name: "data", Start: 1, Blocks: 15}})
	f.reg.AddBlock("usb", BlockSlot{Name: "usb0", Open: func() (blockdev.Device, error) {
		f.opens.Add(1)
		return countedBlock{Device: usb, closes: &f.blockCloses}, nil
	}})
	f.reg.AddBlock("usb", BlockSlot{Name: "usb1", Open: func() (blockdev.Device, error) {
		return nil, errors.New("no medium")
	}})

	nand, err := flash.NewSim(flash.SimConfig{Name: "nand0", Media: flash.NAND, Size: 4096, EraseSize: 512, WriteSize: 64})
	require.NoError(t, err)
	nor, err := flash.NewSim(flash.SimConfig{
		Name: "nor0", Media: flash.NOR, Size: 4096, EraseSize: 512, WriteSize: 4,
		Partitions: []flash.Partition{{Name: "u-boot", Offset: 0, Size: 1024}},
	})
	require.NoError(t, err)
	f.reg.AddFlash(FlashSlot{Name: "nand0", Media: flash.NAND, Open: func() (flash.Device, error) {
		return countedFlash{Device: nand, closes: &f.flashCloses}, nil
	}})
	f.reg.AddFlash(FlashSlot{Name: "nor0", Media: flash.NOR, Open: func() (flash.Device, error) {
		return countedFlash{Device: nor, closes: &f.flashCloses}, nil
	}})
	return f
}

func TestResolve_ReleasesExactlyOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		spec   string
		target Target
		closes func(*fixture) int32
	}{
		{"block raw", "mmc0:1", Target{}, func(f *fixture) int32 { return f.blockCloses.Load() }},
		{"block fs", "mmc0:1", Target{Format: FilesystemExt, Symbol: "/boot/uImage"}, func(f *fixture) int32 { return f.blockCloses.Load() }},
		{"flash", "flash0:1", Target{}, func(f *fixture) int32 { return f.flashCloses.Load() }},
		{"net", "net", Target{Format: NetworkTftp, Symbol: "uImage"}, func(f *fixture) int32 { return f.netCloses.Load() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ep, err := f.reg.Resolve(tt.spec, Source, tt.target)
			require.NoError(t, err)

			require.NoError(t, ep.Close())
			require.NoError(t, ep.Close())
			assert.Equal(t, int32(1), tt.closes(f))
		})
	}
}

func TestResolve_RAM(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ep, err := f.reg.Resolve("ram", Dest, Target{})
	require.NoError(t, err)
	defer ep.Close()

	assert.Equal(t, Ram, ep.Kind)
	assert.NotNil(t, ep.RAM())
	assert.Equal(t, NoPartition, ep.Partition)

	_, err = NewRegistry(Options{}).Resolve("ram", Dest, Target{})
	require.ErrorIs(t, err, ErrAllocationFailed)
}

func TestResolve_NetServerIP(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ep, err := f.reg.Resolve("net", Source, Target{Format: NetworkTftp, Symbol: "uImage"})
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.2", ep.Net().Server.String())
	require.NoError(t, ep.Close())

	ep, err = f.reg.Resolve("net:10.0.0.7", Source, Target{Format: NetworkTftp, Symbol: "uImage"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", ep.Net().Server.String())
	require.NoError(t, ep.Close())

	_, err = f.reg.Resolve("net:0.0.0.0", Source, Target{Format: NetworkTftp, Symbol: "uImage"})
	require.ErrorIs(t, err, ErrMalformedAddress)

	noServer := NewRegistry(Options{Dial: func() (netfetch.Fetcher, error) { return fakeFetcher{}, nil }})
	_, err = noServer.Resolve("net", Source, Target{Format: NetworkTftp, Symbol: "uImage"})
	require.ErrorIs(t, err, ErrMalformedAddress)
	assert.Equal(t, int32(2), f.netCloses.Load(), "each resolved fetcher is closed once")
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		spec   string
		target Target
		want   error
	}{
		{"unknown prefix", "sata0", Target{}, ErrUnsupportedPrefix},
		{"garbage index", "mmcx", Target{}, ErrUnsupportedPrefix},
		{"device out of range", "mmc3", Target{}, ErrDeviceNotFound},
		{"missing partition", "mmc0:4", Target{}, ErrDeviceNotFound},
		{"no filesystem", "mmc0:1", Target{Format: FilesystemFat, Symbol: "a"}, ErrAllocationFailed},
		{"unmounted partition", "usb0:2", Target{Format: FilesystemFat, Symbol: "a"}, ErrDeviceNotFound},
		{"open failure", "usb1", Target{}, ErrAllocationFailed},
		{"flash out of range", "flash1", Target{}, ErrDeviceNotFound},
		{"bad ip", "net:300.1.1.1", Target{}, ErrMalformedAddress},
		{"symbol required", "usb0:1", Target{Format: FilesystemFat}, ErrSymbolRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			_, err := f.reg.Resolve(tt.spec, Source, tt.target)
			require.ErrorIs(t, err, tt.want)

			var re *ResolveError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.spec, re.Spec)
			assert.Equal(t, f.opens.Load(), f.blockCloses.Load(), "failed resolves release what they opened")
		})
	}
}

func TestResolve_FlashMediaFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ep, err := f.reg.Resolve("flash0", Dest, Target{})
	require.NoError(t, err)
	defer ep.Close()
	assert.Equal(t, "nor0", ep.Flash().Device().Name(), "nand is filtered out by default")
	assert.Equal(t, 0, ep.FlashPartition())

	nandReg := NewRegistry(Options{FlashMedia: flash.NAND})
	nandReg.flash = f.reg.flash
	ep2, err := nandReg.Resolve("flash0", Dest, Target{})
	require.NoError(t, err)
	defer ep2.Close()
	assert.Equal(t, "nand0", ep2.Flash().Device().Name())
}

func TestResolve_FilesystemDefaultsToFirstPartition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ep, err := f.reg.Resolve("mmc0", Dest, Target{Format: FilesystemExt, Symbol: "/boot/uImage"})
	require.NoError(t, err)
	defer ep.Close()
	assert.Equal(t, "ext4", ep.Volume().Type)
}

func TestProber(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.Equal(t, "192.168.1.2", f.reg.ServerIP())
	assert.Empty(t, NewRegistry(Options{}).ServerIP())

	var resets int
	f.reg.OnUSBReset = func() error { resets++; return nil }
	require.NoError(t, f.reg.ResetUSB())
	assert.Equal(t, 1, resets)

	ok, err := f.reg.BlockPartitioned("usb", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.reg.BlockPartitioned("mmc", 5)
	require.ErrorIs(t, err, ErrDeviceNotFound)

	typ, err := f.reg.ProbeFS("usb0:1")
	require.NoError(t, err)
	assert.Equal(t, "vfat", typ)

	typ, err = f.reg.ProbeFS("mmc0")
	require.NoError(t, err)
	assert.Equal(t, "ext4", typ)

	_, err = f.reg.ProbeFS("flash0")
	require.ErrorIs(t, err, ErrUnsupportedPrefix)
}

func TestDevices(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	devs := f.reg.Devices()
	require.Len(t, devs, 4)

	assert.Equal(t, "mmc0", devs[0].Name)
	assert.Equal(t, uint64(64*512), devs[0].Size)
	require.Len(t, devs[0].Partitions, 1)
	assert.Equal(t, "ext4", devs[0].Partitions[0].FSType)
	assert.Equal(t, uint64(8*512), devs[0].Partitions[0].Offset)

	assert.Equal(t, "usb1", devs[2].Name)
	require.Error(t, devs[2].Err)

	assert.Equal(t, "flash0", devs[3].Name)
	assert.Equal(t, "nor", devs[3].Media)
	assert.Equal(t, uint64(512), devs[3].Unit)
}

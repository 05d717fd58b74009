package main

import (
	"fmt"

	"github.com/bamsammich/gload/internal/blockdev"
	"github.com/bamsammich/gload/internal/config"
	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/engine"
	"github.com/bamsammich/gload/internal/flash"
	"github.com/bamsammich/gload/internal/fsys"
	"github.com/bamsammich/gload/internal/netfetch"
)

const defaultBlockSize = 512

// buildRegistry registers the devices of cfg. Block and image-backed flash
// devices are reopened on every resolve; memory-only flash lives for the
// process.
func buildRegistry(cfg config.Config) (*endpoint.Registry, error) {
	server, err := cfg.Net.ServerAddr()
	if err != nil {
		return nil, err
	}
	ramSize, err := cfg.Transfer.BufferBytes()
	if err != nil {
		return nil, err
	}
	if ramSize == 0 {
		ramSize = engine.DefaultBufferSize
	}
	media, err := cfg.Media()
	if err != nil {
		return nil, err
	}
	dial, err := tftpDialer(cfg.Net)
	if err != nil {
		return nil, err
	}

	mounts := fsys.NewTable()
	reg := endpoint.NewRegistry(endpoint.Options{
		RAM:        endpoint.NewRAM(ramSize),
		FS:         mounts,
		Dial:       dial,
		ServerIP:   server,
		FlashMedia: media,
	})

	classCount := make(map[string]int)
	for _, b := range cfg.Block {
		name := fmt.Sprintf("%s%d", b.Class, classCount[b.Class])
		classCount[b.Class]++

		bs := b.BlockSize
		if bs == 0 {
			bs = defaultBlockSize
		}
		var parts []blockdev.Partition
		for j, p := range b.Partitions {
			parts = append(parts, blockdev.Partition{Name: p.Name, FSType: p.FSType, Start: p.Start, Blocks: p.Blocks})
			if p.Root != "" {
				mounts.Attach(name, j+1, fsys.HostVolume(p.Root, p.FSType))
			}
		}
		image := b.Image
		reg.AddBlock(b.Class, endpoint.BlockSlot{
			Name: name,
			Open: func() (blockdev.Device, error) { return blockdev.OpenFile(name, image, bs, parts) },
		})
	}

	for i, f := range cfg.Flash {
		sc, err := f.SimConfig()
		if err != nil {
			return nil, fmt.Errorf("flash[%d]: %w", i, err)
		}
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("flash%d", i)
		}
		slot := endpoint.FlashSlot{Name: sc.Name, Media: sc.Media}
		if f.Image != "" {
			image := f.Image
			slot.Open = func() (flash.Device, error) { return flash.OpenImage(sc, image) }
		} else {
			sim, err := flash.NewSim(sc)
			if err != nil {
				return nil, fmt.Errorf("flash[%d]: %w", i, err)
			}
			slot.Open = func() (flash.Device, error) { return keepOpen{sim}, nil }
		}
		reg.AddFlash(slot)
	}
	return reg, nil
}

// keepOpen shields a process-lifetime device from endpoint release.
type keepOpen struct {
	flash.Device
}

func (keepOpen) Close() error { return nil }

func tftpDialer(n config.NetConfig) (func() (netfetch.Fetcher, error), error) {
	timeout, err := n.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	bw, err := n.BWLimitBytes()
	if err != nil {
		return nil, err
	}
	tc := netfetch.TFTPConfig{Timeout: timeout, Port: n.Port, Retries: n.Retries}
	return func() (netfetch.Fetcher, error) {
		c := tc
		if bw > 0 {
			c.Limiter = netfetch.NewBWLimiter(bw)
		}
		return netfetch.NewTFTP(c), nil
	}, nil
}

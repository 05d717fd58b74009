// Package endpoint resolves device specifiers ("ram", "net:10.0.0.1",
// "mmc0:1", "flash0") into typed endpoints that own their backend handle.
package endpoint

import (
	"net/netip"
	"sync"

	"github.com/bamsammich/gload/internal/blockdev"
	"github.com/bamsammich/gload/internal/flash"
	"github.com/bamsammich/gload/internal/fsys"
	"github.com/bamsammich/gload/internal/netfetch"
)

// Target is the format and symbol requested for one side of a transfer.
type Target struct {
	Spec   string
	Symbol string
	Format Format
}

// Validate checks that filesystem and network formats carry a symbol.
func (t Target) Validate() error {
	if (t.Format.IsFilesystem() || t.Format.IsNetwork()) && t.Symbol == "" {
		return ErrSymbolRequired
	}
	return nil
}

// Net is a resolved network endpoint.
type Net struct {
	Fetcher netfetch.Fetcher
	Server  netip.Addr
}

// Endpoint is one resolved side of a transfer. It owns its backend handle
// until Close.
type Endpoint struct {
	ram    *RAM
	net    *Net
	block  blockdev.Device
	rng    *blockdev.Range
	volume fsys.Volume
	flash  *flash.Desc

	release  func() error
	closeErr error

	Spec      Spec
	Symbol    string
	Role      Role
	Kind      Kind
	Format    Format
	Partition int

	once sync.Once
}

func (e *Endpoint) RAM() *RAM              { return e.ram }
func (e *Endpoint) Net() *Net              { return e.net }
func (e *Endpoint) Block() blockdev.Device { return e.block }
func (e *Endpoint) Range() *blockdev.Range { return e.rng }
func (e *Endpoint) Volume() fsys.Volume    { return e.volume }
func (e *Endpoint) Flash() *flash.Desc     { return e.flash }
func (e *Endpoint) Name() string           { return e.Spec.Name() }

// FlashPartition is the partition index used for flash queries; a
// specifier without one addresses the whole device.
func (e *Endpoint) FlashPartition() int {
	if e.Partition == NoPartition {
		return 0
	}
	return e.Partition
}

// Close releases the backend handle. Only the first call does any work.
func (e *Endpoint) Close() error {
	e.once.Do(func() {
		if e.release != nil {
			e.closeErr = e.release()
		}
	})
	return e.closeErr
}

func (e *Endpoint) String() string {
	s := e.Spec.String()
	if e.Format != RawBytes {
		s += " (" + e.Format.String()
		if e.Symbol != "" {
			s += " " + e.Symbol
		}
		s += ")"
	}
	return s
}

// Package config loads the optional gload configuration file: the inference
// defaults, the device table, network settings and transfer tuning.
package config

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/gload/internal/args"
	"github.com/bamsammich/gload/internal/flash"
	"github.com/bamsammich/gload/internal/secure"
)

// Config represents the gload configuration file.
type Config struct {
	// FlashMedia selects which flash devices the flashN prefix enumerates.
	FlashMedia string `toml:"flash_media"`

	Defaults args.Defaults `toml:"defaults"`
	Net      NetConfig      `toml:"net"`
	Transfer TransferConfig `toml:"transfer"`
	Block    []BlockConfig  `toml:"block"`
	Flash    []FlashConfig  `toml:"flash"`
}

// NetConfig configures the boot server client.
type NetConfig struct {
	ServerIP string `toml:"server_ip"`
	Timeout  string `toml:"timeout"`
	BWLimit  string `toml:"bwlimit"`
	Port     int    `toml:"port"`
	Retries  int    `toml:"retries"`
}

// TransferConfig tunes the copy loop.
type TransferConfig struct {
	Buffer           string `toml:"buffer"`
	DecompressBuffer string `toml:"decompress_buffer"`
	PublicKey        string `toml:"public_key"`
	Verify           bool   `toml:"verify"`
}

// BlockConfig is one block device backed by an image file.
type BlockConfig struct {
	Class      string            `toml:"class"`
	Image      string            `toml:"image"`
	Partitions []BlockPartConfig `toml:"partition"`
	BlockSize  int               `toml:"block_size"`
}

// BlockPartConfig declares a partition. Root, when set, is the host
// directory served as the partition's filesystem.
type BlockPartConfig struct {
	Name   string `toml:"name"`
	FSType string `toml:"fstype"`
	Root   string `toml:"root"`
	Start  uint64 `toml:"start"`
	Blocks uint64 `toml:"blocks"`
}

// FlashConfig is one raw flash device. An empty Image keeps the device in
// memory for the life of the process.
type FlashConfig struct {
	Name       string            `toml:"name"`
	Media      string            `toml:"media"`
	Image      string            `toml:"image"`
	Size       string            `toml:"size"`
	EraseSize  string            `toml:"erase_size"`
	WriteSize  string            `toml:"write_size"`
	BadBlocks  []uint64          `toml:"bad_blocks"`
	Partitions []FlashPartConfig `toml:"partition"`
}

// FlashPartConfig is a named byte range of a flash device.
type FlashPartConfig struct {
	Name   string `toml:"name"`
	Offset string `toml:"offset"`
	Size   string `toml:"size"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Defaults: args.DefaultDefaults(),
		Net:      NetConfig{Port: 69, Timeout: "5s", Retries: 5},
		Transfer: TransferConfig{Buffer: "16M", DecompressBuffer: "1M"},
	}
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "gload", "config.toml")
}

// Load reads the config file from the XDG path. Returns Default (no error)
// if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path over the defaults. Keys absent
// from the file keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the device table and every size and address field.
func (c Config) Validate() error {
	if _, err := c.Media(); err != nil {
		return err
	}
	if _, err := c.Net.ServerAddr(); err != nil {
		return err
	}
	if _, err := c.Net.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Net.BWLimitBytes(); err != nil {
		return err
	}
	if _, err := c.Transfer.BufferBytes(); err != nil {
		return err
	}
	if _, err := c.Transfer.DecompressBytes(); err != nil {
		return err
	}
	if _, err := c.Transfer.Key(); err != nil {
		return err
	}
	for i, b := range c.Block {
		switch b.Class {
		case "mmc", "usb", "scsi":
		default:
			return fmt.Errorf("block[%d]: unknown class %q", i, b.Class)
		}
		if b.Image == "" {
			return fmt.Errorf("block[%d]: image is required", i)
		}
	}
	for i, f := range c.Flash {
		if _, err := f.SimConfig(); err != nil {
			return fmt.Errorf("flash[%d]: %w", i, err)
		}
	}
	return nil
}

// Media parses FlashMedia; empty selects NOR.
func (c Config) Media() (flash.MediaKind, error) {
	if c.FlashMedia == "" {
		return flash.NOR, nil
	}
	m, err := flash.ParseMediaKind(c.FlashMedia)
	if err != nil {
		return 0, fmt.Errorf("flash_media: %w", err)
	}
	return m, nil
}

// ServerAddr parses ServerIP. An empty value returns the zero Addr.
func (n NetConfig) ServerAddr() (netip.Addr, error) {
	if n.ServerIP == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(n.ServerIP)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("net.server_ip: invalid IPv4 address %q", n.ServerIP)
	}
	return addr, nil
}

// TimeoutDuration parses Timeout; empty means zero.
func (n NetConfig) TimeoutDuration() (time.Duration, error) {
	if n.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return 0, fmt.Errorf("net.timeout: %w", err)
	}
	return d, nil
}

// BWLimitBytes parses BWLimit in bytes per second; empty means unlimited.
func (n NetConfig) BWLimitBytes() (int64, error) {
	return optionalSize("net.bwlimit", n.BWLimit)
}

// BufferBytes parses the working buffer size.
func (t TransferConfig) BufferBytes() (uint64, error) {
	n, err := optionalSize("transfer.buffer", t.Buffer)
	return uint64(n), err //nolint:gosec // G115: sizes are non-negative
}

// DecompressBytes parses the decompression staging buffer size.
func (t TransferConfig) DecompressBytes() (uint64, error) {
	n, err := optionalSize("transfer.decompress_buffer", t.DecompressBuffer)
	return uint64(n), err //nolint:gosec // G115: sizes are non-negative
}

// Key decodes PublicKey. An empty value returns a nil key.
func (t TransferConfig) Key() (ed25519.PublicKey, error) {
	if t.PublicKey == "" {
		return nil, nil
	}
	key, err := secure.ParsePublicKey(t.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("transfer.public_key: %w", err)
	}
	return key, nil
}

// SimConfig converts the entry into flash device geometry.
func (f FlashConfig) SimConfig() (flash.SimConfig, error) {
	media := flash.NOR
	if f.Media != "" {
		m, err := flash.ParseMediaKind(f.Media)
		if err != nil {
			return flash.SimConfig{}, err
		}
		media = m
	}

	var sizes [3]int64
	for i, field := range []struct{ name, val string }{
		{"size", f.Size},
		{"erase_size", f.EraseSize},
		{"write_size", f.WriteSize},
	} {
		n, err := optionalSize(field.name, field.val)
		if err != nil {
			return flash.SimConfig{}, err
		}
		sizes[i] = n
	}
	if sizes[2] == 0 {
		sizes[2] = 1
	}

	cfg := flash.SimConfig{
		Name:      f.Name,
		Media:     media,
		Size:      uint64(sizes[0]), //nolint:gosec // G115: sizes are non-negative
		EraseSize: uint64(sizes[1]), //nolint:gosec // G115: sizes are non-negative
		WriteSize: uint64(sizes[2]), //nolint:gosec // G115: sizes are non-negative
		BadBlocks: f.BadBlocks,
	}
	for _, p := range f.Partitions {
		off, err := optionalSize("partition.offset", p.Offset)
		if err != nil {
			return flash.SimConfig{}, err
		}
		size, err := optionalSize("partition.size", p.Size)
		if err != nil {
			return flash.SimConfig{}, err
		}
		cfg.Partitions = append(cfg.Partitions, flash.Partition{
			Name:   p.Name,
			Offset: uint64(off),  //nolint:gosec // G115: sizes are non-negative
			Size:   uint64(size), //nolint:gosec // G115: sizes are non-negative
		})
	}
	if err := cfg.Validate(); err != nil {
		return flash.SimConfig{}, err
	}
	return cfg, nil
}

func optionalSize(field, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: negative size %q", field, s)
	}
	return n, nil
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/gload/internal/args"
	"github.com/bamsammich/gload/internal/config"
	"github.com/bamsammich/gload/internal/flash"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "gload")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	path := filepath.Join(configDir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, args.DefaultDefaults(), cfg.Defaults)
	assert.Empty(t, cfg.Block)
	assert.Empty(t, cfg.Flash)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
flash_media = "nand"

[defaults]
net_proto = "tftp"
boot_device = "flash0:2"
kernel_markers = ["zImage"]

[net]
server_ip = "10.0.0.2"
port = 6969
timeout = "2s"
retries = 3
bwlimit = "1M"

[transfer]
buffer = "4M"
decompress_buffer = "256K"
public_key = "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
verify = true

[[block]]
class = "mmc"
image = "/var/lib/gload/mmc0.img"
block_size = 512

[[block.partition]]
name = "boot"
start = 2048
blocks = 65536
fstype = "vfat"
root = "/srv/boot"

[[flash]]
name = "nor0"
media = "nor"
size = "1M"
erase_size = "64K"
write_size = "256"
bad_blocks = [3]

[[flash.partition]]
name = "u-boot"
offset = "0"
size = "0x40000"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "flash0:2", cfg.Defaults.BootDevice)
	assert.Equal(t, []string{"zImage"}, cfg.Defaults.KernelMarkers)
	// Unset keys keep their defaults.
	assert.Equal(t, "/boot/", cfg.Defaults.KernelPrefix)
	assert.Equal(t, []string{"rootfs"}, cfg.Defaults.RootfsMarkers)

	addr, err := cfg.Net.ServerAddr()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", addr.String())
	assert.Equal(t, 6969, cfg.Net.Port)
	timeout, err := cfg.Net.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, timeout)
	bw, err := cfg.Net.BWLimitBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), bw)

	buf, err := cfg.Transfer.BufferBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(4<<20), buf)
	dbuf, err := cfg.Transfer.DecompressBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(256<<10), dbuf)
	key, err := cfg.Transfer.Key()
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.True(t, cfg.Transfer.Verify)

	require.Len(t, cfg.Block, 1)
	assert.Equal(t, "mmc", cfg.Block[0].Class)
	require.Len(t, cfg.Block[0].Partitions, 1)
	assert.Equal(t, "/srv/boot", cfg.Block[0].Partitions[0].Root)
	assert.Equal(t, uint64(2048), cfg.Block[0].Partitions[0].Start)

	require.Len(t, cfg.Flash, 1)
	media, err := cfg.Media()
	require.NoError(t, err)
	assert.Equal(t, flash.NAND, media)

	sim, err := cfg.Flash[0].SimConfig()
	require.NoError(t, err)
	assert.Equal(t, flash.NOR, sim.Media)
	assert.Equal(t, uint64(1<<20), sim.Size)
	assert.Equal(t, uint64(64<<10), sim.EraseSize)
	assert.Equal(t, uint64(256), sim.WriteSize)
	assert.Equal(t, []uint64{3}, sim.BadBlocks)
	assert.Equal(t, []flash.Partition{{Name: "u-boot", Offset: 0, Size: 256 << 10}}, sim.Partitions)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[transfer]
buffer = "1M"
`)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "1M", cfg.Transfer.Buffer)
	assert.Equal(t, "1M", cfg.Transfer.DecompressBuffer)
	assert.Equal(t, 69, cfg.Net.Port)
	assert.Equal(t, args.DefaultDefaults(), cfg.Defaults)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, `[defaults
broken`)

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"flash media kind", "flash_media = \"tape\"\n", "flash_media"},
		{"server ip", "[net]\nserver_ip = \"10.0.0\"\n", "net.server_ip"},
		{"ipv6 server", "[net]\nserver_ip = \"::1\"\n", "net.server_ip"},
		{"timeout", "[net]\ntimeout = \"soon\"\n", "net.timeout"},
		{"bwlimit", "[net]\nbwlimit = \"fast\"\n", "net.bwlimit"},
		{"buffer", "[transfer]\nbuffer = \"-1M\"\n", "transfer.buffer"},
		{"key", "[transfer]\npublic_key = \"abcd\"\n", "transfer.public_key"},
		{"block class", "[[block]]\nclass = \"sd\"\nimage = \"x\"\n", "unknown class"},
		{"block image", "[[block]]\nclass = \"usb\"\n", "image is required"},
		{"flash media", "[[flash]]\nname = \"f\"\nmedia = \"tape\"\nsize = \"64K\"\nerase_size = \"4K\"\n", "flash[0]"},
		{"flash geometry", "[[flash]]\nname = \"f\"\nsize = \"5K\"\nerase_size = \"4K\"\n", "not a multiple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := config.LoadFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestFlashConfig_DefaultsToNOR(t *testing.T) {
	t.Parallel()
	sim, err := config.FlashConfig{Name: "nor0", Size: "64K", EraseSize: "4K"}.SimConfig()
	require.NoError(t, err)
	assert.Equal(t, flash.NOR, sim.Media)
	assert.Equal(t, uint64(1), sim.WriteSize)
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/gload/config.toml", config.Path())
}

func TestPath_FallbackHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "gload", "config.toml"), config.Path())
}

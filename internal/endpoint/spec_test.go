package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		kind      Kind
		class     string
		index     int
		partition int
		str       string
	}{
		{"ram", Ram, "ram", 0, NoPartition, "ram"},
		{"net", Network, "net", 0, NoPartition, "net"},
		{"net:10.1.2.3", Network, "net", 0, NoPartition, "net:10.1.2.3"},
		{"mmc", Block, "mmc", 0, NoPartition, "mmc0"},
		{"mmc1", Block, "mmc", 1, NoPartition, "mmc1"},
		{"mmc0:1", Block, "mmc", 0, 1, "mmc0:1"},
		{"usb0:0", Block, "usb", 0, 0, "usb0:0"},
		{"scsi0", Block, "scsi", 0, NoPartition, "scsi0"},
		{"flash0:1", RawFlash, "flash", 0, 1, "flash0:1"},
		{"flash12", RawFlash, "flash", 12, NoPartition, "flash12"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			s, err := ParseSpec(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, s.Kind)
			assert.Equal(t, tt.class, s.Class)
			assert.Equal(t, tt.index, s.Index)
			assert.Equal(t, tt.partition, s.Partition)
			assert.Equal(t, tt.str, s.String())
		})
	}
}

func TestParseSpec_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want error
	}{
		{"", ErrUnsupportedPrefix},
		{"rams", ErrUnsupportedPrefix},
		{"nand0", ErrUnsupportedPrefix},
		{"mmc:1", ErrUnsupportedPrefix},
		{"mmc0:", ErrUnsupportedPrefix},
		{"mmc-1", ErrUnsupportedPrefix},
		{"usb0:x", ErrUnsupportedPrefix},
		{"netx", ErrUnsupportedPrefix},
		{"net:", ErrMalformedAddress},
		{"net:0.0.0.0", ErrMalformedAddress},
		{"net:fe80::1", ErrMalformedAddress},
		{"net:example", ErrMalformedAddress},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSpec(tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{
		"":      RawBytes,
		"raw":   RawBytes,
		"tftp":  NetworkTftp,
		"dhcp":  NetworkDhcp,
		"ext4":  FilesystemExt,
		"vfat":  FilesystemFat,
		"fat32": FilesystemFat,
		"fat":   FilesystemFat,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("squashfs")
	require.Error(t, err)
}

func TestTargetValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Target{}.Validate())
	require.NoError(t, Target{Format: NetworkTftp, Symbol: "uImage"}.Validate())
	require.ErrorIs(t, Target{Format: NetworkDhcp}.Validate(), ErrSymbolRequired)
	require.ErrorIs(t, Target{Format: FilesystemExt}.Validate(), ErrSymbolRequired)
}

func TestRAM(t *testing.T) {
	t.Parallel()

	r := NewRAM(8)
	n, err := r.Replace([]byte("kernel"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n)

	buf := make([]byte, 4)
	assert.Equal(t, uint64(4), r.ReadAt(buf, 2))
	assert.Equal(t, "rnel", string(buf))
	assert.Zero(t, r.ReadAt(buf, 6))

	_, err = r.Replace(make([]byte, 9))
	require.ErrorIs(t, err, ErrRAMFull)
	assert.Equal(t, "kernel", string(r.Bytes()), "failed replace keeps contents")

	r.Reset()
	_, err = r.Program(4, []byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 'a', 'b'}, r.Bytes())
	assert.Equal(t, uint64(2), r.Available(6))
	_, err = r.Program(7, []byte("ab"))
	require.ErrorIs(t, err, ErrRAMFull)
}

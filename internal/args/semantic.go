package args

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bamsammich/gload/internal/endpoint"
)

// Defaults is the inference table used to complete short-hand invocations.
type Defaults struct {
	NetProto     string `toml:"net_proto"`
	BlkPrefix    string `toml:"blk_prefix"`
	BootDevice   string `toml:"boot_device"`
	RootDevice   string `toml:"root_device"`
	KernelDevice string `toml:"kernel_device"`
	KernelFSType string `toml:"kernel_fstype"`
	KernelPrefix string `toml:"kernel_prefix"`

	KernelMarkers     []string `toml:"kernel_markers"`
	RootfsMarkers     []string `toml:"rootfs_markers"`
	BootloaderMarkers []string `toml:"bootloader_markers"`
}

// DefaultDefaults returns the built-in inference table.
func DefaultDefaults() Defaults {
	return Defaults{
		NetProto:          "tftp",
		BlkPrefix:         "/update/",
		BootDevice:        "flash0:1",
		RootDevice:        "mmc0",
		KernelDevice:      "mmc0",
		KernelFSType:      "ext4",
		KernelPrefix:      "/boot/",
		KernelMarkers:     []string{"uImage", "vmlinuz"},
		RootfsMarkers:     []string{"rootfs"},
		BootloaderMarkers: []string{"u-boot"},
	}
}

// Prober answers the device questions inference needs.
type Prober interface {
	ServerIP() string
	ResetUSB() error
	BlockPartitioned(class string, idx int) (bool, error)
	ProbeFS(spec string) (string, error)
}

// Env is the context inference runs in.
type Env struct {
	Prober   Prober
	Defaults Defaults
}

// SemanticError is an invocation whose missing fields could not be inferred.
type SemanticError struct {
	Err    error
	Reason string
}

func (e *SemanticError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("semantic error: %s: %v", e.Reason, e.Err)
	}
	return "semantic error: " + e.Reason
}

func (e *SemanticError) Unwrap() error { return e.Err }

type payload int

const (
	payloadNone payload = iota
	payloadKernel
	payloadRootfs
	payloadBootloader
)

func (p payload) String() string {
	switch p {
	case payloadKernel:
		return "kernel"
	case payloadRootfs:
		return "rootfs"
	case payloadBootloader:
		return "bootloader"
	default:
		return "none"
	}
}

// classify matches base against the marker lists; the longest matching
// marker wins.
func (d Defaults) classify(base string) payload {
	best, bestLen := payloadNone, 0
	try := func(p payload, markers []string) {
		for _, m := range markers {
			if m != "" && len(m) > bestLen && strings.HasPrefix(base, m) {
				best, bestLen = p, len(m)
			}
		}
	}
	try(payloadKernel, d.KernelMarkers)
	try(payloadRootfs, d.RootfsMarkers)
	try(payloadBootloader, d.BootloaderMarkers)
	return best
}

func basename(sym string) string {
	if i := strings.LastIndexByte(sym, '/'); i >= 0 {
		return sym[i+1:]
	}
	return sym
}

// Infer completes res in place from the source symbol. It does nothing in
// force mode or when the symbol carries no recognized marker.
func Infer(res *Result, env Env) error {
	if res.Force {
		return nil
	}
	if res.Source.Sym == "" {
		return &SemanticError{Reason: "source symbol must not be empty"}
	}

	d := env.Defaults
	base := basename(res.Source.Sym)
	kind := d.classify(base)
	slog.Debug("inference", "symbol", base, "payload", kind)

	switch kind {
	case payloadKernel:
		pinned := &res.Dest
		if res.Source.Device == "" || res.Source.Device == d.KernelDevice {
			pinned = &res.Source
			res.Dest.Device = "ram"
		} else if err := external(&res.Source, base, env); err != nil {
			return err
		}
		*pinned = Record{Device: d.KernelDevice, Fmt: d.KernelFSType, Sym: d.KernelPrefix + base}

	case payloadRootfs, payloadBootloader:
		res.Dest = Record{Device: d.RootDevice}
		if kind == payloadBootloader {
			res.Dest.Device = d.BootDevice
		}
		if err := external(&res.Source, base, env); err != nil {
			return err
		}
	}
	return nil
}

// external fills in an external source record by device class.
func external(rec *Record, base string, env Env) error {
	if env.Prober == nil {
		return &SemanticError{Reason: "no device prober for " + rec.Device}
	}
	d := env.Defaults

	switch {
	case strings.HasPrefix(rec.Device, "net"):
		if rec.Device == "net" {
			ip := env.Prober.ServerIP()
			if ip == "" {
				return &SemanticError{Reason: "no server ip configured"}
			}
			rec.Device = "net:" + ip
		}
		if rec.Fmt == "" {
			rec.Fmt = d.NetProto
		}
		return nil

	case strings.HasPrefix(rec.Device, "usb"):
		if rec.Device == "usb" {
			if err := env.Prober.ResetUSB(); err != nil {
				return &SemanticError{Reason: "usb reset", Err: err}
			}
			parted, err := env.Prober.BlockPartitioned("usb", 0)
			if err != nil {
				return &SemanticError{Reason: "usb device not found", Err: err}
			}
			rec.Device = "usb0"
			if parted {
				rec.Device = "usb0:1"
			}
		}

	case strings.HasPrefix(rec.Device, "mmc"):
		// A bare "mmc" is left for the device table; only the partition of
		// an explicit mmcN is filled in.
		if idx, ok := strings.CutPrefix(rec.Device, "mmc"); ok && idx != "" && !strings.Contains(idx, ":") {
			n, err := strconv.Atoi(idx)
			if err != nil {
				return &SemanticError{Reason: "bad mmc index " + idx, Err: err}
			}
			parted, err := env.Prober.BlockPartitioned("mmc", n)
			if err != nil {
				return &SemanticError{Reason: "mmc device not found", Err: err}
			}
			if parted {
				rec.Device += ":1"
			}
		}

	default:
		return &SemanticError{Reason: fmt.Sprintf("external device %q unknown", rec.Device)}
	}

	if rec.Fmt == "" {
		fstype, err := env.Prober.ProbeFS(rec.Device)
		if err != nil {
			return &SemanticError{Reason: "probe filesystem on " + rec.Device, Err: err}
		}
		rec.Fmt = fstype
	}
	rec.Sym = d.BlkPrefix + base
	return nil
}

// Parse runs the syntax state machine and then inference.
func Parse(tokens []string, env Env) (Result, error) {
	res, err := Syntax(tokens)
	if err != nil {
		return res, err
	}
	if err := Infer(&res, env); err != nil {
		return res, err
	}
	return res, nil
}

// Target converts the record into a resolvable target.
func (r Record) Target() (endpoint.Target, error) {
	f, err := endpoint.ParseFormat(r.Fmt)
	if err != nil {
		return endpoint.Target{}, &SemanticError{Reason: "device " + r.Device, Err: err}
	}
	if r.Device == "" {
		return endpoint.Target{}, &SemanticError{Reason: "device not set", Err: errors.New("missing --if/--of")}
	}
	return endpoint.Target{Spec: r.Device, Format: f, Symbol: r.Sym}, nil
}

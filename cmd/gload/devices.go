package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bamsammich/gload/internal/config"
	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/engine"
	"github.com/bamsammich/gload/internal/ui"
)

func newDevicesCmd(g *globalFlags) *cobra.Command {
	var digest bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the configured block and flash devices",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			closeLog, err := setupLogging(g)
			if err != nil {
				return err
			}
			defer closeLog()

			cfg, err := loadConfig(g)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			reg, err := buildRegistry(cfg)
			if err != nil {
				return &exitError{code: 2, err: err}
			}

			var images map[string]string
			if digest {
				images = imagePaths(cfg)
			}
			printDevices(stdout(g), reg.Devices(), images)
			return nil
		},
	}
	cmd.Flags().BoolVar(&digest, "digest", false, "print the BLAKE3 digest of each backing image")
	return cmd
}

// imagePaths maps device names to their backing image files, named the way
// the registry names them.
func imagePaths(cfg config.Config) map[string]string {
	out := make(map[string]string)
	classCount := make(map[string]int)
	for _, b := range cfg.Block {
		out[fmt.Sprintf("%s%d", b.Class, classCount[b.Class])] = b.Image
		classCount[b.Class]++
	}
	media, _ := cfg.Media() //nolint:errcheck // validated on load
	n := 0
	for _, f := range cfg.Flash {
		sc, err := f.SimConfig()
		if err != nil || sc.Media != media {
			continue
		}
		if f.Image != "" {
			out[fmt.Sprintf("flash%d", n)] = f.Image
		}
		n++
	}
	return out
}

func printDevices(w io.Writer, devs []endpoint.DeviceInfo, images map[string]string) {
	if len(devs) == 0 {
		fmt.Fprintln(w, "no devices configured")
		return
	}
	for _, d := range devs {
		if d.Err != nil {
			fmt.Fprintf(w, "%-8s %-6s error: %v\n", d.Name, d.Kind, d.Err)
			continue
		}
		kind := d.Kind.String()
		if d.Media != "" {
			kind = d.Media
		}
		fmt.Fprintf(w, "%-8s %-6s %10s  unit %-8s %s\n",
			d.Name, kind, ui.FormatBytes(d.Size), ui.FormatBytes(d.Unit), d.PartType)
		for i, p := range d.Partitions {
			fstype := p.FSType
			if fstype == "" {
				fstype = "-"
			}
			fmt.Fprintf(w, "  %d  %-12s %-6s %s  %10s\n",
				i+1, p.Name, fstype, ui.FormatAddr(p.Offset), ui.FormatBytes(p.Size))
		}
		if path, ok := images[d.Name]; ok && path != "" {
			sum, err := engine.HashFile(path)
			if err != nil {
				slog.Warn("digest failed", "device", d.Name, "error", err)
				continue
			}
			fmt.Fprintf(w, "  blake3 %s\n", sum)
		}
	}
}

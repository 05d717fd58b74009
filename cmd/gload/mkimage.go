package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bamsammich/gload/internal/config"
	"github.com/bamsammich/gload/internal/platform"
	"github.com/bamsammich/gload/internal/ui"
)

func newMkimageCmd(g *globalFlags) *cobra.Command {
	var (
		size      string
		flashFill bool
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "mkimage --size SIZE FILE",
		Short: "Create a preallocated device image file",
		Long: `Mkimage creates an image file to back a [[block]] or [[flash]] device.

Block images are zero-filled. With --flash the image is filled with 0xFF,
the erased state of flash memory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, argv []string) error {
			closeLog, err := setupLogging(g)
			if err != nil {
				return err
			}
			defer closeLog()

			n, err := config.ParseSize(size)
			if err != nil {
				return &exitError{code: 2, err: fmt.Errorf("invalid --size: %w", err)}
			}
			p := platform.ImageParams{Path: argv[0], Size: n, Overwrite: overwrite}
			if flashFill {
				p.Fill = 0xFF
			}
			if err := platform.CreateImage(p); err != nil {
				return &exitError{code: 1, err: err}
			}
			//nolint:gosec // G115: CreateImage rejects non-positive sizes
			fmt.Fprintf(stdout(g), "%s  %s\n", argv[0], ui.FormatBytes(uint64(n)))
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "image size (e.g. 64M, 0x400000)")
	cmd.Flags().BoolVar(&flashFill, "flash", false, "fill with 0xFF (erased flash)")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")
	if err := cmd.MarkFlagRequired("size"); err != nil {
		panic(fmt.Sprintf("mark flag required: %v", err))
	}
	return cmd
}

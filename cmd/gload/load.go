package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/gload/internal/args"
	"github.com/bamsammich/gload/internal/config"
	"github.com/bamsammich/gload/internal/endpoint"
	"github.com/bamsammich/gload/internal/engine"
	"github.com/bamsammich/gload/internal/event"
	"github.com/bamsammich/gload/internal/secure"
	"github.com/bamsammich/gload/internal/stats"
	"github.com/bamsammich/gload/internal/ui"
	"github.com/bamsammich/gload/internal/ui/tui"
)

type loadFlags struct {
	bufferSize string
	verify     bool
	noProgress bool
	tui        bool
}

func newLoadCmd(g *globalFlags) *cobra.Command {
	var lf loadFlags
	cmd := &cobra.Command{
		Use:   "load [flags] --if DEV [--fmt F] [--sym S] --of DEV [--fmt F] [--sym S] [--decompress] [--securecheck] [--force]",
		Short: "Load a payload from one device and burn it to another",
		Long: `Load reads the payload named by --if and writes it to the device named by --of.

Devices: ram, net[:IPv4], mmcN[:P], usbN[:P], flashN[:P].
Formats: raw, ext4, vfat, tftp, dhcp.

Short-hand invocations such as "load --sym uImage" are completed from the
[defaults] table of the config file unless --force is given. Flags must
precede the first load token.`,
		// Load tokens are ordered and positional; they are interpreted by the
		// args package, not pflag.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, argv []string) error {
			tokens, err := parseLeadingFlags(cmd, argv)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			if help, _ := cmd.Flags().GetBool("help"); help { //nolint:errcheck // help flag always exists
				return cmd.Help()
			}
			return runLoad(g, &lf, tokens)
		},
	}
	cmd.Flags().StringVar(&lf.bufferSize, "buffer", "", "working buffer size (e.g. 16M); overrides [transfer].buffer")
	cmd.Flags().BoolVar(&lf.verify, "verify", false, "read the destination back and compare digests (BLAKE3)")
	cmd.Flags().BoolVar(&lf.noProgress, "no-progress", false, "disable progress display")
	cmd.Flags().BoolVar(&lf.tui, "tui", false, "full-screen view with chunk feed and bad-block table")
	return cmd
}

// parseLeadingFlags parses the cobra flags that precede the first load
// token and returns the tokens.
func parseLeadingFlags(cmd *cobra.Command, argv []string) ([]string, error) {
	i := slices.IndexFunc(argv, args.IsOption)
	if i < 0 {
		i = len(argv)
	}
	fs := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	fs.SetOutput(cmd.ErrOrStderr())
	fs.AddFlagSet(cmd.Flags())
	fs.AddFlagSet(cmd.InheritedFlags())
	if err := fs.Parse(argv[:i]); err != nil {
		return nil, err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected argument %q before load options", extra[0])
	}
	return argv[i:], nil
}

//nolint:revive // cognitive-complexity: the load command wires every layer together
func runLoad(g *globalFlags, lf *loadFlags, tokens []string) error {
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

	res, err := args.Parse(tokens, args.Env{Prober: reg, Defaults: cfg.Defaults})
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	slog.Debug("interpreted", "source", res.Source, "dest", res.Dest, "extras", res.Extras, "force", res.Force)
	if !g.quiet {
		fmt.Fprintln(os.Stderr, res)
	}
	src, err := res.Source.Target()
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("source: %w", err)}
	}
	dst, err := res.Dest.Target()
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("dest: %w", err)}
	}

	opts, err := transferOptions(cfg.Transfer, lf)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	// Set up context with signal handling. Cancellation also interrupts
	// the decompression writer between chunks.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	opts.Stats = collector
	opts.Events = events

	presenterEvents := (<-chan event.Event)(events)
	if g.logFile != "" {
		presenterEvents = teeEvents(events)
	}

	route := src.Spec + " -> " + dst.Spec
	isTTY := ui.IsTTY(os.Stderr)
	var presenter ui.Presenter
	if lf.tui && isTTY && !g.quiet {
		presenter = tui.NewPresenter(tui.Config{
			Stats:  collector,
			Route:  route,
			Extras: res.Extras,
			Cancel: stop,
		})
	} else {
		if lf.tui && !isTTY {
			slog.Warn("--tui requires a terminal, falling back to inline output")
		}
		presenter = ui.NewPresenter(ui.Config{
			Writer:     os.Stdout,
			ErrWriter:  os.Stderr,
			Stats:      collector,
			Route:      route,
			Extras:     res.Extras,
			IsTTY:      isTTY,
			Quiet:      g.quiet,
			NoProgress: lf.noProgress,
		})
	}

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	result := engine.Transfer(ctx, reg, src, dst, res.Extras, opts)
	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}

	if summary := presenter.Summary(); summary != "" {
		fmt.Fprintln(os.Stderr, summary)
	}

	if result.Err != nil {
		slog.Error("load failed", "transfer", result.ID, "error", result.Err)
		return &exitError{code: exitCode(result.Err)}
	}
	slog.Info("load complete", "transfer", result.ID, "bytes", result.Bytes, "blake3", result.Digest)
	return nil
}

func transferOptions(tc config.TransferConfig, lf *loadFlags) (engine.Options, error) {
	if lf.bufferSize != "" {
		tc.Buffer = lf.bufferSize
	}
	buf, err := tc.BufferBytes()
	if err != nil {
		return engine.Options{}, err
	}
	dbuf, err := tc.DecompressBytes()
	if err != nil {
		return engine.Options{}, err
	}
	key, err := tc.Key()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		BufferSize:       buf,
		DecompressBuffer: dbuf,
		PublicKey:        key,
		Verify:           tc.Verify || lf.verify,
	}, nil
}

// teeEvents writes a structured record for every event before forwarding
// it to the presenter.
func teeEvents(events <-chan event.Event) <-chan event.Event {
	teed := make(chan event.Event, 256)
	go func() {
		for ev := range events {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("transfer", ev.Transfer),
				slog.Uint64("offset", ev.Offset),
				slog.Uint64("size", ev.Size),
			}
			if ev.Type == event.BadBlock {
				attrs = append(attrs, slog.Uint64("addr", ev.Addr), slog.Bool("marked", ev.Marked))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			slog.LogAttrs(context.Background(), slog.LevelDebug, "gload.event", attrs...)
			teed <- ev
		}
		close(teed)
	}()
	return teed
}

// exitCode maps invocation errors detected before any I/O to 2 and
// transfer failures to 1.
func exitCode(err error) int {
	var (
		parseErr       *args.ParseError
		semanticErr    *args.SemanticError
		resolveErr     *endpoint.ResolveError
		unsupportedErr *engine.UnsupportedEndpointError
	)
	switch {
	case errors.As(err, &parseErr),
		errors.As(err, &semanticErr),
		errors.As(err, &resolveErr),
		errors.As(err, &unsupportedErr),
		errors.Is(err, secure.ErrNoKey):
		return 2
	default:
		return 1
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/gload/internal/config"
	"github.com/bamsammich/gload/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logFile    string
	verbose    bool
	quiet      bool
}

func run() int {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "gload",
		Short:         "Load firmware images from ram, network, block or flash and burn them to another device",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		StringVar(&g.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/gload/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log", "", "write structured JSON log to FILE")

	rootCmd.AddCommand(newLoadCmd(&g))
	rootCmd.AddCommand(newDevicesCmd(&g))
	rootCmd.AddCommand(newMkimageCmd(&g))
	rootCmd.AddCommand(newSignCmd(&g))
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// setupLogging installs the default slog logger: text on stderr at a level
// chosen by --verbose/--quiet, plus a JSON debug log when --log is set. The
// returned func closes the log file.
func setupLogging(g *globalFlags) (func(), error) {
	logLevel := slog.LevelWarn
	if g.verbose {
		logLevel = slog.LevelDebug
	} else if !g.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	closeLog := func() {}
	if g.logFile != "" {
		lf, err := os.Create(g.logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closeLog = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeLog, nil
}

// loadConfig reads --config when given, else the XDG config file.
func loadConfig(g *globalFlags) (config.Config, error) {
	if g.configPath != "" {
		if _, err := os.Stat(g.configPath); err != nil {
			return config.Config{}, fmt.Errorf("config: %w", err)
		}
		return config.LoadFile(g.configPath)
	}
	return config.Load()
}

// stdout is where command results go; quiet mode discards it.
func stdout(g *globalFlags) io.Writer {
	if g.quiet {
		return io.Discard
	}
	return os.Stdout
}

type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

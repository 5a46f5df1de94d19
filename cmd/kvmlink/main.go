package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chronologos/kvmlink/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	var gf globalFlags

	rootCmd := &cobra.Command{
		Use:   "kvmlink",
		Short: "Share one keyboard and mouse across computers",
		Long: `kvmlink forwards keyboard, mouse and clipboard events from a primary
computer to secondary computers over the Barrier/Synergy protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&gf.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&gf.logFormat, "log-format", "", "auto, text or json")

	rootCmd.AddCommand(
		primaryCmd(&gf),
		secondaryCmd(&gf),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kvmlink: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies the global flags.
// Callers apply their own flags and then Validate.
func (gf *globalFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if gf.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(gf.configPath); err != nil {
			return nil, err
		}
	}
	if gf.logLevel != "" {
		cfg.Log.Level = gf.logLevel
	}
	if gf.logFormat != "" {
		cfg.Log.Format = gf.logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger. "auto" picks a text handler when w
// is a terminal and JSON otherwise.
func newLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	format := c.Format
	if format == "auto" || format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

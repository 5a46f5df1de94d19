package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chronologos/kvmlink/internal/client"
	"github.com/chronologos/kvmlink/internal/clipboard"
	"github.com/chronologos/kvmlink/internal/config"
	"github.com/chronologos/kvmlink/internal/input"
	"github.com/chronologos/kvmlink/internal/session"
	"github.com/chronologos/kvmlink/internal/transport"
	"github.com/chronologos/kvmlink/internal/version"
)

func secondaryCmd(gf *globalFlags) *cobra.Command {
	var (
		server       string
		name         string
		mode         string
		fingerprints []string
	)

	cmd := &cobra.Command{
		Use:   "secondary",
		Short: "Receive keyboard and mouse from a primary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.Secondary.Server = server
			}
			if flags.Changed("name") {
				cfg.Secondary.Name = name
			}
			if flags.Changed("transport") {
				cfg.Secondary.Transport = mode
			}
			if flags.Changed("trust") {
				cfg.Secondary.TrustedFingerprints = fingerprints
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = runSecondary(ctx, cfg, newLogger(os.Stderr, cfg.Log))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&server, "server", "s", "", "primary address host:port")
	flags.StringVarP(&name, "name", "n", "", "screen name (default hostname)")
	flags.StringVarP(&mode, "transport", "t", "", "tcp, tls or quic")
	flags.StringSliceVar(&fingerprints, "trust", nil, "trusted primary certificate fingerprint (repeatable)")
	return cmd
}

func runSecondary(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	s := cfg.Secondary
	mode, err := transport.ParseMode(s.Transport)
	if err != nil {
		return err
	}

	screen := s.Screen
	c := client.New(client.Config{
		Server: s.Server,
		Transport: transport.Config{
			Mode:                mode,
			TrustedFingerprints: s.TrustedFingerprints,
		},
		ReconnectDelay: s.ReconnectDelay.Std(),
		Logger:         log,
		Session: session.Config{
			Name:                 s.Name,
			KeepAliveRate:        s.KeepAlive.Rate.Std(),
			KeepAlivesUntilDeath: s.KeepAlive.UntilDeath,
			HandshakeTimeout:     s.HandshakeTimeout.Std(),
			Input:                input.NewLogger(log, slog.LevelInfo),
			Clipboard:            clipboard.NewMemory(),
			ScreenInfo: func() session.ClientInfo {
				return session.ClientInfo{
					X: screen.X, Y: screen.Y,
					W: screen.Width, H: screen.Height,
					MouseX: screen.X + int16(screen.Width/2),
					MouseY: screen.Y + int16(screen.Height/2),
				}
			},
		},
	})
	log.Info("starting secondary", "version", version.String(), "name", s.Name, "server", s.Server, "transport", mode.String())
	return c.Run(ctx)
}

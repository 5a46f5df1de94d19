package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronologos/kvmlink/internal/config"
	"github.com/chronologos/kvmlink/internal/metrics"
	"github.com/chronologos/kvmlink/internal/server"
	"github.com/chronologos/kvmlink/internal/session"
	"github.com/chronologos/kvmlink/internal/transport"
	"github.com/chronologos/kvmlink/internal/version"
)

func primaryCmd(gf *globalFlags) *cobra.Command {
	var (
		listen     string
		mode       string
		screens    []string
		statusAddr string
	)

	cmd := &cobra.Command{
		Use:   "primary",
		Short: "Share this computer's keyboard and mouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Primary.Listen = listen
			}
			if flags.Changed("transport") {
				cfg.Primary.Transport = mode
			}
			if flags.Changed("screen") {
				cfg.Primary.Screens = screens
			}
			if flags.Changed("status-addr") {
				cfg.Primary.StatusAddr = statusAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPrimary(ctx, cfg, newLogger(os.Stderr, cfg.Log))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&listen, "listen", "l", "", "listen address (default :24800)")
	flags.StringVarP(&mode, "transport", "t", "", "tcp, tls, quic or dual")
	flags.StringSliceVar(&screens, "screen", nil, "allowed screen name (repeatable)")
	flags.StringVar(&statusAddr, "status-addr", "", "status HTTP address, empty to disable")
	return cmd
}

func runPrimary(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	p := cfg.Primary
	mode, err := transport.ParseMode(p.Transport)
	if err != nil {
		return err
	}

	tcfg := transport.Config{Mode: mode, HandshakeTimeout: p.HandshakeTimeout.Std()}
	if mode != transport.ModeTCP {
		cert, err := primaryCertificate(p.TLS)
		if err != nil {
			return err
		}
		tcfg.Certificate = &cert
		log.Info("TLS certificate", "fingerprint", transport.CertificateFingerprint(cert))
	}

	ln, err := transport.Listen(p.Listen, tcfg)
	if err != nil {
		return err
	}

	srv := server.New(ln, server.Config{
		Screens: p.Screens,
		Logger:  log,
		Session: session.Config{
			ProtocolName:         p.ProtocolName,
			KeepAliveRate:        p.KeepAlive.Rate.Std(),
			KeepAlivesUntilDeath: p.KeepAlive.UntilDeath,
			HandshakeTimeout:     p.HandshakeTimeout.Std(),
			Options:              p.Options.Protocol(),
			Metrics:              metrics.New(),
		},
	})
	log.Info("starting primary", "version", version.String(), "transport", mode.String())

	if p.StatusAddr != "" {
		status := &http.Server{
			Addr:              p.StatusAddr,
			Handler:           srv.Handler(nil),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("status server listening", "addr", p.StatusAddr)
			if err := status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status server", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			status.Shutdown(shutdownCtx)
		}()
	}

	return srv.Serve(ctx)
}

func primaryCertificate(c config.TLSConfig) (tls.Certificate, error) {
	if c.CertFile != "" {
		return transport.LoadCertificate(c.CertFile, c.KeyFile)
	}
	host, _ := os.Hostname()
	return transport.NewScreenCertificate(host, 0)
}

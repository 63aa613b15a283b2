package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/playcore/internal/api"
	"github.com/zsiec/playcore/internal/certs"
	"github.com/zsiec/playcore/internal/config"
	"github.com/zsiec/playcore/internal/ingest"
	quicingest "github.com/zsiec/playcore/internal/ingest/quic"
	srtingest "github.com/zsiec/playcore/internal/ingest/srt"
	"github.com/zsiec/playcore/internal/pipeline"
	"github.com/zsiec/playcore/internal/stream"
)

func newServeCommand(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept SRT and QUIC pushes and run a playback session per stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.String("srt-addr", "", "SRT listen address, empty to disable")
	f.String("quic-addr", "", "QUIC listen address, empty to disable")
	f.String("api-addr", "", "HTTP API listen address, empty to disable")
	f.String("cert", "", "TLS certificate file for QUIC (self-signed when unset)")
	f.String("key", "", "TLS key file for QUIC")
	bindFlags(v, f, map[string]string{
		"srt.addr":       "srt-addr",
		"quic.addr":      "quic-addr",
		"api.addr":       "api-addr",
		"quic.cert_file": "cert",
		"quic.key_file":  "key",
	})
	return cmd
}

type app struct {
	cfg       config.Config
	log       *slog.Logger
	mgr       *stream.Manager
	registry  *ingest.Registry
	srtCaller *srtingest.Caller
}

func serve(ctx context.Context, cfg config.Config) error {
	log := slog.Default()
	a := &app{
		cfg: cfg,
		log: log,
		mgr: stream.NewManager(log),
	}

	slog.Info("playcore starting",
		"version", version,
		"srt", cfg.SRT.Addr,
		"quic", cfg.QUIC.Addr,
		"api", cfg.API.Addr,
	)

	g, ctx := errgroup.WithContext(ctx)

	// The registry and caller are created after the errgroup so their
	// callbacks capture its context and sessions stop when any server fails.
	a.registry = ingest.NewRegistry(func(s *ingest.Stream, input io.ReadCloser) {
		a.handleNewStream(ctx, s, input)
	})
	a.srtCaller = srtingest.NewCaller(a.registry, log)

	var certHash string
	if cfg.QUIC.Addr != "" {
		cert, err := certs.LoadOrGenerate(cfg.QUIC.CertFile, cfg.QUIC.KeyFile)
		if err != nil {
			return err
		}
		certHash = cert.FingerprintBase64()
		slog.Info("QUIC certificate ready",
			"fingerprint", certHash,
			"expires", cert.Leaf.NotAfter.Format(time.RFC3339),
		)
		quicSrv := quicingest.NewServer(cfg.QUIC.Addr, cert.ServerTLS(), a.registry, log)
		g.Go(func() error { return quicSrv.Start(ctx) })
	}

	if cfg.SRT.Addr != "" {
		srtSrv := srtingest.NewServer(cfg.SRT.Addr, a.registry, log)
		g.Go(func() error { return srtSrv.Start(ctx) })
	}

	if cfg.API.Addr != "" {
		apiSrv := api.New(api.Config{
			Addr:     cfg.API.Addr,
			Sessions: a.mgr,
			Ingest:   a.registry,
			CertHash: certHash,
			SRTPull: func(req srtingest.PullRequest) error {
				return a.srtCaller.Pull(ctx, req)
			},
			SRTStop: a.srtCaller.Stop,
			SRTList: a.srtCaller.ActivePulls,
			Logger:  log,
		})
		g.Go(func() error { return apiSrv.Start(ctx) })
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		return err
	}
	return nil
}

// handleNewStream runs a playback session for one pushed or pulled stream
// until its origin ends or the server shuts down.
func (a *app) handleNewStream(ctx context.Context, s *ingest.Stream, input io.ReadCloser) {
	a.log.Info("new stream from ingest", "key", s.Key, "protocol", s.Protocol)

	sess, created := a.mgr.Create(s.Key)
	if !created {
		a.log.Warn("rejecting duplicate stream connection", "key", s.Key)
		input.Close()
		return
	}
	defer a.mgr.Remove(s.Key)

	pc := a.cfg.Pipeline()
	pc.ID = sess.ID
	pc.Logger = a.log

	p := pipeline.New(s.Key, input, pc)
	p.SetProtocol(s.Protocol)
	sess.Attach(p)

	if err := p.Run(ctx); err != nil {
		a.log.Error("session failed", "key", s.Key, "session", sess.ID, "error", err)
	}
	a.log.Info("stream ended", "key", s.Key, "session", sess.ID)
}

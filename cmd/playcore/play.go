package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zsiec/playcore/internal/ingest"
	"github.com/zsiec/playcore/internal/ingest/srt"
	"github.com/zsiec/playcore/internal/pipeline"
)

func newPlayCommand(v *viper.Viper, load loader) *cobra.Command {
	var statsEvery time.Duration

	cmd := &cobra.Command{
		Use:   "play <file|srt-url|->",
		Short: "Play one origin into discard sinks and print its session stats",
		Example: `  playcore play clip.ts
  cat clip.ts | playcore play -
  playcore play 'srt://10.0.0.1:9000?streamid=live/cam1'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return play(ctx, args[0], cfg.Pipeline(), statsEvery, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntP("read-ahead", "r", 0, "transport packets buffered ahead of the demuxer")
	cmd.Flags().DurationVar(&statsEvery, "stats-every", 0, "also log session stats at this interval")
	bindFlags(v, cmd.Flags(), map[string]string{"player.read_ahead": "read-ahead"})
	return cmd
}

func play(ctx context.Context, target string, pc pipeline.Config, statsEvery time.Duration, out io.Writer) error {
	u, err := ingest.ParseTarget(target)
	if err != nil {
		return err
	}
	openers := ingest.DefaultOpeners()
	openers.Register(srt.Protocol, srt.Open)

	origin, err := openers.Open(ctx, target)
	if err != nil {
		return err
	}
	defer origin.Close()

	pc.Logger = slog.Default()
	p := pipeline.New(sessionKey(u.Scheme, target), origin, pc)
	p.SetProtocol(u.Scheme)

	if statsEvery > 0 {
		statsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go logStats(statsCtx, p, statsEvery)
	}

	runErr := p.Run(ctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Snapshot()); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return runErr
}

// sessionKey names a session after the file it plays.
func sessionKey(scheme, target string) string {
	switch scheme {
	case "stdin":
		return "stdin"
	case "file":
		return filepath.Base(target)
	}
	return target
}

func logStats(ctx context.Context, p *pipeline.Pipeline, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Snapshot()
			slog.Info("session stats",
				"position_us", s.PositionUs,
				"presented", s.Presented,
				"dropped", s.FramesDropped,
				"buffering", s.Buffering,
			)
		}
	}
}

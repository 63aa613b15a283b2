package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zsiec/playcore/internal/ingest"
	quicingest "github.com/zsiec/playcore/internal/ingest/quic"
	srtingest "github.com/zsiec/playcore/internal/ingest/srt"
)

func newPushCommand(load loader) *cobra.Command {
	var (
		to       string
		key      string
		caFile   string
		insecure bool
		rate     float64
	)

	cmd := &cobra.Command{
		Use:   "push <file|->",
		Short: "Push a transport stream to a playcore server over QUIC or SRT",
		Example: `  playcore push clip.ts --to media.example.com:4443 --key live/cam1 --ca server.pem
  ffmpeg -i in.mp4 -f mpegts - | playcore push - --to localhost:4443 --key test --insecure
  playcore push clip.ts --to srt://localhost:6000 --key live/cam1 --rate 500000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := load(); err != nil {
				return err
			}
			if key == "" {
				return errors.New("--key is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			origin, err := ingest.DefaultOpeners().Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer origin.Close()

			var n int64
			if u, perr := url.Parse(to); perr == nil && u.Scheme == srtingest.Protocol {
				n, err = srtingest.Push(ctx, u.Host, key, origin, rate)
			} else {
				tlsConf, terr := clientTLS(caFile, insecure)
				if terr != nil {
					return terr
				}
				n, err = quicingest.Push(ctx, to, tlsConf, key, origin)
			}
			if err != nil {
				return err
			}
			slog.Info("push complete", "key", key, "to", to, "bytes", n)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&to, "to", "localhost:4443", "server QUIC address, or srt://host:port")
	f.StringVar(&key, "key", "", "stream key to publish under")
	f.StringVar(&caFile, "ca", "", "PEM certificate to trust for the server")
	f.BoolVar(&insecure, "insecure", false, "skip server certificate verification")
	f.Float64Var(&rate, "rate", 0, "SRT send rate in bytes per second, 0 for unpaced")
	return cmd
}

func clientTLS(caFile string, insecure bool) (*tls.Config, error) {
	conf := &tls.Config{MinVersion: tls.VersionTLS13}
	switch {
	case insecure:
		conf.InsecureSkipVerify = true
	case caFile != "":
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%s: no certificates found", caFile)
		}
		conf.RootCAs = pool
	}
	return conf, nil
}

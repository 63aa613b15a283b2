package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zsiec/playcore/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// loader reads the configuration once flags are parsed and installs the
// process logger.
type loader func() (config.Config, error)

func newRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	root := &cobra.Command{
		Use:   "playcore",
		Short: "Play MPEG transport streams through the playback orchestrator",
		Long: `playcore plays MPEG-TS from files, standard input and SRT listeners,
and serves pushed SRT and QUIC streams as controllable playback sessions.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./playcore.yaml or $HOME/.playcore/playcore.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-format", "", "log format: text or json")
	bindFlags(v, flags, map[string]string{
		"log.debug":  "debug",
		"log.format": "log-format",
	})

	load := func() (config.Config, error) {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return cfg, err
		}
		slog.SetDefault(newLogger(cfg.Log, os.Stderr))
		return cfg, nil
	}

	root.AddCommand(newPlayCommand(v, load))
	root.AddCommand(newServeCommand(v, load))
	root.AddCommand(newPushCommand(load))
	return root
}

// bindFlags binds each config key to the flag of fs it maps to. An
// unknown flag name is a programming error.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Package config loads playcore's configuration from defaults, an
// optional YAML file and PLAYCORE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zsiec/playcore/internal/pipeline"
	"github.com/zsiec/playcore/internal/player"
	"github.com/zsiec/playcore/internal/source/ts"
)

// EnvPrefix prefixes every environment variable, e.g.
// PLAYCORE_PLAYER_LATE_FRAME_THRESHOLD.
const EnvPrefix = "PLAYCORE"

// Config is the full process configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Player  PlayerConfig  `mapstructure:"player"`
	Session SessionConfig `mapstructure:"session"`
	SRT     SRTConfig     `mapstructure:"srt"`
	QUIC    QUICConfig    `mapstructure:"quic"`
	API     APIConfig     `mapstructure:"api"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Debug  bool   `mapstructure:"debug"`
	Format string `mapstructure:"format"`
}

// PlayerConfig tunes the orchestrator, its decoders, its renderer and the
// transport stream source.
type PlayerConfig struct {
	LateFrameThreshold    time.Duration `mapstructure:"late_frame_threshold"`
	ScanRetryDelay        time.Duration `mapstructure:"scan_retry_delay"`
	FillRetryDelay        time.Duration `mapstructure:"fill_retry_delay"`
	DeepBufferMinDuration time.Duration `mapstructure:"deep_buffer_min_duration"`
	PositionInterval      time.Duration `mapstructure:"position_interval"`
	TooLate               time.Duration `mapstructure:"too_late"`
	InputSlots            int           `mapstructure:"input_slots"`
	OutputSlots           int           `mapstructure:"output_slots"`
	AudioBuffers          int           `mapstructure:"audio_buffers"`
	PacketsPerFeed        int           `mapstructure:"packets_per_feed"`
	ReadAhead             int           `mapstructure:"read_ahead"`
}

// SessionConfig tunes playback sessions.
type SessionConfig struct {
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// SRTConfig configures the SRT listener. An empty address disables it.
type SRTConfig struct {
	Addr string `mapstructure:"addr"`
}

// QUICConfig configures the QUIC push listener. Without a certificate
// and key a self-signed certificate is generated.
type QUICConfig struct {
	Addr     string `mapstructure:"addr"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// APIConfig configures the status and control API.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]any{
	"log.debug":  false,
	"log.format": "text",

	"player.late_frame_threshold":     100 * time.Millisecond,
	"player.scan_retry_delay":         50 * time.Millisecond,
	"player.fill_retry_delay":         10 * time.Millisecond,
	"player.deep_buffer_min_duration": 5 * time.Second,
	"player.position_interval":        100 * time.Millisecond,
	"player.too_late":                 40 * time.Millisecond,
	"player.input_slots":              4,
	"player.output_slots":             8,
	"player.audio_buffers":            8,
	"player.packets_per_feed":         50,
	"player.read_ahead":               512,

	"session.reset_timeout": 5 * time.Second,

	"srt.addr":       ":6000",
	"quic.addr":      ":4443",
	"quic.cert_file": "",
	"quic.key_file":  "",
	"api.addr":       ":4444",
}

// New returns a viper instance carrying the defaults and reading
// PLAYCORE_ environment variables. Command-line flags may be bound to it
// before Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, or playcore.yaml from the working directory or
// $HOME/.playcore when file is empty, and decodes the result. A missing
// default file is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("playcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(os.ExpandEnv("$HOME/.playcore"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q: want text or json", c.Log.Format)
	}
	p := c.Player
	for name, d := range map[string]time.Duration{
		"player.late_frame_threshold":     p.LateFrameThreshold,
		"player.scan_retry_delay":         p.ScanRetryDelay,
		"player.fill_retry_delay":         p.FillRetryDelay,
		"player.deep_buffer_min_duration": p.DeepBufferMinDuration,
		"player.position_interval":        p.PositionInterval,
		"player.too_late":                 p.TooLate,
		"session.reset_timeout":           c.Session.ResetTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	for name, n := range map[string]int{
		"player.input_slots":      p.InputSlots,
		"player.output_slots":     p.OutputSlots,
		"player.audio_buffers":    p.AudioBuffers,
		"player.packets_per_feed": p.PacketsPerFeed,
		"player.read_ahead":       p.ReadAhead,
	} {
		if n <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", name, n)
		}
	}
	if (c.QUIC.CertFile == "") != (c.QUIC.KeyFile == "") {
		return errors.New("config: quic.cert_file and quic.key_file must be set together")
	}
	return nil
}

// Pipeline returns the session configuration for these settings.
func (c Config) Pipeline() pipeline.Config {
	p := c.Player
	return pipeline.Config{
		Player: player.Config{
			LateFrameThreshold:    p.LateFrameThreshold,
			ScanRetryDelay:        p.ScanRetryDelay,
			FillRetryDelay:        p.FillRetryDelay,
			DeepBufferMinDuration: p.DeepBufferMinDuration,
			PositionInterval:      p.PositionInterval,
			TooLate:               p.TooLate,
			InputSlots:            p.InputSlots,
			OutputSlots:           p.OutputSlots,
			AudioBuffers:          p.AudioBuffers,
		},
		Source: ts.Config{
			PacketsPerFeed: p.PacketsPerFeed,
			ReadAhead:      p.ReadAhead,
		},
		ResetTimeout: c.Session.ResetTimeout,
	}
}

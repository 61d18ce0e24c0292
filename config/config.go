package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/maxenergy/MediaServer/interfaces"
	"github.com/maxenergy/MediaServer/jt1078"
	"github.com/maxenergy/MediaServer/limits"
	"github.com/maxenergy/MediaServer/playback"
	"github.com/maxenergy/MediaServer/rtp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete server configuration
type Config struct {
	LogLevel    string         `yaml:"log_level"`
	MediaRoot   string         `yaml:"media_root"`
	MetricsAddr string         `yaml:"metrics_addr"`
	Playback    PlaybackConfig `yaml:"playback"`
	RTP         RTPConfig      `yaml:"rtp"`
	Sink        SinkConfig     `yaml:"sink"`
	Ingest      IngestConfig   `yaml:"ingest"`
	Workers     WorkersConfig  `yaml:"workers"`
}

// PlaybackConfig contains scheduler tunables
type PlaybackConfig struct {
	TickIntervalMS       int `yaml:"tick_interval_ms"`
	LowWaterMark         int `yaml:"low_water_mark"`
	DiscontinuitySlackMS int `yaml:"discontinuity_slack_ms"`
	BufferCapacity       int `yaml:"buffer_capacity"`
	MaxReadErrors        int `yaml:"max_read_errors"`
	FPS                  int `yaml:"fps"` // picture rate assumed for raw elementary streams
}

// RTPConfig contains packetizer settings
type RTPConfig struct {
	MaxPayloadSize int    `yaml:"max_payload_size"`
	FastPTS        bool   `yaml:"fast_pts"`
	PTSScale       uint32 `yaml:"pts_scale"`
	PayloadType    uint8  `yaml:"payload_type"` // 0 selects the codec default
}

// SinkConfig contains packet sink settings
type SinkConfig struct {
	Simulation     bool   `yaml:"simulation"`
	RemoteAddr     string `yaml:"remote_addr"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	RetryAttempts  int    `yaml:"retry_attempts"`
}

// IngestConfig contains JT/T 1078 listener settings
type IngestConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Version    string `yaml:"version"`
}

// WorkersConfig sizes the shared goroutine pools
type WorkersConfig struct {
	ReadAhead     int `yaml:"read_ahead"`
	QueueCapacity int `yaml:"queue_capacity"`
	PacingLoops   int `yaml:"pacing_loops"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		MediaRoot:   ".",
		MetricsAddr: ":9100",
		Playback: PlaybackConfig{
			TickIntervalMS:       int(playback.DefaultTickInterval / time.Millisecond),
			LowWaterMark:         playback.DefaultLowWaterMark,
			DiscontinuitySlackMS: playback.DefaultDiscontinuitySlack,
			BufferCapacity:       playback.DefaultBufferCapacity,
			MaxReadErrors:        playback.DefaultMaxReadErrors,
			FPS:                  25,
		},
		RTP: RTPConfig{
			MaxPayloadSize: limits.DefaultRTPPayload,
			FastPTS:        true,
			PTSScale:       90,
		},
		Sink: SinkConfig{
			WriteTimeoutMS: 1000,
			RetryAttempts:  1,
		},
		Ingest: IngestConfig{
			ListenAddr: ":1078",
			Version:    "V2016",
		},
		Workers: WorkersConfig{
			ReadAhead:     4,
			QueueCapacity: 4096,
			PacingLoops:   2,
		},
	}
}

// Load reads a YAML file on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.Parse(data); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Load",
		"path":       path,
		"media_root": cfg.MediaRoot,
		"log_level":  cfg.LogLevel,
		"ingest":     cfg.Ingest.ListenAddr,
	}).Info("Configuration loaded")

	return cfg, nil
}

// Parse merges YAML data into c. Keys absent from data keep their values.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks every section for values the server cannot run with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.PlaybackConfig(0).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Playback.FPS < 0 {
		return fmt.Errorf("%w: fps %d", ErrInvalid, c.Playback.FPS)
	}
	if err := limits.ValidatePayloadSize(c.RTP.MaxPayloadSize); err != nil {
		return fmt.Errorf("%w: rtp: %v", ErrInvalid, err)
	}
	if c.RTP.FastPTS && c.RTP.PTSScale == 0 {
		return fmt.Errorf("%w: rtp: fast_pts needs a pts_scale", ErrInvalid)
	}
	if c.RTP.PayloadType > 127 {
		return fmt.Errorf("%w: rtp: payload type %d", ErrInvalid, c.RTP.PayloadType)
	}
	if _, err := jt1078.ParseVersion(c.Ingest.Version); err != nil {
		return fmt.Errorf("%w: ingest: %v", ErrInvalid, err)
	}
	if c.Workers.ReadAhead < 1 || c.Workers.QueueCapacity < 1 || c.Workers.PacingLoops < 1 {
		return fmt.Errorf("%w: workers must be positive: %+v", ErrInvalid, c.Workers)
	}
	return nil
}

// Level returns the parsed log level, info if it does not parse.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// PlaybackConfig builds a scheduler config with the given loop budget.
func (c *Config) PlaybackConfig(loopBudget int) playback.Config {
	return playback.Config{
		TickInterval:       time.Duration(c.Playback.TickIntervalMS) * time.Millisecond,
		LowWaterMark:       c.Playback.LowWaterMark,
		DiscontinuitySlack: uint64(max(c.Playback.DiscontinuitySlackMS, 0)),
		BufferCapacity:     c.Playback.BufferCapacity,
		LoopBudget:         loopBudget,
		MaxReadErrors:      c.Playback.MaxReadErrors,
	}
}

// EncoderConfig builds an encoder config. SSRC and payload type are left to
// the caller when the file does not pin a payload type.
func (c *Config) EncoderConfig(ssrc uint32, payloadType uint8) rtp.EncoderConfig {
	if c.RTP.PayloadType != 0 {
		payloadType = c.RTP.PayloadType
	}
	return rtp.EncoderConfig{
		SSRC:           ssrc,
		PayloadType:    payloadType,
		MaxPayloadSize: c.RTP.MaxPayloadSize,
		EnableFastPTS:  c.RTP.FastPTS,
		PTSScale:       c.RTP.PTSScale,
	}
}

// SinkConfig converts the sink section for the factory package.
func (c *Config) SinkConfig() interfaces.PacketSinkConfig {
	return interfaces.PacketSinkConfig{
		UseSimulation: c.Sink.Simulation,
		RemoteAddr:    c.Sink.RemoteAddr,
		WriteTimeout:  c.Sink.WriteTimeoutMS,
		RetryAttempts: c.Sink.RetryAttempts,
	}
}

// IngestVersion returns the parsed ingest protocol version.
func (c *Config) IngestVersion() jt1078.Version {
	v, err := jt1078.ParseVersion(c.Ingest.Version)
	if err != nil {
		return jt1078.V2016
	}
	return v
}

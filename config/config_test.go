package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxenergy/MediaServer/jt1078"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnv = []string{
	EnvLogLevel, EnvMediaRoot, EnvMetricsAddr, EnvIngestAddr, EnvIngestVersion,
	EnvTickIntervalMS, EnvLowWaterMark, EnvMaxPayloadSize, EnvReadWorkers, EnvPacingLoops,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allEnv {
		t.Setenv(name, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	pc := cfg.PlaybackConfig(3)
	assert.Equal(t, 40*time.Millisecond, pc.TickInterval)
	assert.Equal(t, 25, pc.LowWaterMark)
	assert.Equal(t, uint64(500), pc.DiscontinuitySlack)
	assert.Equal(t, 3, pc.LoopBudget)
	assert.Equal(t, jt1078.V2016, cfg.IngestVersion())
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "server.yaml")
	yaml := `
log_level: debug
media_root: /srv/vod
playback:
  low_water_mark: 10
rtp:
  max_payload_size: 1200
  payload_type: 96
sink:
  simulation: true
ingest:
  version: V2019
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, "/srv/vod", cfg.MediaRoot)
	assert.Equal(t, 10, cfg.Playback.LowWaterMark)
	assert.Equal(t, 40, cfg.Playback.TickIntervalMS, "untouched keys keep defaults")
	assert.Equal(t, jt1078.V2019, cfg.IngestVersion())

	ec := cfg.EncoderConfig(0xabc, 99)
	assert.Equal(t, uint8(96), ec.PayloadType)
	assert.Equal(t, 1200, ec.MaxPayloadSize)
	assert.Equal(t, uint32(0xabc), ec.SSRC)
	assert.True(t, ec.EnableFastPTS)

	sc := cfg.SinkConfig()
	assert.True(t, sc.UseSimulation)
	assert.Equal(t, 1, sc.RetryAttempts)
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("playback: [1, 2"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("ingest:\n  version: V1999\n"), 0o644))
	_, err = Load(invalid)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"buffer below low water", func(c *Config) { c.Playback.BufferCapacity = 5 }},
		{"negative fps", func(c *Config) { c.Playback.FPS = -1 }},
		{"payload too small", func(c *Config) { c.RTP.MaxPayloadSize = 4 }},
		{"fast pts without scale", func(c *Config) { c.RTP.PTSScale = 0 }},
		{"payload type", func(c *Config) { c.RTP.PayloadType = 200 }},
		{"ingest version", func(c *Config) { c.Ingest.Version = "x" }},
		{"workers", func(c *Config) { c.Workers.PacingLoops = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(*testing.T, *Config)
	}{
		{
			name: "strings",
			env:  map[string]string{EnvLogLevel: "warn", EnvMediaRoot: "/media", EnvIngestAddr: ":7000", EnvIngestVersion: "0"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "warn", c.LogLevel)
				assert.Equal(t, "/media", c.MediaRoot)
				assert.Equal(t, ":7000", c.Ingest.ListenAddr)
				assert.Equal(t, jt1078.V0, c.IngestVersion())
			},
		},
		{
			name: "valid numbers",
			env:  map[string]string{EnvTickIntervalMS: "20", EnvLowWaterMark: "50", EnvMaxPayloadSize: "1000", EnvReadWorkers: "8"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 20, c.Playback.TickIntervalMS)
				assert.Equal(t, 50, c.Playback.LowWaterMark)
				assert.Equal(t, 1000, c.RTP.MaxPayloadSize)
				assert.Equal(t, 8, c.Workers.ReadAhead)
			},
		},
		{
			name: "out of bounds ignored",
			env:  map[string]string{EnvTickIntervalMS: "1", EnvLowWaterMark: "0", EnvMaxPayloadSize: "70000", EnvPacingLoops: "1000"},
			check: func(t *testing.T, c *Config) {
				d := Default()
				assert.Equal(t, d.Playback.TickIntervalMS, c.Playback.TickIntervalMS)
				assert.Equal(t, d.Playback.LowWaterMark, c.Playback.LowWaterMark)
				assert.Equal(t, d.RTP.MaxPayloadSize, c.RTP.MaxPayloadSize)
				assert.Equal(t, d.Workers.PacingLoops, c.Workers.PacingLoops)
			},
		},
		{
			name: "unparseable ignored",
			env:  map[string]string{EnvReadWorkers: "many"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, Default().Workers.ReadAhead, c.Workers.ReadAhead)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := Default()
			cfg.ApplyEnv()
			tt.check(t, cfg)
		})
	}
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxenergy/MediaServer/config"
	"github.com/maxenergy/MediaServer/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCLIFlags(t *testing.T) {
	var out bytes.Buffer
	c, _, err := parseCLIFlags([]string{
		"-mode", "play",
		"-path", "/file/cam1/clip.h265/2",
		"-dest", "127.0.0.1:30000",
		"-log-level", "debug",
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, modePlay, c.mode)
	assert.Equal(t, "/file/cam1/clip.h265/2", c.vodPath)
	assert.Equal(t, "127.0.0.1:30000", c.dest)
	assert.True(t, c.set["dest"])
	assert.True(t, c.set["log-level"])
	assert.False(t, c.set["metrics-addr"])
	assert.False(t, c.simulate)
}

func TestParseCLIFlagsUnknownFlag(t *testing.T) {
	var out bytes.Buffer
	_, _, err := parseCLIFlags([]string{"-bogus"}, &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "bogus")
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	_, fs, err := parseCLIFlags(nil, &out)
	require.NoError(t, err)

	printUsage(&out, fs)
	assert.Contains(t, out.String(), "-mode")
	assert.Contains(t, out.String(), "-ingest-addr")
}

func TestValidateCLIConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *CLIConfig
		wantErr error
		errMsg  string
	}{
		{
			name:   "valid play",
			config: &CLIConfig{mode: modePlay, vodPath: "/file/cam1/clip.h265/0"},
		},
		{
			name:   "valid ingest",
			config: &CLIConfig{mode: modeIngest},
		},
		{
			name:   "play without path",
			config: &CLIConfig{mode: modePlay},
			errMsg: "needs -path",
		},
		{
			name:    "play with short path",
			config:  &CLIConfig{mode: modePlay, vodPath: "/file/clip.h265"},
			wantErr: source.ErrMalformedPath,
		},
		{
			name:    "play with bad loop count",
			config:  &CLIConfig{mode: modePlay, vodPath: "/file/cam1/clip.h265/x"},
			wantErr: source.ErrInvalidLoopCount,
		},
		{
			name:   "unknown mode",
			config: &CLIConfig{mode: "record"},
			errMsg: "unknown mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCLIConfig(tt.config)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	var out bytes.Buffer
	c, _, err := parseCLIFlags([]string{
		"-mode", "ingest",
		"-simulate",
		"-metrics-addr", "",
		"-ingest-addr", "127.0.0.1:0",
		"-log-level", "warn",
	}, &out)
	require.NoError(t, err)

	cfg, err := loadConfig(c)
	require.NoError(t, err)
	assert.True(t, cfg.Sink.Simulation)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, "127.0.0.1:0", cfg.Ingest.ListenAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigRejectsBadLevel(t *testing.T) {
	var out bytes.Buffer
	c, _, err := parseCLIFlags([]string{"-mode", "ingest", "-log-level", "loud"}, &out)
	require.NoError(t, err)

	_, err = loadConfig(c)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunIngestStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.MetricsAddr = ""
	cfg.Ingest.ListenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, &CLIConfig{mode: modeIngest}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunPlaySimulated(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "clip.h265"), h265Clip(2, 3), 0o644))

	cfg := config.Default()
	cfg.MetricsAddr = ""
	cfg.MediaRoot = root
	cfg.Sink.Simulation = true

	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), cfg, &CLIConfig{mode: modePlay, vodPath: "/file/cam1/clip.h265/1"})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("playback did not finish")
	}
}

func h265Clip(gops, picturesPerGOP int) []byte {
	var out []byte
	sc := []byte{0, 0, 0, 1}
	for g := 0; g < gops; g++ {
		out = append(out, sc...)
		out = append(out, 32<<1, 1, 0xAA)
		out = append(out, sc...)
		out = append(out, 33<<1, 1, 0xBB)
		out = append(out, sc...)
		out = append(out, 34<<1, 1, 0xCC)
		out = append(out, sc...)
		out = append(out, 19<<1, 1, 0x80, 0x11, 0x12)
		for p := 1; p < picturesPerGOP; p++ {
			out = append(out, sc...)
			out = append(out, 1<<1, 1, 0x80, byte(p))
		}
	}
	return out
}

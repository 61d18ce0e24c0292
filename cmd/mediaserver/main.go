package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxenergy/MediaServer/config"
	"github.com/maxenergy/MediaServer/factory"
	"github.com/maxenergy/MediaServer/ingest"
	"github.com/maxenergy/MediaServer/media"
	"github.com/maxenergy/MediaServer/metrics"
	"github.com/maxenergy/MediaServer/pacing"
	"github.com/maxenergy/MediaServer/playback"
	"github.com/maxenergy/MediaServer/source"
	"github.com/maxenergy/MediaServer/vod"
	"github.com/maxenergy/MediaServer/workpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	modePlay   = "play"
	modeIngest = "ingest"
)

// CLIConfig holds command-line settings
type CLIConfig struct {
	mode        string
	configPath  string
	vodPath     string
	dest        string
	simulate    bool
	logLevel    string
	metricsAddr string
	ingestAddr  string
	help        bool

	// set records which flags were given explicitly
	set map[string]bool
}

// parseCLIFlags parses args and returns the configuration.
func parseCLIFlags(args []string, output io.Writer) (*CLIConfig, *flag.FlagSet, error) {
	c := &CLIConfig{set: make(map[string]bool)}
	fs := flag.NewFlagSet("mediaserver", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&c.mode, "mode", modePlay, "Run mode (play, ingest)")
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.vodPath, "path", "", "VOD request path, e.g. /file/cam1/clip.h265/1")
	fs.StringVar(&c.dest, "dest", "", "UDP destination host:port for play mode")
	fs.BoolVar(&c.simulate, "simulate", false, "Record packets in memory instead of sending them")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "Prometheus listen address")
	fs.StringVar(&c.ingestAddr, "ingest-addr", "", "JT/T 1078 listen address for ingest mode")
	fs.BoolVar(&c.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	fs.Visit(func(f *flag.Flag) { c.set[f.Name] = true })
	return c, fs, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "mediaserver: paced RTP playback and JT/T 1078 ingest")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s -mode play -path /file/{vodId}/{file}/{loops} -dest host:port\n", fs.Name())
	fmt.Fprintf(w, "  %s -mode ingest [-ingest-addr :1078]\n", fs.Name())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(c *CLIConfig) error {
	switch c.mode {
	case modePlay:
		if c.vodPath == "" {
			return errors.New("play mode needs -path")
		}
		if _, err := source.ParseVodPath(c.vodPath); err != nil {
			return err
		}
	case modeIngest:
	default:
		return fmt.Errorf("unknown mode %q", c.mode)
	}
	return nil
}

// applyCLIOverrides copies explicitly set flags into cfg.
func applyCLIOverrides(cfg *config.Config, c *CLIConfig) {
	if c.set["log-level"] {
		cfg.LogLevel = c.logLevel
	}
	if c.set["metrics-addr"] {
		cfg.MetricsAddr = c.metricsAddr
	}
	if c.set["ingest-addr"] {
		cfg.Ingest.ListenAddr = c.ingestAddr
	}
	if c.set["dest"] {
		cfg.Sink.RemoteAddr = c.dest
	}
	if c.set["simulate"] {
		cfg.Sink.Simulation = c.simulate
	}
}

// loadConfig reads the file and environment, then applies flags.
func loadConfig(c *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	applyCLIOverrides(cfg, c)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupSignalHandling cancels ctx on SIGINT or SIGTERM.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithFields(logrus.Fields{
			"function": "setupSignalHandling",
			"signal":   sig.String(),
		}).Info("Received signal, shutting down")
		cancel()
	}()
}

// run starts the configured mode and the metrics endpoint and blocks until
// either fails or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, c *CLIConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"addr":     cfg.MetricsAddr,
			}).Info("Metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	switch c.mode {
	case modePlay:
		g.Go(func() error {
			defer cancel()
			return runPlay(ctx, cfg, c.vodPath, m)
		})
	case modeIngest:
		g.Go(func() error {
			return runIngest(ctx, cfg, m)
		})
	}

	return g.Wait()
}

// runPlay plays one VOD path and returns when the session ends.
func runPlay(ctx context.Context, cfg *config.Config, vodPath string, m *metrics.Metrics) error {
	loops, err := pacing.NewPool("pacing", cfg.Workers.PacingLoops)
	if err != nil {
		return err
	}
	defer loops.Close()

	pool, err := workpool.New(cfg.Workers.ReadAhead, cfg.Workers.QueueCapacity)
	if err != nil {
		return err
	}
	defer pool.Close()

	mgr, err := vod.NewManager(vod.ManagerConfig{
		Registry: source.DefaultRegistry(cfg.MediaRoot, cfg.Playback.FPS),
		Executor: pool,
		Loops:    func() playback.PacingLoop { return loops.Next() },
		Playback: cfg.PlaybackConfig(0),
		Encoder:  cfg.EncoderConfig(0, 0),
		Sinks:    factory.NewPacketSinkFactoryWithConfig(cfg.SinkConfig()),
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	sess, err := mgr.Play(vodPath)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		sess.Stop()
		return nil
	case <-sess.Done():
		logrus.WithFields(logrus.Fields{
			"function": "runPlay",
			"session":  sess.ID(),
			"packets":  sess.PacketsSent(),
			"bytes":    sess.BytesSent(),
			"loops":    sess.LoopCount(),
		}).Info("Playback finished")
		return sess.Err()
	}
}

// runIngest serves JT/T 1078 connections until ctx is cancelled.
func runIngest(ctx context.Context, cfg *config.Config, m *metrics.Metrics) error {
	handler := func(key ingest.StreamKey, f *media.Frame) {
		logrus.WithFields(logrus.Fields{
			"function": "runIngest",
			"stream":   key.String(),
			"frame":    f.String(),
		}).Trace("Frame received")
	}
	return ingest.NewServer(cfg.Ingest.ListenAddr, cfg.IngestVersion(), handler, m).Start(ctx)
}

func main() {
	cliConfig, fs, err := parseCLIFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if cliConfig.help {
		printUsage(os.Stdout, fs)
		os.Exit(0)
	}
	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	cfg, err := loadConfig(cliConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(cfg.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := run(ctx, cfg, cliConfig); err != nil {
		logrus.WithError(err).Error("mediaserver stopped with error")
		cancel()
		os.Exit(1)
	}
}

package config

import (
	"os"
	"strconv"

	"github.com/maxenergy/MediaServer/limits"
	"github.com/sirupsen/logrus"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel       = "MEDIASERVER_LOG_LEVEL"
	EnvMediaRoot      = "MEDIASERVER_MEDIA_ROOT"
	EnvMetricsAddr    = "MEDIASERVER_METRICS_ADDR"
	EnvIngestAddr     = "MEDIASERVER_INGEST_ADDR"
	EnvIngestVersion  = "MEDIASERVER_INGEST_VERSION"
	EnvTickIntervalMS = "MEDIASERVER_TICK_INTERVAL_MS"
	EnvLowWaterMark   = "MEDIASERVER_LOW_WATER_MARK"
	EnvMaxPayloadSize = "MEDIASERVER_MAX_PAYLOAD_SIZE"
	EnvReadWorkers    = "MEDIASERVER_READ_WORKERS"
	EnvPacingLoops    = "MEDIASERVER_PACING_LOOPS"
)

// Bounds applied to numeric environment overrides.
const (
	MinTickIntervalMS = 5
	MaxTickIntervalMS = 1000
	MinLowWaterMark   = 1
	MaxLowWaterMark   = 1024
	MinWorkers        = 1
	MaxWorkers        = 256
)

// ApplyEnv overrides c from MEDIASERVER_* environment variables.
func (c *Config) ApplyEnv() {
	parseStringSetting(EnvLogLevel, &c.LogLevel)
	parseStringSetting(EnvMediaRoot, &c.MediaRoot)
	parseStringSetting(EnvMetricsAddr, &c.MetricsAddr)
	parseStringSetting(EnvIngestAddr, &c.Ingest.ListenAddr)
	parseStringSetting(EnvIngestVersion, &c.Ingest.Version)
	parseIntSetting(EnvTickIntervalMS, MinTickIntervalMS, MaxTickIntervalMS, &c.Playback.TickIntervalMS)
	parseIntSetting(EnvLowWaterMark, MinLowWaterMark, MaxLowWaterMark, &c.Playback.LowWaterMark)
	parseIntSetting(EnvMaxPayloadSize, limits.MinRTPPayload, limits.MaxRTPPayload, &c.RTP.MaxPayloadSize)
	parseIntSetting(EnvReadWorkers, MinWorkers, MaxWorkers, &c.Workers.ReadAhead)
	parseIntSetting(EnvPacingLoops, MinWorkers, MaxWorkers, &c.Workers.PacingLoops)
}

func parseStringSetting(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

// parseIntSetting only applies values within [min, max].
func parseIntSetting(name string, minValue, maxValue int, target *int) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if value < minValue || value > maxValue {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     name,
			"value":       value,
			"min":         minValue,
			"max":         maxValue,
			"using_value": *target,
		}).Warn("Environment value out of bounds, using default")
		return
	}
	*target = value
}

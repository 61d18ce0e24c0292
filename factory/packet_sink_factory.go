package factory

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/maxenergy/MediaServer/interfaces"
	"github.com/maxenergy/MediaServer/real"
	"github.com/maxenergy/MediaServer/testing"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinWriteTimeout is the minimum allowed write timeout in milliseconds; 0 disables the deadline.
	MinWriteTimeout = 0
	// MaxWriteTimeout is the maximum allowed write timeout in milliseconds.
	MaxWriteTimeout = 60000
	// MinRetryAttempts is the minimum allowed write attempts.
	MinRetryAttempts = 1
	// MaxRetryAttempts is the maximum allowed write attempts.
	MaxRetryAttempts = 10
)

// Environment variables read by NewPacketSinkFactory.
const (
	EnvSinkSimulation    = "MEDIASERVER_SINK_SIMULATION"
	EnvSinkAddr          = "MEDIASERVER_SINK_ADDR"
	EnvSinkWriteTimeout  = "MEDIASERVER_SINK_WRITE_TIMEOUT"
	EnvSinkRetryAttempts = "MEDIASERVER_SINK_RETRY_ATTEMPTS"
)

// ErrNilConfig is returned by UpdateConfig when given nil.
var ErrNilConfig = errors.New("config cannot be nil")

// PacketSinkFactory creates packet sink implementations based on configuration.
// It is safe for concurrent use.
type PacketSinkFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.PacketSinkConfig
}

// TestConfigOption is a functional option for customizing test simulation configuration.
type TestConfigOption func(*interfaces.PacketSinkConfig)

// NewPacketSinkFactory creates a new factory with default configuration and
// environment overrides applied.
func NewPacketSinkFactory() *PacketSinkFactory {
	return NewPacketSinkFactoryWithConfig(createDefaultConfig())
}

// NewPacketSinkFactoryWithConfig starts from base instead of the built-in
// defaults. Environment overrides still apply on top.
func NewPacketSinkFactoryWithConfig(base interfaces.PacketSinkConfig) *PacketSinkFactory {
	config := base
	applyEnvironmentOverrides(&config)
	logConfigurationInfo(&config)

	return &PacketSinkFactory{defaultConfig: &config}
}

// createDefaultConfig returns a real sink with a one second write deadline
// and a single attempt per packet.
func createDefaultConfig() interfaces.PacketSinkConfig {
	return interfaces.PacketSinkConfig{
		UseSimulation: false,
		WriteTimeout:  1000,
		RetryAttempts: 1,
	}
}

// applyEnvironmentOverrides updates configuration from MEDIASERVER_SINK_* variables.
func applyEnvironmentOverrides(config *interfaces.PacketSinkConfig) {
	parseSimulationSetting(config)
	parseAddrSetting(config)
	parseTimeoutSetting(config)
	parseRetrySetting(config)
}

func parseSimulationSetting(config *interfaces.PacketSinkConfig) {
	if useSimStr := os.Getenv(EnvSinkSimulation); useSimStr != "" {
		useSim, err := strconv.ParseBool(useSimStr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "parseSimulationSetting",
				"env_var":     EnvSinkSimulation,
				"value":       useSimStr,
				"error":       err.Error(),
				"using_value": config.UseSimulation,
			}).Warn("Failed to parse environment variable, using default")
			return
		}
		config.UseSimulation = useSim
	}
}

func parseAddrSetting(config *interfaces.PacketSinkConfig) {
	if addr := os.Getenv(EnvSinkAddr); addr != "" {
		config.RemoteAddr = addr
	}
}

// parseTimeoutSetting only applies values within [MinWriteTimeout, MaxWriteTimeout].
func parseTimeoutSetting(config *interfaces.PacketSinkConfig) {
	if timeoutStr := os.Getenv(EnvSinkWriteTimeout); timeoutStr != "" {
		timeout, err := strconv.Atoi(timeoutStr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "parseTimeoutSetting",
				"env_var":     EnvSinkWriteTimeout,
				"value":       timeoutStr,
				"error":       err.Error(),
				"using_value": config.WriteTimeout,
			}).Warn("Failed to parse environment variable, using default")
			return
		}
		if timeout < MinWriteTimeout || timeout > MaxWriteTimeout {
			logrus.WithFields(logrus.Fields{
				"function":    "parseTimeoutSetting",
				"env_var":     EnvSinkWriteTimeout,
				"value":       timeout,
				"min":         MinWriteTimeout,
				"max":         MaxWriteTimeout,
				"using_value": config.WriteTimeout,
			}).Warn("Environment value out of bounds, using default")
			return
		}
		config.WriteTimeout = timeout
	}
}

// parseRetrySetting only applies values within [MinRetryAttempts, MaxRetryAttempts].
func parseRetrySetting(config *interfaces.PacketSinkConfig) {
	if retriesStr := os.Getenv(EnvSinkRetryAttempts); retriesStr != "" {
		retries, err := strconv.Atoi(retriesStr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "parseRetrySetting",
				"env_var":     EnvSinkRetryAttempts,
				"value":       retriesStr,
				"error":       err.Error(),
				"using_value": config.RetryAttempts,
			}).Warn("Failed to parse environment variable, using default")
			return
		}
		if retries < MinRetryAttempts || retries > MaxRetryAttempts {
			logrus.WithFields(logrus.Fields{
				"function":    "parseRetrySetting",
				"env_var":     EnvSinkRetryAttempts,
				"value":       retries,
				"min":         MinRetryAttempts,
				"max":         MaxRetryAttempts,
				"using_value": config.RetryAttempts,
			}).Warn("Environment value out of bounds, using default")
			return
		}
		config.RetryAttempts = retries
	}
}

func logConfigurationInfo(config *interfaces.PacketSinkConfig) {
	logrus.WithFields(logrus.Fields{
		"function":       "NewPacketSinkFactory",
		"use_simulation": config.UseSimulation,
		"remote_addr":    config.RemoteAddr,
		"write_timeout":  config.WriteTimeout,
		"retry_attempts": config.RetryAttempts,
	}).Info("Created packet sink factory with configuration")
}

// CreatePacketSink creates a packet sink from the factory's current configuration.
func (f *PacketSinkFactory) CreatePacketSink() (interfaces.IPacketSink, error) {
	return f.CreatePacketSinkWithConfig(nil)
}

// CreatePacketSinkWithConfig creates a packet sink from config, or from the
// factory's configuration when config is nil.
func (f *PacketSinkFactory) CreatePacketSinkWithConfig(config *interfaces.PacketSinkConfig) (interfaces.IPacketSink, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid packet sink config: %w", err)
	}

	if config.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function": "CreatePacketSinkWithConfig",
			"type":     "simulation",
		}).Info("Creating simulated packet sink")
		return testing.NewSimulatedPacketSink(config), nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreatePacketSinkWithConfig",
		"type":     "udp",
		"remote":   config.RemoteAddr,
	}).Info("Creating UDP packet sink")

	sink, err := real.NewUDPPacketSink(config)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// WithRemoteAddr sets the destination recorded in the test configuration.
func WithRemoteAddr(addr string) TestConfigOption {
	return func(c *interfaces.PacketSinkConfig) {
		c.RemoteAddr = addr
	}
}

// WithRetryAttempts sets custom retry attempts for the test configuration.
func WithRetryAttempts(retries int) TestConfigOption {
	return func(c *interfaces.PacketSinkConfig) {
		c.RetryAttempts = retries
	}
}

// CreateSimulationForTesting creates a simulated sink regardless of the
// factory's mode.
func (f *PacketSinkFactory) CreateSimulationForTesting(opts ...TestConfigOption) *testing.SimulatedPacketSink {
	testConfig := &interfaces.PacketSinkConfig{
		UseSimulation: true,
		WriteTimeout:  0,
		RetryAttempts: 1,
	}
	for _, opt := range opts {
		opt(testConfig)
	}
	return testing.NewSimulatedPacketSink(testConfig)
}

// SwitchToSimulation switches the configuration to use simulation
func (f *PacketSinkFactory) SwitchToSimulation() {
	f.setSimulation(true)
}

// SwitchToReal switches the configuration to use UDP
func (f *PacketSinkFactory) SwitchToReal() {
	f.setSimulation(false)
}

func (f *PacketSinkFactory) setSimulation(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "setSimulation",
		"previous": f.defaultConfig.UseSimulation,
		"current":  enabled,
	}).Info("Switching packet sink factory mode")

	f.defaultConfig.UseSimulation = enabled
}

// SetRemoteAddr changes the destination used by CreatePacketSink.
func (f *PacketSinkFactory) SetRemoteAddr(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultConfig.RemoteAddr = addr
}

// GetCurrentConfig returns a copy of the current default configuration
func (f *PacketSinkFactory) GetCurrentConfig() *interfaces.PacketSinkConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	config := *f.defaultConfig
	return &config
}

// IsUsingSimulation returns true if the factory is configured for simulation
func (f *PacketSinkFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig.UseSimulation
}

// UpdateConfig replaces the factory's default configuration
func (f *PacketSinkFactory) UpdateConfig(config *interfaces.PacketSinkConfig) error {
	if config == nil {
		return ErrNilConfig
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": config.UseSimulation,
		"old_remote":     f.defaultConfig.RemoteAddr,
		"new_remote":     config.RemoteAddr,
	}).Info("Updating factory configuration")

	updated := *config
	f.defaultConfig = &updated
	return nil
}

// Package config provides YAML based configuration loading for the example
// programs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	// Transport selects the channel: "i2c" for a bus master on the host,
	// "bridge" for a sensor bridge on a serial port.
	Transport string `mapstructure:"transport"`

	I2C      I2CConfig      `mapstructure:"i2c"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Device   DeviceConfig   `mapstructure:"device"`
	Sampling SamplingConfig `mapstructure:"sampling"`
	Log      LogConfig      `mapstructure:"log"`
}

// I2CConfig configures a host I2C bus.
type I2CConfig struct {
	// Bus is the periph bus name or number, "" for the first one.
	Bus string `mapstructure:"bus"`
	// SpeedHz is the bus clock, 0 to keep the current one.
	SpeedHz int64 `mapstructure:"speed_hz"`
}

// BridgeConfig configures a sensor bridge on a serial port.
type BridgeConfig struct {
	SerialPort   string `mapstructure:"serial_port"`
	Baud         int    `mapstructure:"baud"`
	SlaveAddress int    `mapstructure:"slave_address"` // SHDLC address of the bridge
	Port         int    `mapstructure:"port"`          // bridge port of the peripheral
}

// DeviceConfig configures the peripheral.
type DeviceConfig struct {
	Address int           `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SamplingConfig configures the measurement loop.
type SamplingConfig struct {
	Warmup       time.Duration `mapstructure:"warmup"`
	Interval     time.Duration `mapstructure:"interval"`
	Count        int           `mapstructure:"count"`
	IgnoreErrors bool          `mapstructure:"ignore_errors"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns a Config populated with defaults for a peripheral at 0x29
// on the first host bus.
func Default() *Config {
	return &Config{
		Transport: "i2c",
		I2C: I2CConfig{
			SpeedHz: 100000,
		},
		Bridge: BridgeConfig{
			SerialPort: "/dev/ttyUSB0",
			Baud:       460800,
		},
		Device: DeviceConfig{
			Address: 0x29,
			Timeout: time.Second,
		},
		Sampling: SamplingConfig{
			Warmup:   500 * time.Millisecond,
			Interval: time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// EnvPrefix is the prefix of environment overrides, e.g.
// I2CADAPTER_DEVICE_ADDRESS=41.
const EnvPrefix = "I2CADAPTER"

// Load reads configuration from path. If path is empty, it uses
// $I2CADAPTER_CONFIG or searches for i2cadapter.yaml in the working directory
// and ~/.i2cadapter. A missing file is not an error. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("transport", cfg.Transport)
	v.SetDefault("i2c.bus", cfg.I2C.Bus)
	v.SetDefault("i2c.speed_hz", cfg.I2C.SpeedHz)
	v.SetDefault("bridge.serial_port", cfg.Bridge.SerialPort)
	v.SetDefault("bridge.baud", cfg.Bridge.Baud)
	v.SetDefault("bridge.slave_address", cfg.Bridge.SlaveAddress)
	v.SetDefault("bridge.port", cfg.Bridge.Port)
	v.SetDefault("device.address", cfg.Device.Address)
	v.SetDefault("device.timeout", cfg.Device.Timeout)
	v.SetDefault("sampling.warmup", cfg.Sampling.Warmup)
	v.SetDefault("sampling.interval", cfg.Sampling.Interval)
	v.SetDefault("sampling.count", cfg.Sampling.Count)
	v.SetDefault("sampling.ignore_errors", cfg.Sampling.IgnoreErrors)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("i2cadapter")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".i2cadapter"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills in empty optional values.
func (c *Config) Validate() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	switch c.Transport {
	case "i2c", "bridge":
	default:
		return fmt.Errorf("invalid transport: %q", c.Transport)
	}
	if c.Device.Address < 0 || c.Device.Address > 0x3FF {
		return fmt.Errorf("invalid device.address: 0x%x", c.Device.Address)
	}
	if c.Device.Timeout < 0 {
		return fmt.Errorf("invalid device.timeout: %v", c.Device.Timeout)
	}
	if c.Transport == "bridge" {
		if c.Bridge.SerialPort == "" {
			return errors.New("bridge.serial_port is required")
		}
		if c.Bridge.Port < 0 || c.Bridge.Port > 1 {
			return fmt.Errorf("invalid bridge.port: %d", c.Bridge.Port)
		}
		if c.Bridge.SlaveAddress < 0 || c.Bridge.SlaveAddress > 0xFF {
			return fmt.Errorf("invalid bridge.slave_address: %d", c.Bridge.SlaveAddress)
		}
	}
	if c.Sampling.Interval <= 0 {
		return fmt.Errorf("invalid sampling.interval: %v", c.Sampling.Interval)
	}
	if c.Sampling.Count < 0 {
		return fmt.Errorf("invalid sampling.count: %d", c.Sampling.Count)
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	return nil
}

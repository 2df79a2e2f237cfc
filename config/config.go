// Package config loads the imu command line settings from defaults, an optional YAML file and
// IMU_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/imu"
	"github.com/mklimuk/imu/acquisition"
)

const (
	AppName    = "imu"
	ConfigName = "config"
	EnvPrefix  = "IMU"
)

// Adapters
const (
	AdapterFT232H  = "ft232h"
	AdapterMCP2221 = "mcp2221"
	AdapterI2CDev  = "i2cdev"
	AdapterNanoPi  = "nanopi"
	AdapterSim     = "sim"
)

var Adapters = []string{AdapterFT232H, AdapterMCP2221, AdapterI2CDev, AdapterNanoPi, AdapterSim}

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Adapter selects the bus binding.
	Adapter string `mapstructure:"adapter" yaml:"adapter"`
	// Channel is the bridge index for USB adapters.
	Channel int `mapstructure:"channel" yaml:"channel"`
	// Device is the i2c-dev bus name, empty picks the first one.
	Device string `mapstructure:"device" yaml:"device"`
	// Bus is the board I2C bus number for the nanopi adapter.
	Bus       int    `mapstructure:"bus" yaml:"bus"`
	ClockRate uint32 `mapstructure:"clock_rate" yaml:"clock_rate"`
	// ExactBursts disables fast-transfer framing so short burst reads are reported.
	ExactBursts bool          `mapstructure:"exact_bursts" yaml:"exact_bursts"`
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	Rate        int           `mapstructure:"rate" yaml:"rate"`
	FIFORate    int           `mapstructure:"fifo_rate" yaml:"fifo_rate"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	Listen      string        `mapstructure:"listen" yaml:"listen"`
}

func Default() Config {
	acq := acquisition.DefaultConfig()
	return Config{
		Adapter:   AdapterFT232H,
		ClockRate: imu.ClockFastModePlus,
		Mode:      string(acq.Mode),
		Rate:      acq.Rate,
		FIFORate:  acq.FIFORate,
		Interval:  acq.Interval,
		Listen:    ":8080",
	}
}

// DefaultPath is where `imu config init` writes the template.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ConfigName+".yaml")
	}
	return filepath.Join(home, ".config", AppName, ConfigName+".yaml")
}

func searchPaths() []string {
	paths := []string{filepath.Join("/etc", AppName), "./"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, ".config", AppName)}, paths...)
	}
	return paths
}

// Load reads the configuration. An explicit path must exist, otherwise the search paths are tried
// and a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("adapter", def.Adapter)
	v.SetDefault("channel", def.Channel)
	v.SetDefault("device", def.Device)
	v.SetDefault("bus", def.Bus)
	v.SetDefault("clock_rate", def.ClockRate)
	v.SetDefault("exact_bursts", def.ExactBursts)
	v.SetDefault("mode", def.Mode)
	v.SetDefault("rate", def.Rate)
	v.SetDefault("fifo_rate", def.FIFORate)
	v.SetDefault("interval", def.Interval)
	v.SetDefault("listen", def.Listen)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, p := range searchPaths() {
			v.AddConfigPath(p)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
	case path == "" && errors.As(err, &notFound):
	default:
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}

	var c Config
	err = v.Unmarshal(&c)
	if err != nil {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	return c, c.Validate()
}

// Used reports the file Load would read, if any.
func Used(path string) string {
	if path != "" {
		return path
	}
	for _, p := range searchPaths() {
		f := filepath.Join(p, ConfigName+".yaml")
		if _, err := os.Stat(f); err == nil {
			return f
		}
	}
	return ""
}

func (c Config) Validate() error {
	if !slices.Contains(Adapters, c.Adapter) {
		return fmt.Errorf("%w: unknown adapter %q, expected one of %s", ErrInvalidConfig, c.Adapter, strings.Join(Adapters, ", "))
	}
	switch acquisition.Mode(c.Mode) {
	case acquisition.ModePolling, acquisition.ModeFIFO:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Channel < 0 {
		return fmt.Errorf("%w: negative channel %d", ErrInvalidConfig, c.Channel)
	}
	return nil
}

// Acquisition returns the worker settings.
func (c Config) Acquisition() acquisition.Config {
	return acquisition.Config{
		Mode:     acquisition.Mode(c.Mode),
		Rate:     c.Rate,
		FIFORate: c.FIFORate,
		Interval: c.Interval,
	}
}

// WriteTemplate writes c as YAML to path, creating parent directories.
func WriteTemplate(path string, c Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create config file: %w", err)
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	err = enc.Encode(c)
	if err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	return enc.Close()
}

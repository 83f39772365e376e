package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSampleRate = 2048000
	DefaultFrequency  = 100000000
	DefaultBufLength  = 16 * 16384
	MinimalBufLength  = 512
	MaximalBufLength  = 256 * 16384

	DefaultBaudrate    = 921600
	DefaultPayloadSize = 4096
)

const (
	TransportRTLTCP = "rtltcp"
	TransportSerial = "serial"
	TransportReplay = "replay"
)

type Config struct {
	Transport      string  `yaml:"transport"`
	Device         string  `yaml:"device"`
	Frequency      uint32  `yaml:"frequency"`
	SampleRate     uint32  `yaml:"sample_rate"`
	Gain           float64 `yaml:"gain"` // dB; 0 auto, negative selects AGC
	PPM            int     `yaml:"ppm"`
	BlockSize      int     `yaml:"block_size"`
	Samples        uint64  `yaml:"samples"` // 0 reads forever
	Sync           bool    `yaml:"sync"`
	DirectSampling bool    `yaml:"direct_sampling"`
	Output         string  `yaml:"output"`

	// Gains is the supported gain table in tenths of dB for transports that
	// cannot report one. Replay falls back to the R820T table when empty.
	Gains []int `yaml:"gains"`

	Serial   SerialConfig   `yaml:"serial"`
	AGC      AGCConfig      `yaml:"agc"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Telegraf TelegrafConfig `yaml:"telegraf"`
}

type SerialConfig struct {
	Baudrate    int `yaml:"baudrate"`
	PayloadSize int `yaml:"payload_size"`
}

type AGCConfig struct {
	Threshold    int64         `yaml:"threshold"`
	PollInterval time.Duration `yaml:"poll_interval"`
	QueueLength  int           `yaml:"queue_length"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type TelegrafConfig struct {
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Transport:  TransportRTLTCP,
		Device:     "127.0.0.1:1234",
		Frequency:  DefaultFrequency,
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBufLength,
		Serial: SerialConfig{
			Baudrate:    DefaultBaudrate,
			PayloadSize: DefaultPayloadSize,
		},
		AGC: AGCConfig{
			Threshold:    300,
			PollInterval: time.Second,
			QueueLength:  20,
		},
		Log: LogConfig{
			File:  "rtl_agc.logs",
			Level: "info",
		},
		Telegraf: TelegrafConfig{
			Interval: 100 * time.Millisecond,
		},
	}
}

// Load reads a YAML file on top of Default.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// GainTenths is the -g value as the device sees it.
func (c *Config) GainTenths() int {
	return int(math.Round(c.Gain * 10))
}

// AGCEnabled reports whether the gain selects software AGC.
func (c *Config) AGCEnabled() bool {
	return c.GainTenths() < 0
}

// BytesToRead is the capture limit in bytes, 0 for unlimited.
func (c *Config) BytesToRead() uint64 {
	return c.Samples * 2
}

// Normalize replaces out of range values with defaults and returns a
// warning for each one.
func (c *Config) Normalize() []string {
	var warnings []string
	if c.BlockSize < MinimalBufLength || c.BlockSize > MaximalBufLength {
		warnings = append(warnings, fmt.Sprintf(
			"output block size %d out of range [%d, %d], falling back to default %d",
			c.BlockSize, MinimalBufLength, MaximalBufLength, DefaultBufLength))
		c.BlockSize = DefaultBufLength
	}
	if c.BlockSize%2 != 0 {
		c.BlockSize--
		warnings = append(warnings, fmt.Sprintf("output block size rounded down to %d to keep I/Q pairs whole", c.BlockSize))
	}
	if c.AGC.PollInterval <= 0 {
		c.AGC.PollInterval = time.Second
	}
	if c.AGC.QueueLength <= 0 {
		c.AGC.QueueLength = 20
	}
	if c.Telegraf.Interval <= 0 {
		c.Telegraf.Interval = 100 * time.Millisecond
	}
	return warnings
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportRTLTCP, TransportSerial, TransportReplay:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.Device == "" {
		errs = append(errs, errors.New("device must be set"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output filename must be set ('-' for stdout)"))
	}
	if c.SampleRate == 0 {
		errs = append(errs, errors.New("sample rate must be positive"))
	}
	if c.Transport == TransportSerial {
		switch {
		case c.AGCEnabled() && len(c.Gains) < 2:
			errs = append(errs, errors.New("serial transport needs at least two gains for AGC"))
		case c.GainTenths() > 0 && len(c.Gains) == 0:
			errs = append(errs, errors.New("serial transport needs gains to pick a manual gain"))
		}
	}
	return multierr.Combine(errs...)
}

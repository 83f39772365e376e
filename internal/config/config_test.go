package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agc.yaml")
	data := `
transport: serial
device: /dev/ttyUSB0
gain: -20
output: capture.iq.zst
gains: [0, 90, 190, 290]
serial:
  baudrate: 460800
agc:
  poll_interval: 500ms
telegraf:
  addr: 127.0.0.1:4020
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport != TransportSerial || cfg.Device != "/dev/ttyUSB0" {
		t.Fatalf("transport %q device %q", cfg.Transport, cfg.Device)
	}
	if cfg.SampleRate != DefaultSampleRate {
		t.Fatalf("sample rate %d, default not kept", cfg.SampleRate)
	}
	if cfg.Serial.Baudrate != 460800 || cfg.Serial.PayloadSize != DefaultPayloadSize {
		t.Fatalf("serial %+v", cfg.Serial)
	}
	if len(cfg.Gains) != 4 {
		t.Fatalf("gains %v", cfg.Gains)
	}
	if cfg.AGC.PollInterval != 500*time.Millisecond || cfg.AGC.Threshold != 300 {
		t.Fatalf("agc %+v", cfg.AGC)
	}
	if !cfg.AGCEnabled() || cfg.GainTenths() != -200 {
		t.Fatalf("gain tenths %d", cfg.GainTenths())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestGainTenthsRounds(t *testing.T) {
	tests := []struct {
		gain float64
		want int
	}{
		{19.7, 197},
		{-20, -200},
		{0, 0},
		{49.6, 496},
	}
	for _, tt := range tests {
		c := Config{Gain: tt.gain}
		if got := c.GainTenths(); got != tt.want {
			t.Errorf("GainTenths(%v) = %d, want %d", tt.gain, got, tt.want)
		}
	}
}

func TestNormalizeBlockSize(t *testing.T) {
	tests := []struct {
		in, want int
		warn     bool
	}{
		{100, DefaultBufLength, true},
		{MaximalBufLength + 1, DefaultBufLength, true},
		{4096, 4096, false},
		{4097, 4096, true},
	}
	for _, tt := range tests {
		c := Default()
		c.BlockSize = tt.in
		warnings := c.Normalize()
		if c.BlockSize != tt.want {
			t.Errorf("block %d normalized to %d, want %d", tt.in, c.BlockSize, tt.want)
		}
		if (len(warnings) > 0) != tt.warn {
			t.Errorf("block %d: warnings %v", tt.in, warnings)
		}
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	c := Default()
	c.Transport = "usb"
	c.Device = ""
	err := c.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	if n := len(multierr.Errors(err)); n != 3 {
		t.Fatalf("got %d errors, want 3: %v", n, err)
	}
	if !strings.Contains(err.Error(), "unknown transport") {
		t.Fatalf("missing transport error: %v", err)
	}
}

func TestValidateSerialGains(t *testing.T) {
	tests := []struct {
		name  string
		gain  float64
		gains []int
		ok    bool
	}{
		{"auto without table", 0, nil, true},
		{"manual without table", 20, nil, false},
		{"manual with table", 20, []int{0, 197}, true},
		{"agc with one gain", -20, []int{0}, false},
		{"agc with table", -20, []int{0, 90, 190}, true},
	}
	for _, tt := range tests {
		c := Default()
		c.Transport = TransportSerial
		c.Device = "/dev/ttyUSB0"
		c.Output = "-"
		c.Gain = tt.gain
		c.Gains = tt.gains
		if err := c.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v", tt.name, err)
		}
	}
}

func TestBytesToRead(t *testing.T) {
	c := Config{Samples: 1000}
	if c.BytesToRead() != 2000 {
		t.Fatalf("got %d", c.BytesToRead())
	}
}

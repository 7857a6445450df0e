package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the blinkctl configuration, loaded from an optional YAML file
// and overridable with flags.
type Config struct {
	// Backend selects the driver: "sim" or "native".
	Backend string `yaml:"backend"`

	// CaptureFile, when set, receives a CBOR capture of all driver
	// traffic (readable with pkg/log.Reader).
	CaptureFile string `yaml:"capture_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ScanSeconds is the default scan duration for the scan command.
	ScanSeconds int `yaml:"scan_seconds"`
}

// DefaultConfig returns the built-in defaults: simulated backend, no
// capture, info logging, 10 second scans.
func DefaultConfig() Config {
	return Config{
		Backend:     "sim",
		LogLevel:    "info",
		ScanSeconds: 10,
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error
// when path is the default location.
func LoadConfig(path string, mustExist bool) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	switch cfg.Backend {
	case "sim", "native":
	default:
		return cfg, fmt.Errorf("config %s: unknown backend %q", path, cfg.Backend)
	}
	if cfg.ScanSeconds <= 0 {
		cfg.ScanSeconds = DefaultConfig().ScanSeconds
	}
	return cfg, nil
}

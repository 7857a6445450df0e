package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != "sim" {
		t.Errorf("Backend = %q, want sim", cfg.Backend)
	}
	if cfg.ScanSeconds != 10 {
		t.Errorf("ScanSeconds = %d, want 10", cfg.ScanSeconds)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("MissingOptional", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg != DefaultConfig() {
			t.Errorf("cfg = %+v, want defaults", cfg)
		}
	})

	t.Run("MissingRequired", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), true); err == nil {
			t.Error("LoadConfig() = nil error for a missing required file")
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blinkctl.yaml")
		data := "backend: native\nlog_level: debug\nscan_seconds: 3\ncapture_file: /tmp/cap.cbl\n"
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Backend != "native" || cfg.LogLevel != "debug" || cfg.ScanSeconds != 3 {
			t.Errorf("cfg = %+v, want file overrides applied", cfg)
		}
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blinkctl.yaml")
		if err := os.WriteFile(path, []byte("backend: serial\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path, true); err == nil {
			t.Error("LoadConfig() = nil error for an unknown backend")
		}
	})

	t.Run("BadScanSeconds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blinkctl.yaml")
		if err := os.WriteFile(path, []byte("scan_seconds: -5\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.ScanSeconds != 10 {
			t.Errorf("ScanSeconds = %d, want fallback 10", cfg.ScanSeconds)
		}
	})
}

// Command blinkctl is an interactive console for exploring BLE devices
// through the session layer: scan, connect, discover, read, write and
// subscribe from a readline prompt.
//
// With the default configuration it runs against the simulated backend and
// a pair of demo peripherals; point it at real hardware with -backend
// native or a config file.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/bluelink-stack/bluelink-go/pkg/central"
	"github.com/bluelink-stack/bluelink-go/pkg/driver"
	"github.com/bluelink-stack/bluelink-go/pkg/driver/native"
	"github.com/bluelink-stack/bluelink-go/pkg/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "blinkctl:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "blinkctl.yaml", "path to config file")
		backend    = flag.String("backend", "", "driver backend: sim or native (overrides config)")
		capture    = flag.String("capture", "", "write a CBOR driver-traffic capture to this file")
		verbose    = flag.Bool("v", false, "debug logging, including driver traffic")
	)
	flag.Parse()

	cfg, err := LoadConfig(*configPath, flagWasSet("config"))
	if err != nil {
		return err
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *capture != "" {
		cfg.CaptureFile = *capture
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel(cfg.LogLevel),
	}))

	var eventLoggers []log.Logger
	if cfg.CaptureFile != "" {
		fl, err := log.NewFileLogger(cfg.CaptureFile)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer fl.Close()
		eventLoggers = append(eventLoggers, fl)
	}
	if cfg.LogLevel == "debug" {
		eventLoggers = append(eventLoggers, log.NewSlogAdapter(logger))
	}
	var events log.Logger = log.NoopLogger{}
	if len(eventLoggers) > 0 {
		events = log.NewMultiLogger(eventLoggers...)
	}

	drv, err := newDriver(cfg)
	if err != nil {
		return err
	}

	co := central.New(drv, central.Config{
		Logger:      logger,
		EventLogger: events,
	})
	defer co.Close()

	repl, err := newREPL(co, cfg)
	if err != nil {
		return err
	}
	defer repl.Close()

	fmt.Printf("blinkctl (%s backend) — type 'help' for commands\n", cfg.Backend)
	return repl.Run()
}

func newDriver(cfg Config) (driver.Driver, error) {
	switch cfg.Backend {
	case "native":
		return native.New()
	default:
		return newDemoDriver(), nil
	}
}

func slogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

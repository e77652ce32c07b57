// GrowDash Core - edge orchestrator for hot-pluggable grow hardware.
//
// This is the main entry point. GrowDash supervises USB serial
// microcontrollers and V4L2 cameras on a single edge host: it scans
// the bus, classifies what it finds, keeps a persistent board registry,
// runs one worker per attached device and exposes everything over a
// local HTTP API. MQTT presence and InfluxDB telemetry uplinks are
// optional.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nileneb/growdash/internal/agent"
	"github.com/Nileneb/growdash/internal/api"
	"github.com/Nileneb/growdash/internal/backoff"
	"github.com/Nileneb/growdash/internal/camera"
	"github.com/Nileneb/growdash/internal/events"
	"github.com/Nileneb/growdash/internal/infrastructure/config"
	"github.com/Nileneb/growdash/internal/infrastructure/database"
	"github.com/Nileneb/growdash/internal/infrastructure/influxdb"
	"github.com/Nileneb/growdash/internal/infrastructure/logging"
	"github.com/Nileneb/growdash/internal/infrastructure/mqtt"
	"github.com/Nileneb/growdash/internal/lease"
	"github.com/Nileneb/growdash/internal/registry"
	"github.com/Nileneb/growdash/internal/serial"
	"github.com/Nileneb/growdash/internal/supervisor"
	"github.com/Nileneb/growdash/internal/telemetry"
	"github.com/Nileneb/growdash/internal/usb"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting GrowDash Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the journal database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	journal, err := events.NewJournal(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("initialising event journal: %w", err)
	}

	// Bus scanner and board registry
	scanner := usb.NewScanner()
	scanner.SetLogger(log.Component("usb"))

	detector := registry.NewCLIDetector(cfg.Registry.DetectTool, cfg.DetectTimeout())
	reg := registry.New(cfg.Registry.Path, scanner, detector)
	reg.SetLogger(log.Component("registry"))

	if refreshed, refreshErr := refreshRegistry(ctx, cfg, reg, journal, log); refreshErr != nil {
		// A failed initial refresh is not fatal: the supervisor sees
		// devices directly and a later refresh can fill in board info.
		log.Warn("initial registry refresh failed", "error", refreshErr)
	} else if refreshed {
		log.Info("registry refreshed", "devices", len(reg.All()))
	} else {
		log.Info("registry loaded from disk", "devices", len(reg.All()))
	}

	// Camera source with leased device access
	camSource := camera.NewSource(
		func(key string) (lease.Resource, error) {
			return camera.OpenDevice(key, cameraOptions(cfg))
		},
		cfg.CameraIdleTimeout(),
		cfg.CameraSweepInterval(),
		backoff.DefaultPolicy(),
	)
	camSource.SetLogger(log.Component("camera"))
	defer func() {
		log.Info("shutting down camera source")
		camSource.Shutdown()
	}()

	// Optional MQTT uplink
	var notifier supervisor.Notifier
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		notifier = mqtt.NewPresence(mqttClient, log)
	} else {
		log.Info("MQTT disabled")
	}

	// Device supervisor
	resolver := agent.NewResolver(cfg.Agent, log)
	sup := supervisor.New(
		scanner,
		resolver,
		func(dev usb.Device) (supervisor.Session, error) {
			sess, openErr := serial.Open(dev.Path, cfg.Serial.BaudRate, cfg.Serial.LogCapacity)
			if openErr != nil {
				return nil, openErr
			}
			sess.SetLogger(log.Component("serial"))
			return sess, nil
		},
		supervisor.Options{
			ScanInterval: cfg.ScanInterval(),
			StopTimeout:  cfg.StopTimeout(),
			Backoff:      backoff.DefaultPolicy(),
			Journal:      journal,
			Notifier:     notifier,
		},
	)
	sup.SetLogger(log.Component("supervisor"))

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()
	log.Info("supervisor started", "scan_interval", cfg.ScanInterval())

	// Telemetry sinks. The pump only runs when at least one backend
	// can take readings.
	var sinks []telemetry.Sink
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}
	if mqttClient != nil {
		sinks = append(sinks, mqtt.NewTelemetry(mqttClient, byte(cfg.MQTT.QoS), log))
	}
	if len(sinks) > 0 {
		pump := telemetry.NewPump(sup, telemetry.MultiSink(sinks...), cfg.TelemetryInterval())
		pump.SetLogger(log.Component("telemetry"))
		go pump.Run(ctx)
		log.Info("telemetry pump started", "interval", cfg.TelemetryInterval(), "sinks", len(sinks))
	}

	// Periodic registry staleness check
	go registryRefreshLoop(ctx, cfg, reg, journal, log)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg,
		Logger:     log,
		Registry:   reg,
		Supervisor: sup,
		Executor:   agent.NewExecutor(cfg.RequestTimeout()),
		Camera:     camSource,
		Journal:    journal,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}

	// Wait for the supervisor to stop every device worker before the
	// deferred infrastructure teardown runs.
	<-supDone

	log.Info("GrowDash Core stopped")
	return nil
}

// loadConfig reads the config file, falling back to built-in defaults
// when no file exists at the resolved path.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info("no config file found, using defaults", "path", path)
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Info("configuration loaded", "path", path)
	return cfg, nil
}

// getConfigPath returns the configuration file path.
// Uses GROWDASH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GROWDASH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// cameraOptions maps the config's capture settings onto the device
// open options, converting to the widths the V4L2 layer expects.
func cameraOptions(cfg *config.Config) camera.Options {
	return camera.Options{
		Width:  uint32(cfg.Camera.Width),
		Height: uint32(cfg.Camera.Height),
		FPS:    float32(cfg.Camera.FPS),
	}
}

// refreshRegistry re-runs board detection when the registry is stale
// and journals the refresh so the event history shows when board info
// changed. A journal write failure only logs; the refresh itself stands.
func refreshRegistry(ctx context.Context, cfg *config.Config, reg *registry.Registry, journal supervisor.Recorder, log *logging.Logger) (bool, error) {
	refreshed, err := reg.RefreshIfStale(ctx, cfg.RegistryMaxAge())
	if err != nil || !refreshed {
		return refreshed, err
	}
	if journal != nil {
		ev := &events.Event{
			Type: events.TypeRegistryRefresh,
			Details: map[string]any{
				"devices": len(reg.All()),
			},
		}
		if recErr := journal.Record(ctx, ev); recErr != nil {
			log.Warn("event record failed", "type", ev.Type, "error", recErr)
		}
	}
	return true, nil
}

// registryRefreshLoop re-runs board detection when the registry goes
// stale. Detection is expensive (it spawns an external tool), so the
// check interval and the staleness threshold are separate knobs.
func registryRefreshLoop(ctx context.Context, cfg *config.Config, reg *registry.Registry, journal supervisor.Recorder, log *logging.Logger) {
	interval := cfg.RegistryCheckInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshed, err := refreshRegistry(ctx, cfg, reg, journal, log)
			if err != nil {
				log.Warn("periodic registry refresh failed", "error", err)
			} else if refreshed {
				log.Info("registry refreshed", "devices", len(reg.All()))
			}
		}
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the GrowDash edge core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Registry   RegistryConfig   `yaml:"registry"`
	Serial     SerialConfig     `yaml:"serial"`
	Camera     CameraConfig     `yaml:"camera"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Agent      AgentConfig      `yaml:"agent"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	API        APIConfig        `yaml:"api"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig contains SQLite settings for the hot-plug event journal.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RegistryConfig contains board registry persistence and detection settings.
type RegistryConfig struct {
	// Path is the JSON registry file (safe to delete; forces a full rescan).
	Path string `yaml:"path"`

	// DetectTool is the path to the external board-detection binary.
	DetectTool string `yaml:"detect_tool"`

	// DetectTimeoutSeconds bounds a single per-port detection call.
	DetectTimeoutSeconds int `yaml:"detect_timeout_seconds"`

	// MaxAgeSeconds is the staleness threshold for refresh_if_stale.
	MaxAgeSeconds int `yaml:"max_age_seconds"`

	// CheckIntervalSeconds is how often the staleness check loop runs.
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
}

// SerialConfig contains serial session settings.
type SerialConfig struct {
	BaudRate int `yaml:"baud_rate"`

	// RequestTimeoutSeconds is the default send_and_wait timeout.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// LogCapacity is the maximum number of retained unsolicited lines per session.
	LogCapacity int `yaml:"log_capacity"`
}

// CameraConfig contains camera capture and lease settings.
type CameraConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`

	// IdleTimeoutSeconds is how long a camera with zero clients stays open.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`

	// SweepIntervalSeconds is the lease sweeper cadence.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// SupervisorConfig contains the scan/diff loop settings.
type SupervisorConfig struct {
	// ScanIntervalSeconds is the hot-plug scan cadence.
	ScanIntervalSeconds int `yaml:"scan_interval_seconds"`

	// StopTimeoutSeconds bounds the join on each stopping device worker.
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds"`
}

// AgentConfig contains per-device identity assignment settings.
type AgentConfig struct {
	// IDPrefix is used when deriving identities for unbound ports.
	IDPrefix string `yaml:"id_prefix"`

	// Bindings statically assign credentials to ports. Duplicate ports are
	// resolved last-write-wins with a warning at startup.
	Bindings []PortBinding `yaml:"bindings"`
}

// PortBinding statically maps a serial port to device credentials.
type PortBinding struct {
	Port     string `yaml:"port"`
	PublicID string `yaml:"public_id"`
	Token    string `yaml:"token"`
}

// TelemetryConfig contains telemetry pump settings.
type TelemetryConfig struct {
	// IntervalSeconds is how often session logs are drained for
	// telemetry readings.
	IntervalSeconds int `yaml:"interval_seconds"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains MQTT uplink settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains telemetry time-series settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GROWDASH_SECTION_KEY
// For example: GROWDASH_REGISTRY_PATH, GROWDASH_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// It is also used directly when no config file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/growdash.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Registry: RegistryConfig{
			Path:                 "./data/boards.json",
			DetectTool:           "/usr/local/bin/arduino-cli",
			DetectTimeoutSeconds: 10,
			MaxAgeSeconds:        3600,
			CheckIntervalSeconds: 300,
		},
		Serial: SerialConfig{
			BaudRate:              9600,
			RequestTimeoutSeconds: 3,
			LogCapacity:           2048,
		},
		Camera: CameraConfig{
			Width:                800,
			Height:               450,
			FPS:                  8,
			IdleTimeoutSeconds:   30,
			SweepIntervalSeconds: 5,
		},
		Supervisor: SupervisorConfig{
			ScanIntervalSeconds: 30,
			StopTimeoutSeconds:  5,
		},
		Agent: AgentConfig{
			IDPrefix: "growdash",
		},
		Telemetry: TelemetryConfig{
			IntervalSeconds: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read: 30,
				// Write stays zero: the MJPEG stream endpoint must not be
				// cut off by a server-wide write deadline.
				Write: 0,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "growdash-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GROWDASH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROWDASH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GROWDASH_REGISTRY_PATH"); v != "" {
		cfg.Registry.Path = v
	}
	if v := os.Getenv("GROWDASH_DETECT_TOOL"); v != "" {
		cfg.Registry.DetectTool = v
	}
	if v := os.Getenv("GROWDASH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GROWDASH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("GROWDASH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GROWDASH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GROWDASH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GROWDASH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Registry.Path == "" {
		errs = append(errs, "registry.path is required")
	}
	if c.Registry.DetectTimeoutSeconds <= 0 {
		errs = append(errs, "registry.detect_timeout_seconds must be positive")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	if c.Serial.LogCapacity <= 0 {
		errs = append(errs, "serial.log_capacity must be positive")
	}
	if c.Supervisor.ScanIntervalSeconds <= 0 {
		errs = append(errs, "supervisor.scan_interval_seconds must be positive")
	}
	if c.Supervisor.StopTimeoutSeconds <= 0 {
		errs = append(errs, "supervisor.stop_timeout_seconds must be positive")
	}
	if c.Telemetry.IntervalSeconds <= 0 {
		errs = append(errs, "telemetry.interval_seconds must be positive")
	}
	if c.Camera.SweepIntervalSeconds <= 0 {
		errs = append(errs, "camera.sweep_interval_seconds must be positive")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DetectTimeout returns the per-port detection timeout as a Duration.
func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.Registry.DetectTimeoutSeconds) * time.Second
}

// RegistryMaxAge returns the registry staleness threshold as a Duration.
func (c *Config) RegistryMaxAge() time.Duration {
	return time.Duration(c.Registry.MaxAgeSeconds) * time.Second
}

// RegistryCheckInterval returns the staleness check cadence as a Duration.
func (c *Config) RegistryCheckInterval() time.Duration {
	return time.Duration(c.Registry.CheckIntervalSeconds) * time.Second
}

// ScanInterval returns the supervisor scan cadence as a Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Supervisor.ScanIntervalSeconds) * time.Second
}

// StopTimeout returns the per-worker stop timeout as a Duration.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Supervisor.StopTimeoutSeconds) * time.Second
}

// RequestTimeout returns the default send_and_wait timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Serial.RequestTimeoutSeconds) * time.Second
}

// TelemetryInterval returns the telemetry pump cadence as a Duration.
func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.Telemetry.IntervalSeconds) * time.Second
}

// CameraIdleTimeout returns the lease idle threshold as a Duration.
func (c *Config) CameraIdleTimeout() time.Duration {
	return time.Duration(c.Camera.IdleTimeoutSeconds) * time.Second
}

// CameraSweepInterval returns the lease sweeper cadence as a Duration.
func (c *Config) CameraSweepInterval() time.Duration {
	return time.Duration(c.Camera.SweepIntervalSeconds) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Package config loads and persists the gateway configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/geiger-gateway/internal/logic"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/geiger-gateway/config.yaml"

// envPrefix is prepended to every environment override.
const envPrefix = "GEIGER_"

// Config is the root configuration structure.
// Values are loaded from defaults, then YAML, then environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Intervals IntervalsConfig `yaml:"intervals"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Identity  IdentityConfig  `yaml:"identity"`
}

// MQTTConfig holds the broker record and link tuning.
type MQTTConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	Topic          string          `yaml:"topic"`
	Username       string          `yaml:"username"`
	Password       string          `yaml:"password"`
	KeepAlive      time.Duration   `yaml:"keep_alive"`
	ConnectTimeout time.Duration   `yaml:"connect_timeout"`
	PublishTimeout time.Duration   `yaml:"publish_timeout"`
	PayloadLimit   int             `yaml:"payload_limit"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig bounds a reconnect sequence.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// SensorConfig describes the tube and how it is wired.
type SensorConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
	// Tube selects a preset factor. TubeFactor, when non-zero, wins.
	Tube        string  `yaml:"tube"`
	TubeFactor  float64 `yaml:"tube_factor"`
	LogPeriodMs uint32  `yaml:"log_period_ms"`
}

// IntervalsConfig holds the loop cadences.
type IntervalsConfig struct {
	KeepAlive time.Duration `yaml:"keep_alive"`
	Network   time.Duration `yaml:"network"`
	Tick      time.Duration `yaml:"tick"`
}

// HTTPConfig holds the status server settings. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating log file settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// InfluxDBConfig contains the optional dose history sink.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// IdentityConfig controls how the device identity is derived.
type IdentityConfig struct {
	FirmwarePrefix string `yaml:"firmware_prefix"`
	StateFile      string `yaml:"state_file"`
}

// Default returns a Config with the stock gateway settings.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:           "localhost",
			Port:           1883,
			Topic:          "hab/devices/sensors/environment/radiation",
			KeepAlive:      10 * time.Second,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
			PayloadLimit:   256,
			Reconnect: ReconnectConfig{
				MaxAttempts: 3,
				RetryDelay:  5 * time.Second,
				Cooldown:    time.Minute,
			},
		},
		Sensor: SensorConfig{
			Chip:        "gpiochip0",
			Line:        27,
			Tube:        logic.DefaultTube,
			LogPeriodMs: 60000,
		},
		Intervals: IntervalsConfig{
			KeepAlive: time.Minute,
			Network:   30 * time.Minute,
			Tick:      100 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File: FileLoggingConfig{
				Path:       "/var/log/geiger-gateway/gateway.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:    "http://localhost:8086",
			Bucket: "radiation",
		},
		Identity: IdentityConfig{
			FirmwarePrefix: "geiger-gateway",
			StateFile:      "/var/lib/geiger-gateway/device-id",
		},
	}
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// On any error the returned Config is nil; callers fall back to Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied. It is the
// fallback when no usable config file exists.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration atomically: a temp file in the same
// directory is fully written and synced, then renamed over path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming config file: %w", err)
	}
	return nil
}

// BrokerURL returns the paho broker address.
func (m MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", m.Host, m.Port)
}

// ResolveTubeFactor returns the configured factor, falling back to the preset.
func (s SensorConfig) ResolveTubeFactor() (float64, error) {
	if s.TubeFactor != 0 {
		return s.TubeFactor, nil
	}
	f, ok := logic.TubeFactor(s.Tube)
	if !ok {
		return 0, fmt.Errorf("unknown tube %q", s.Tube)
	}
	return f, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.MQTT.Host == "" {
		errs = append(errs, errors.New("mqtt.host is required"))
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required"))
	}
	if strings.ContainsAny(c.MQTT.Topic, "#+") {
		errs = append(errs, fmt.Errorf("mqtt.topic %q must not contain wildcards", c.MQTT.Topic))
	}
	if c.MQTT.PayloadLimit <= 0 {
		errs = append(errs, errors.New("mqtt.payload_limit must be positive"))
	}
	if c.MQTT.Reconnect.MaxAttempts < 1 {
		errs = append(errs, errors.New("mqtt.reconnect.max_attempts must be at least 1"))
	}
	if c.MQTT.Reconnect.RetryDelay < 0 || c.MQTT.Reconnect.Cooldown < 0 {
		errs = append(errs, errors.New("mqtt.reconnect delays must not be negative"))
	}

	if c.Sensor.LogPeriodMs == 0 || c.Sensor.LogPeriodMs > logic.MillisPerMinute {
		errs = append(errs, fmt.Errorf("sensor.log_period_ms %d must be in 1..60000", c.Sensor.LogPeriodMs))
	}
	if _, err := c.Sensor.ResolveTubeFactor(); err != nil {
		errs = append(errs, fmt.Errorf("sensor: %w", err))
	}

	if c.Intervals.KeepAlive <= 0 || c.Intervals.Network <= 0 || c.Intervals.Tick <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, errors.New("influxdb.url and influxdb.bucket are required when enabled"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies GEIGER_* environment variables to the broker record.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %sMQTT_PORT: %w", envPrefix, err)
		}
		cfg.MQTT.Port = port
	}
	if v := os.Getenv(envPrefix + "MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	return nil
}

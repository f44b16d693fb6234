package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Adapter     string            `yaml:"adapter"` // "tinygo" or "hci"
	Device      DeviceConfig      `yaml:"device"`
	Scan        ScanConfig        `yaml:"scan"`
	Session     SessionConfig     `yaml:"session"`
	Permissions PermissionsConfig `yaml:"permissions"`
	StorePath   string            `yaml:"store_path"`
	LogLevel    string            `yaml:"log_level"`
}

// DeviceConfig holds the GATT identifiers shared with the peripheral firmware.
type DeviceConfig struct {
	ServiceUUID  string `yaml:"service_uuid"`
	ReadUUID     string `yaml:"read_uuid"`
	WriteUUID    string `yaml:"write_uuid"`
	NotifyUUID   string `yaml:"notify_uuid"`
	IndicateUUID string `yaml:"indicate_uuid"`
}

// ScanConfig holds scan settings.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"` // 0 scans until a match or disconnect
}

// SessionConfig holds connection session settings.
type SessionConfig struct {
	OperationTimeout  time.Duration `yaml:"operation_timeout"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`
	MaxWriteBytes     int           `yaml:"max_write_bytes"`
}

// PermissionsConfig holds permission gate settings.
type PermissionsConfig struct {
	Mode string `yaml:"mode"` // "prompt" or "grant"
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blecentral")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultStorePath returns the default key-value store path.
func DefaultStorePath() string {
	return filepath.Join(DefaultConfigDir(), "state.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Adapter: "tinygo",
		Device: DeviceConfig{
			ServiceUUID:  "00000000-0000-1111-1111-111111111111",
			ReadUUID:     "00000000-1111-1111-1111-111111111111",
			WriteUUID:    "00000000-2222-1111-1111-111111111111",
			NotifyUUID:   "00000000-3333-1111-1111-111111111111",
			IndicateUUID: "00000000-4444-1111-1111-111111111111",
		},
		Scan: ScanConfig{
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{
			OperationTimeout:  10 * time.Second,
			DisconnectTimeout: 5 * time.Second,
			MaxWriteBytes:     512,
		},
		Permissions: PermissionsConfig{
			Mode: "prompt",
		},
		StorePath: DefaultStorePath(),
		LogLevel:  "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in store_path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.StorePath = expandTilde(cfg.StorePath)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" when a config
// already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# blecentral configuration\n")
	buf.WriteString("# adapter: tinygo (all platforms) or hci (linux raw HCI)\n")
	buf.WriteString("# permissions.mode: prompt (ask on the terminal) or grant\n\n")
	buf.Write(body)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Adapter {
	case "tinygo", "hci":
	default:
		return fmt.Errorf("adapter must be \"tinygo\" or \"hci\", got %q", c.Adapter)
	}

	uuids := []struct {
		field, value string
	}{
		{"device.service_uuid", c.Device.ServiceUUID},
		{"device.read_uuid", c.Device.ReadUUID},
		{"device.write_uuid", c.Device.WriteUUID},
		{"device.notify_uuid", c.Device.NotifyUUID},
		{"device.indicate_uuid", c.Device.IndicateUUID},
	}
	for _, u := range uuids {
		if _, err := uuid.Parse(u.value); err != nil {
			return fmt.Errorf("%s must be a UUID, got %q", u.field, u.value)
		}
	}

	if c.Scan.Timeout < 0 {
		return fmt.Errorf("scan.timeout must be >= 0")
	}

	if c.Session.OperationTimeout <= 0 {
		return fmt.Errorf("session.operation_timeout must be > 0")
	}

	if c.Session.DisconnectTimeout <= 0 {
		return fmt.Errorf("session.disconnect_timeout must be > 0")
	}

	if c.Session.MaxWriteBytes <= 0 || c.Session.MaxWriteBytes > 512 {
		return fmt.Errorf("session.max_write_bytes must be between 1 and 512, got %d", c.Session.MaxWriteBytes)
	}

	switch c.Permissions.Mode {
	case "prompt", "grant":
	default:
		return fmt.Errorf("permissions.mode must be \"prompt\" or \"grant\", got %q", c.Permissions.Mode)
	}

	if c.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Adapter != "tinygo" {
		t.Errorf("Adapter = %q, want %q", cfg.Adapter, "tinygo")
	}
	if cfg.Device.ServiceUUID != "00000000-0000-1111-1111-111111111111" {
		t.Errorf("Device.ServiceUUID = %q", cfg.Device.ServiceUUID)
	}
	if cfg.Device.WriteUUID != "00000000-2222-1111-1111-111111111111" {
		t.Errorf("Device.WriteUUID = %q", cfg.Device.WriteUUID)
	}
	if cfg.Session.MaxWriteBytes != 512 {
		t.Errorf("Session.MaxWriteBytes = %d, want 512", cfg.Session.MaxWriteBytes)
	}
	if cfg.Permissions.Mode != "prompt" {
		t.Errorf("Permissions.Mode = %q, want %q", cfg.Permissions.Mode, "prompt")
	}
	if cfg.StorePath == "" {
		t.Error("StorePath should not be empty")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
adapter: hci
device:
  service_uuid: "19b10000-e8f2-537e-4f6c-d104768a1214"
scan:
  timeout: 5s
session:
  operation_timeout: 2s
  disconnect_timeout: 1500ms
  max_write_bytes: 180
permissions:
  mode: grant
store_path: /tmp/blecentral-state.yaml
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Adapter != "hci" {
		t.Errorf("Adapter = %q, want %q", cfg.Adapter, "hci")
	}
	if cfg.Device.ServiceUUID != "19b10000-e8f2-537e-4f6c-d104768a1214" {
		t.Errorf("Device.ServiceUUID = %q", cfg.Device.ServiceUUID)
	}
	// Unset fields keep their defaults.
	if cfg.Device.ReadUUID != "00000000-1111-1111-1111-111111111111" {
		t.Errorf("Device.ReadUUID = %q, want default", cfg.Device.ReadUUID)
	}
	if cfg.Scan.Timeout != 5*time.Second {
		t.Errorf("Scan.Timeout = %v, want 5s", cfg.Scan.Timeout)
	}
	if cfg.Session.OperationTimeout != 2*time.Second {
		t.Errorf("Session.OperationTimeout = %v, want 2s", cfg.Session.OperationTimeout)
	}
	if cfg.Session.DisconnectTimeout != 1500*time.Millisecond {
		t.Errorf("Session.DisconnectTimeout = %v, want 1.5s", cfg.Session.DisconnectTimeout)
	}
	if cfg.Session.MaxWriteBytes != 180 {
		t.Errorf("Session.MaxWriteBytes = %d, want 180", cfg.Session.MaxWriteBytes)
	}
	if cfg.Permissions.Mode != "grant" {
		t.Errorf("Permissions.Mode = %q, want %q", cfg.Permissions.Mode, "grant")
	}
	if cfg.StorePath != "/tmp/blecentral-state.yaml" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
store_path: ~/state/blecentral.yaml
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "state/blecentral.yaml")
	if cfg.StorePath != expected {
		t.Errorf("StorePath = %q, want %q", cfg.StorePath, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("adapter: [unterminated"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should return error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid adapter",
			modify:  func(c *Config) { c.Adapter = "bluez" },
			wantErr: true,
		},
		{
			name:    "invalid service uuid",
			modify:  func(c *Config) { c.Device.ServiceUUID = "not-a-uuid" },
			wantErr: true,
		},
		{
			name:    "empty notify uuid",
			modify:  func(c *Config) { c.Device.NotifyUUID = "" },
			wantErr: true,
		},
		{
			name:    "negative scan timeout",
			modify:  func(c *Config) { c.Scan.Timeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero scan timeout scans forever",
			modify:  func(c *Config) { c.Scan.Timeout = 0 },
			wantErr: false,
		},
		{
			name:    "zero operation timeout",
			modify:  func(c *Config) { c.Session.OperationTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero disconnect timeout",
			modify:  func(c *Config) { c.Session.DisconnectTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "write limit above attribute maximum",
			modify:  func(c *Config) { c.Session.MaxWriteBytes = 513 },
			wantErr: true,
		},
		{
			name:    "invalid permissions mode",
			modify:  func(c *Config) { c.Permissions.Mode = "ask" },
			wantErr: true,
		},
		{
			name:    "empty store path",
			modify:  func(c *Config) { c.StorePath = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "blecentral", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# blecentral") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Session.OperationTimeout != 10*time.Second {
		t.Errorf("written config Session.OperationTimeout = %v, want 10s", cfg.Session.OperationTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "blecentral")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("adapter: hci\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Errorf("existing config was overwritten: %q", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

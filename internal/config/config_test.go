package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
rtspd:
  server:
    listen: "127.0.0.1:8554"
    max_connections: 16
    read_timeout: "5s"
    max_buffer_bytes: 8192
  parser:
    max_url_length: 256
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: false
  sink:
    type: "kafka"
    options:
      brokers: ["localhost:9092"]
      topic: "rtsp-requests"
  replay:
    ports: [8554]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:8554" {
		t.Errorf("Expected listen 127.0.0.1:8554, got %s", cfg.Server.Listen)
	}
	if cfg.Server.MaxConnections != 16 {
		t.Errorf("Expected max_connections 16, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Expected read_timeout 5s, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Parser.MaxURLLength != 256 {
		t.Errorf("Expected max_url_length 256, got %d", cfg.Parser.MaxURLLength)
	}
	// unset parser keys keep their defaults
	if cfg.Parser.MaxMethodLength != 64 {
		t.Errorf("Expected max_method_length 64, got %d", cfg.Parser.MaxMethodLength)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Expected log debug/json, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled")
	}
	if cfg.Sink.Type != "kafka" {
		t.Errorf("Expected sink kafka, got %s", cfg.Sink.Type)
	}
	if cfg.Sink.Options["topic"] != "rtsp-requests" {
		t.Errorf("Expected sink topic rtsp-requests, got %v", cfg.Sink.Options["topic"])
	}
	if len(cfg.Replay.Ports) != 1 || cfg.Replay.Ports[0] != 8554 {
		t.Errorf("Expected replay ports [8554], got %v", cfg.Replay.Ports)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Server.Listen != ":554" {
		t.Errorf("Expected default listen :554, got %s", cfg.Server.Listen)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("Expected default read_timeout 60s, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Log.Format != "pattern" {
		t.Errorf("Expected default log format pattern, got %s", cfg.Log.Format)
	}
	if cfg.Sink.Type != "console" {
		t.Errorf("Expected default sink console, got %s", cfg.Sink.Type)
	}
	limits := cfg.Parser.Limits()
	if limits.MaxLineLength != 4096 || limits.MaxURLLength != 512 {
		t.Errorf("Unexpected default parser limits: %+v", limits)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RTSPD_SERVER_LISTEN", ":9554")
	t.Setenv("RTSPD_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Listen != ":9554" {
		t.Errorf("Expected env listen :9554, got %s", cfg.Server.Listen)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env log level warn, got %s", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"log level": `
rtspd:
  log:
    level: "verbose"
`,
		"log format": `
rtspd:
  log:
    format: "xml"
`,
		"sink type": `
rtspd:
  sink:
    type: "redis"
`,
		"buffer smaller than line": `
rtspd:
  server:
    max_buffer_bytes: 1024
  parser:
    max_line_length: 4096
`,
		"replay port": `
rtspd:
  replay:
    ports: [70000]
`,
		"negative connections": `
rtspd:
  server:
    max_connections: -1
`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			if err == nil {
				t.Errorf("Expected validation error for %s, got nil", name)
			}
		})
	}
}

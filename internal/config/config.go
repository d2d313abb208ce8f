// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/rtspd/pkg/rtsp"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `rtspd:` root key in YAML.
type GlobalConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Parser  ParserConfig  `mapstructure:"parser"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Replay  ReplayConfig  `mapstructure:"replay"`
}

// ─── Server ───

// ServerConfig contains the RTSP listener settings.
type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	MaxConnections int           `mapstructure:"max_connections"`  // 0 = unlimited
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`     // idle time before a connection is dropped
	MaxBufferBytes int           `mapstructure:"max_buffer_bytes"` // unconsumed bytes per connection
}

// ─── Parser ───

// ParserConfig bounds the tokens the request parser accepts.
type ParserConfig struct {
	MaxLineLength    int `mapstructure:"max_line_length"`
	MaxMethodLength  int `mapstructure:"max_method_length"`
	MaxURLLength     int `mapstructure:"max_url_length"`
	MaxVersionLength int `mapstructure:"max_version_length"`
	MaxHostLength    int `mapstructure:"max_host_length"`
	MaxSuffixLength  int `mapstructure:"max_suffix_length"`
}

// Limits converts the parser section into parser limits.
func (p ParserConfig) Limits() rtsp.Limits {
	return rtsp.Limits{
		MaxLineLength:    p.MaxLineLength,
		MaxMethodLength:  p.MaxMethodLength,
		MaxURLLength:     p.MaxURLLength,
		MaxVersionLength: p.MaxVersionLength,
		MaxHostLength:    p.MaxHostLength,
		MaxSuffixLength:  p.MaxSuffixLength,
	}
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string             `mapstructure:"level"`   // trace / debug / info / warn / error
	Format  string             `mapstructure:"format"`  // pattern / json / text
	Pattern string             `mapstructure:"pattern"` // used by format=pattern
	Time    string             `mapstructure:"time"`    // time layout for format=pattern
	File    FileAppenderConfig `mapstructure:"file"`
}

// FileAppenderConfig configures the rotating log file.
type FileAppenderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Sink ───

// SinkConfig selects where completed requests are reported.
type SinkConfig struct {
	Type    string         `mapstructure:"type"` // console | kafka | none
	Options map[string]any `mapstructure:"options"`
}

// ─── Replay ───

// ReplayConfig contains offline pcap replay settings.
type ReplayConfig struct {
	Ports []int `mapstructure:"ports"` // TCP destination ports carrying RTSP
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `rtspd: ...`.
type configRoot struct {
	Rtspd GlobalConfig `mapstructure:"rtspd"`
}

// Load loads configuration from file.
// The YAML file uses `rtspd:` as root key; env vars override keys with the RTSPD_ prefix
// (e.g. RTSPD_SERVER_LISTEN). An empty path loads defaults only.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "rtspd.server.listen" → env "RTSPD_SERVER_LISTEN"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Rtspd

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "rtspd." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	limits := rtsp.DefaultLimits()

	// Server defaults
	v.SetDefault("rtspd.server.listen", ":554")
	v.SetDefault("rtspd.server.max_connections", 1024)
	v.SetDefault("rtspd.server.read_timeout", "60s")
	v.SetDefault("rtspd.server.max_buffer_bytes", 64*1024)

	// Parser defaults
	v.SetDefault("rtspd.parser.max_line_length", limits.MaxLineLength)
	v.SetDefault("rtspd.parser.max_method_length", limits.MaxMethodLength)
	v.SetDefault("rtspd.parser.max_url_length", limits.MaxURLLength)
	v.SetDefault("rtspd.parser.max_version_length", limits.MaxVersionLength)
	v.SetDefault("rtspd.parser.max_host_length", limits.MaxHostLength)
	v.SetDefault("rtspd.parser.max_suffix_length", limits.MaxSuffixLength)

	// Log defaults
	v.SetDefault("rtspd.log.level", "info")
	v.SetDefault("rtspd.log.format", "pattern")
	v.SetDefault("rtspd.log.pattern", "%time [%level] %caller: %msg %field\n")
	v.SetDefault("rtspd.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("rtspd.log.file.enabled", false)
	v.SetDefault("rtspd.log.file.path", "/var/log/rtspd/rtspd.log")
	v.SetDefault("rtspd.log.file.max_size_mb", 100)
	v.SetDefault("rtspd.log.file.max_age_days", 30)
	v.SetDefault("rtspd.log.file.max_backups", 5)
	v.SetDefault("rtspd.log.file.compress", true)

	// Metrics defaults
	v.SetDefault("rtspd.metrics.enabled", true)
	v.SetDefault("rtspd.metrics.listen", ":9091")
	v.SetDefault("rtspd.metrics.path", "/metrics")

	// Sink defaults
	v.SetDefault("rtspd.sink.type", "console")

	// Replay defaults
	v.SetDefault("rtspd.replay.ports", []int{554, 8554})
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "pattern", "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be pattern/json/text)", cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	// ── Server validation ──
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be >= 0, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be >= 0, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.MaxBufferBytes <= 0 {
		return fmt.Errorf("server.max_buffer_bytes must be > 0, got %d", cfg.Server.MaxBufferBytes)
	}

	// ── Parser validation ──
	limits := cfg.Parser.Limits()
	if limits.MaxLineLength < 0 || limits.MaxMethodLength < 0 || limits.MaxURLLength < 0 ||
		limits.MaxVersionLength < 0 || limits.MaxHostLength < 0 || limits.MaxSuffixLength < 0 {
		return fmt.Errorf("parser limits must be >= 0")
	}
	if cfg.Parser.MaxLineLength > 0 && cfg.Server.MaxBufferBytes < cfg.Parser.MaxLineLength {
		return fmt.Errorf("server.max_buffer_bytes (%d) must be >= parser.max_line_length (%d)",
			cfg.Server.MaxBufferBytes, cfg.Parser.MaxLineLength)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// ── Sink ──
	switch cfg.Sink.Type {
	case "console", "kafka", "none":
	case "":
		cfg.Sink.Type = "console"
	default:
		return fmt.Errorf("unsupported sink.type: %s (must be console/kafka/none)", cfg.Sink.Type)
	}

	// ── Replay ──
	for _, p := range cfg.Replay.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid replay port: %d", p)
		}
	}

	return nil
}

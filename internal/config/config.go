// Package config handles application configuration and the runtime
// settings file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the static application configuration loaded at startup.
// Everything has a sensible default; a config file is optional and CLI
// arguments override it.
type Config struct {
	Device   string        `mapstructure:"device"`    // device index, name, or "auto"
	LogLevel string        `mapstructure:"log_level"` // info / debug
	HTTP     HTTPConfig    `mapstructure:"http"`
	Capture  CaptureConfig `mapstructure:"capture"`
	Files    FilesConfig   `mapstructure:"files"`
	LogFile  LogFileConfig `mapstructure:"log_file"`
}

// HTTPConfig controls the query/broadcast surface.
type HTTPConfig struct {
	Port        int  `mapstructure:"port"`         // first port to try, incremented while in use
	OpenBrowser bool `mapstructure:"open_browser"` // launch the OS browser after bind
}

// CaptureConfig controls the packet source.
type CaptureConfig struct {
	QueueSize int    `mapstructure:"queue_size"` // frames buffered between capture and processing
	PcapFile  string `mapstructure:"pcap_file"`  // offline replay instead of live capture
	AFPacket  bool   `mapstructure:"afpacket"`   // Linux AF_PACKET source instead of libpcap
}

// FilesConfig holds the working-directory file layout.
type FilesConfig struct {
	Settings  string `mapstructure:"settings"`
	UserCache string `mapstructure:"user_cache"`
	LogsDir   string `mapstructure:"logs_dir"`
}

// LogFileConfig configures the optional rotating application log.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads the optional config file and environment overrides.
// Env vars use the STAR_METER_ prefix (e.g. STAR_METER_HTTP_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("star_meter")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.port", 8989)
	v.SetDefault("http.open_browser", true)

	v.SetDefault("capture.queue_size", 4096)
	v.SetDefault("capture.pcap_file", "")
	v.SetDefault("capture.afpacket", false)

	v.SetDefault("files.settings", "./settings.json")
	v.SetDefault("files.user_cache", "./users.json")
	v.SetDefault("files.logs_dir", "./logs")

	v.SetDefault("log_file.enabled", false)
	v.SetDefault("log_file.path", "./star-meter.log")
	v.SetDefault("log_file.max_size_mb", 50)
	v.SetDefault("log_file.max_backups", 3)
	v.SetDefault("log_file.max_age_days", 7)
	v.SetDefault("log_file.compress", false)
}

// Validate checks fields that have a closed set of legal values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.LogLevel)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.Capture.QueueSize <= 0 {
		return fmt.Errorf("invalid capture queue size: %d", c.Capture.QueueSize)
	}
	return nil
}

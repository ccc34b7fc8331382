/*
Copyright 2024 SerialLink Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config provides configuration loading and management for the
// broker agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/transport"
)

// Config represents the complete agent configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	TLS      TLSConfig      `mapstructure:"tls" yaml:"tls"`
	Serial   SerialConfig   `mapstructure:"serial" yaml:"serial"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	GRPCAddress       string `mapstructure:"grpc_address" yaml:"grpc_address"`
	MaxConnections    int    `mapstructure:"max_connections" yaml:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout" yaml:"connection_timeout"`
}

// TLSConfig holds TLS/SSL settings.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
	CAFile   string `mapstructure:"ca_file" yaml:"ca_file"`
}

// SerialConfig holds serial port settings.
type SerialConfig struct {
	Defaults        SerialDefaults `mapstructure:"defaults" yaml:"defaults"`
	ExcludePatterns []string       `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
}

// SerialDefaults holds the configured default wire parameters, per spec.md
// §3's OpenOptions fields. Config.Validate checks that they parse; the open
// command takes its wire parameters from its own flags, not from these.
type SerialDefaults struct {
	BaudRate    int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DataBits    int    `mapstructure:"data_bits" yaml:"data_bits"`
	StopBits    string `mapstructure:"stop_bits" yaml:"stop_bits"`
	Parity      string `mapstructure:"parity" yaml:"parity"`
	FlowControl string `mapstructure:"flow_control" yaml:"flow_control"`
	TimeoutMs   int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// LoggingConfig holds logging settings for the shared charmbracelet/log
// logger (§ config-driven logger in SPEC_FULL.md §5 ambient stack).
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DatabaseConfig configures the persistence gateway, an ambient addition
// SPEC_FULL.md §5 makes over the teacher's config (which had none).
type DatabaseConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	JournalPackets bool   `mapstructure:"journal_packets" yaml:"journal_packets"`
}

// WatchConfig configures the hot-plug watcher, SPEC_FULL.md §5's other
// config addition.
type WatchConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddress:       "127.0.0.1:50051",
			MaxConnections:    100,
			ConnectionTimeout: 30,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
		Serial: SerialConfig{
			Defaults: SerialDefaults{
				BaudRate:    9600,
				DataBits:    8,
				StopBits:    "1",
				Parity:      "none",
				FlowControl: "none",
				TimeoutMs:   500,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			Path:           UserDatabasePath(),
			JournalPackets: true,
		},
		Watch: WatchConfig{
			Enabled:         true,
			IntervalSeconds: 5,
		},
	}
}

// ParseParity maps a config string onto transport.Parity.
func ParseParity(s string) (transport.Parity, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return transport.ParityNone, nil
	case "odd":
		return transport.ParityOdd, nil
	case "even":
		return transport.ParityEven, nil
	default:
		return 0, fmt.Errorf("invalid parity: %s", s)
	}
}

// ParseFlowControl maps a config string onto transport.FlowControl.
func ParseFlowControl(s string) (transport.FlowControl, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return transport.FlowControlNone, nil
	case "software":
		return transport.FlowControlSoftware, nil
	case "hardware":
		return transport.FlowControlHardware, nil
	default:
		return 0, fmt.Errorf("invalid flow control: %s", s)
	}
}

// ParseStopBits maps a config string onto transport.StopBits.
func ParseStopBits(s string) (transport.StopBits, error) {
	switch s {
	case "1", "":
		return transport.StopBits1, nil
	case "2":
		return transport.StopBits2, nil
	default:
		return 0, fmt.Errorf("invalid stop bits: %s", s)
	}
}

// ToTransportOptions converts d, with tag/initialReadState supplied by the
// caller, into a session.OpenOptions ready for Core.Open.
func (d SerialDefaults) ToTransportOptions(tag string, initial session.ReadState) (session.OpenOptions, error) {
	parity, err := ParseParity(d.Parity)
	if err != nil {
		return session.OpenOptions{}, err
	}
	flowControl, err := ParseFlowControl(d.FlowControl)
	if err != nil {
		return session.OpenOptions{}, err
	}
	stopBits, err := ParseStopBits(d.StopBits)
	if err != nil {
		return session.OpenOptions{}, err
	}

	return session.OpenOptions{
		Tag:              tag,
		InitialReadState: initial,
		BaudRate:         d.BaudRate,
		DataBits:         d.DataBits,
		Parity:           parity,
		StopBits:         stopBits,
		FlowControl:      flowControl,
		Timeout:          time.Duration(d.TimeoutMs) * time.Millisecond,
	}, nil
}

// SetDefaults sets default values in viper.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("server.grpc_address", defaults.Server.GRPCAddress)
	viper.SetDefault("server.max_connections", defaults.Server.MaxConnections)
	viper.SetDefault("server.connection_timeout", defaults.Server.ConnectionTimeout)

	viper.SetDefault("tls.enabled", defaults.TLS.Enabled)

	viper.SetDefault("serial.defaults.baud_rate", defaults.Serial.Defaults.BaudRate)
	viper.SetDefault("serial.defaults.data_bits", defaults.Serial.Defaults.DataBits)
	viper.SetDefault("serial.defaults.stop_bits", defaults.Serial.Defaults.StopBits)
	viper.SetDefault("serial.defaults.parity", defaults.Serial.Defaults.Parity)
	viper.SetDefault("serial.defaults.flow_control", defaults.Serial.Defaults.FlowControl)
	viper.SetDefault("serial.defaults.timeout_ms", defaults.Serial.Defaults.TimeoutMs)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)

	viper.SetDefault("database.path", defaults.Database.Path)
	viper.SetDefault("database.journal_packets", defaults.Database.JournalPackets)

	viper.SetDefault("watch.enabled", defaults.Watch.Enabled)
	viper.SetDefault("watch.interval_seconds", defaults.Watch.IntervalSeconds)
}

// Load reads configuration from viper and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.GRPCAddress == "" {
		return fmt.Errorf("grpc_address is required")
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be at least 1")
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS cert_file and key_file are required when TLS is enabled")
		}
	}
	if c.Serial.Defaults.BaudRate < 1 {
		return fmt.Errorf("baud_rate must be positive")
	}
	if c.Serial.Defaults.DataBits < 5 || c.Serial.Defaults.DataBits > 8 {
		return fmt.Errorf("data_bits must be between 5 and 8")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if _, err := c.Serial.Defaults.ToTransportOptions("", session.Read); err != nil {
		return fmt.Errorf("invalid serial defaults: %w", err)
	}

	return nil
}

// UserDatabasePath returns the default SQLite database path under the
// user's config directory, created on first launch per spec.md §6.
func UserDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "portbroker.db"
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "portbroker", "portbroker.db")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "portbroker", "portbroker.db")
	default:
		return filepath.Join(home, ".config", "portbroker", "portbroker.db")
	}
}

// InitViper initializes viper with default configuration paths.
func InitViper(configFile string) error {
	SetDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, _ := os.UserHomeDir()
		if home != "" {
			viper.AddConfigPath(filepath.Join(home, ".portbroker"))
			viper.AddConfigPath(filepath.Join(home, ".config", "portbroker"))
		}
		viper.AddConfigPath(".")

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("PORTBROKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

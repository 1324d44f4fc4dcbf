// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/s2onet/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `s2onet:` root key in YAML.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Driver     DriverConfig     `mapstructure:"driver" yaml:"driver"`
	Throughput ThroughputConfig `mapstructure:"throughput" yaml:"throughput"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level" yaml:"level"`   // trace / debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // text / json
	Pattern    string           `mapstructure:"pattern" yaml:"pattern"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Capture ───

// CaptureConfig holds the options a capture run is started with.
type CaptureConfig struct {
	Filter              string `mapstructure:"filter" yaml:"filter"`
	BufferCapacity      int    `mapstructure:"buffer_capacity" yaml:"buffer_capacity"`
	StopTimeoutMS       uint32 `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
	LibraryOverridePath string `mapstructure:"library_override_path" yaml:"library_override_path"`
	LinkLayerMTUHint    int    `mapstructure:"link_layer_mtu_hint" yaml:"link_layer_mtu_hint"`
	LinkType            string `mapstructure:"link_type" yaml:"link_type"` // ethernet | raw_ip
}

// StopTimeout returns the worker join grace period.
func (c CaptureConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

// Link returns the parsed link type. Call Validate first.
func (c CaptureConfig) Link() core.LinkType {
	if c.LinkType == "raw_ip" {
		return core.LinkRawIP
	}
	return core.LinkEthernet
}

// ─── Driver ABI ───

// DriverConfig names the capture driver library and its exports.
type DriverConfig struct {
	Library       string        `mapstructure:"library" yaml:"library"`
	Symbols       SymbolsConfig `mapstructure:"symbols" yaml:"symbols"`
	Layer         uint8         `mapstructure:"layer" yaml:"layer"`
	Priority      int16         `mapstructure:"priority" yaml:"priority"`
	Flags         uint64        `mapstructure:"flags" yaml:"flags"`
	AddressLayout string        `mapstructure:"address_layout" yaml:"address_layout"` // windivert2 | none
}

// SymbolsConfig holds the export names resolved at load time.
type SymbolsConfig struct {
	Open      string `mapstructure:"open" yaml:"open"`
	Recv      string `mapstructure:"recv" yaml:"recv"`
	Close     string `mapstructure:"close" yaml:"close"`
	LastError string `mapstructure:"last_error" yaml:"last_error"` // Optional
}

// ─── Throughput ───

// ThroughputConfig configures adapter speed sampling.
type ThroughputConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	Interfaces []string      `mapstructure:"interfaces" yaml:"interfaces"` // Empty = all
}

// ─── Defaults ───

const (
	DefaultFilter         = "true"
	DefaultBufferCapacity = 4096
	DefaultStopTimeoutMS  = 2000
	DefaultMTUHint        = 65535

	// WinDivert 2.x: SNIFF | RECV_ONLY keeps the capture read-only.
	DefaultDriverFlags = 0x0001 | 0x0004

	DefaultLogPattern    = "%time [%level] %field %msg%n"
	DefaultLogTimeFormat = "2006-01-02 15:04:05.000"
)

// DefaultCaptureConfig returns the capture defaults.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Filter:           DefaultFilter,
		BufferCapacity:   DefaultBufferCapacity,
		StopTimeoutMS:    DefaultStopTimeoutMS,
		LinkLayerMTUHint: DefaultMTUHint,
		LinkType:         "ethernet",
	}
}

// DefaultDriverConfig returns the WinDivert 2.x ABI table.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Library: "WinDivert.dll",
		Symbols: SymbolsConfig{
			Open:  "WinDivertOpen",
			Recv:  "WinDivertRecv",
			Close: "WinDivertClose",
		},
		Flags:         DefaultDriverFlags,
		AddressLayout: "windivert2",
	}
}

// Default returns a complete configuration with every default applied.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Pattern:    DefaultLogPattern,
			TimeFormat: DefaultLogTimeFormat,
			Outputs: LogOutputsConfig{
				File: FileOutputConfig{
					Path: "s2onet.log",
					Rotation: RotationConfig{
						MaxSizeMB:  100,
						MaxAgeDays: 30,
						MaxBackups: 5,
						Compress:   true,
					},
				},
			},
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9091",
			Path:   "/metrics",
		},
		Capture:    DefaultCaptureConfig(),
		Driver:     DefaultDriverConfig(),
		Throughput: ThroughputConfig{Interval: time.Second},
	}
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `s2onet: ...`.
type configRoot struct {
	S2ONet Config `mapstructure:"s2onet"`
}

// Load loads configuration from file. An empty path yields defaults plus
// environment overrides (e.g. S2ONET_CAPTURE_FILTER). Unknown keys are rejected.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "s2onet.log.level" -> env "S2ONET_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var root configRoot
	if err := v.UnmarshalExact(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	cfg := root.S2ONet

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every default under the "s2onet." prefix so that
// environment overrides work even when the file omits a key.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("s2onet.log.level", d.Log.Level)
	v.SetDefault("s2onet.log.format", d.Log.Format)
	v.SetDefault("s2onet.log.pattern", d.Log.Pattern)
	v.SetDefault("s2onet.log.time_format", d.Log.TimeFormat)
	v.SetDefault("s2onet.log.outputs.file.enabled", d.Log.Outputs.File.Enabled)
	v.SetDefault("s2onet.log.outputs.file.path", d.Log.Outputs.File.Path)
	v.SetDefault("s2onet.log.outputs.file.rotation.max_size_mb", d.Log.Outputs.File.Rotation.MaxSizeMB)
	v.SetDefault("s2onet.log.outputs.file.rotation.max_age_days", d.Log.Outputs.File.Rotation.MaxAgeDays)
	v.SetDefault("s2onet.log.outputs.file.rotation.max_backups", d.Log.Outputs.File.Rotation.MaxBackups)
	v.SetDefault("s2onet.log.outputs.file.rotation.compress", d.Log.Outputs.File.Rotation.Compress)

	v.SetDefault("s2onet.metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("s2onet.metrics.listen", d.Metrics.Listen)
	v.SetDefault("s2onet.metrics.path", d.Metrics.Path)

	v.SetDefault("s2onet.capture.filter", d.Capture.Filter)
	v.SetDefault("s2onet.capture.buffer_capacity", d.Capture.BufferCapacity)
	v.SetDefault("s2onet.capture.stop_timeout_ms", d.Capture.StopTimeoutMS)
	v.SetDefault("s2onet.capture.library_override_path", d.Capture.LibraryOverridePath)
	v.SetDefault("s2onet.capture.link_layer_mtu_hint", d.Capture.LinkLayerMTUHint)
	v.SetDefault("s2onet.capture.link_type", d.Capture.LinkType)

	v.SetDefault("s2onet.driver.library", d.Driver.Library)
	v.SetDefault("s2onet.driver.symbols.open", d.Driver.Symbols.Open)
	v.SetDefault("s2onet.driver.symbols.recv", d.Driver.Symbols.Recv)
	v.SetDefault("s2onet.driver.symbols.close", d.Driver.Symbols.Close)
	v.SetDefault("s2onet.driver.symbols.last_error", d.Driver.Symbols.LastError)
	v.SetDefault("s2onet.driver.layer", d.Driver.Layer)
	v.SetDefault("s2onet.driver.priority", d.Driver.Priority)
	v.SetDefault("s2onet.driver.flags", d.Driver.Flags)
	v.SetDefault("s2onet.driver.address_layout", d.Driver.AddressLayout)

	v.SetDefault("s2onet.throughput.interval", d.Throughput.Interval)
	v.SetDefault("s2onet.throughput.interfaces", []string{})
}

// ─── Validation ───

// Validate checks every section.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, c.Log.Format)
	}
	if c.Log.Outputs.File.Enabled && c.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
	}
	if c.Throughput.Interval <= 0 {
		return fmt.Errorf("%w: throughput.interval must be positive", core.ErrConfigInvalid)
	}
	if err := c.Capture.Validate(); err != nil {
		return err
	}
	return c.Driver.Validate()
}

// Validate checks capture options.
func (c CaptureConfig) Validate() error {
	if c.BufferCapacity < 1 {
		return fmt.Errorf("%w: capture.buffer_capacity must be at least 1, got %d", core.ErrConfigInvalid, c.BufferCapacity)
	}
	if c.StopTimeoutMS < 1 {
		return fmt.Errorf("%w: capture.stop_timeout_ms must be at least 1", core.ErrConfigInvalid)
	}
	if c.LinkLayerMTUHint < 68 || c.LinkLayerMTUHint > 65535 {
		return fmt.Errorf("%w: capture.link_layer_mtu_hint must be within [68, 65535], got %d", core.ErrConfigInvalid, c.LinkLayerMTUHint)
	}
	if c.LinkType != "ethernet" && c.LinkType != "raw_ip" {
		return fmt.Errorf("%w: capture.link_type: %q (must be ethernet/raw_ip)", core.ErrConfigInvalid, c.LinkType)
	}
	return nil
}

// Validate checks the driver ABI table.
func (d DriverConfig) Validate() error {
	if d.Library == "" {
		return fmt.Errorf("%w: driver.library is required", core.ErrConfigInvalid)
	}
	if d.Symbols.Open == "" || d.Symbols.Recv == "" || d.Symbols.Close == "" {
		return fmt.Errorf("%w: driver.symbols.open/recv/close are required", core.ErrConfigInvalid)
	}
	if d.AddressLayout != "windivert2" && d.AddressLayout != "none" {
		return fmt.Errorf("%w: driver.address_layout: %q (must be windivert2/none)", core.ErrConfigInvalid, d.AddressLayout)
	}
	return nil
}

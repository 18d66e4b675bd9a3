// Package config loads the engine's static configuration: pool capacities,
// the settings-oracle values encoded into LL_VERSION_IND, and the ambient
// logging/metrics knobs.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LLCP_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the engine's static configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Pools configures the capacities of the three fixed-size pools (§4.1).
	Pools PoolConfig `mapstructure:"pools" yaml:"pools"`

	// Settings supplies the values the settings oracle (§6) returns for
	// locally-initiated procedure sends.
	Settings SettingsConfig `mapstructure:"settings" yaml:"settings"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	// Enabled turns on the /metrics HTTP handler.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the address the metrics server binds to.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// PoolConfig configures the three fixed-capacity pools (§3 "Pools", §4.1).
//
// Each capacity must be at least 1 (§6 "Configuration"). Exceeding a
// capacity never crashes the engine: it surfaces as command-disallowed
// on initiation, or as FSM parking during a run tick (§7).
type PoolConfig struct {
	// ContextCapacity bounds concurrently in-flight/pending procedure contexts.
	ContextCapacity int `mapstructure:"context_capacity" yaml:"context_capacity" validate:"required,gte=1"`

	// TXCapacity bounds concurrently outstanding control-PDU TX buffers.
	TXCapacity int `mapstructure:"tx_capacity" yaml:"tx_capacity" validate:"required,gte=1"`

	// NotificationCapacity bounds concurrently outstanding host notification buffers.
	NotificationCapacity int `mapstructure:"notification_capacity" yaml:"notification_capacity" validate:"required,gte=1"`
}

// SettingsConfig supplies the settings-oracle values (§6).
//
// The version number itself is a compile-time constant of the
// implementation (§6) and is not configurable; see procedure.LocalVersionNumber.
type SettingsConfig struct {
	// CompanyID is the 16-bit Bluetooth SIG company identifier encoded
	// into LL_VERSION_IND on local initiation.
	CompanyID uint16 `mapstructure:"company_id" yaml:"company_id"`

	// SubVersionNumber is the 16-bit implementation sub-version encoded
	// into LL_VERSION_IND on local initiation.
	SubVersionNumber uint16 `mapstructure:"sub_version_number" yaml:"sub_version_number"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LLCP_*)
//  2. Configuration file
//  3. Default values
//
// configPath may be empty, in which case llcp.yaml in the current
// directory is read if present; otherwise only environment variables and
// defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		hexStringToUint16HookFunc(),
	))
	if found {
		if err := v.Unmarshal(cfg, decodeHook); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	} else {
		// No file on disk: still honor any environment overrides layered
		// on top of the compiled-in defaults.
		if err := v.Unmarshal(cfg, decodeHook); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// hexStringToUint16HookFunc lets company_id and sub_version_number be
// given as a hex string (e.g. "0x005D") in a config file or environment
// variable, in addition to a plain decimal number.
func hexStringToUint16HookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Uint16 {
			return data, nil
		}
		s := data.(string)
		if s == "" {
			return data, nil
		}
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("parse %q as uint16: %w", s, err)
		}
		return uint16(v), nil
	}
}

// setupViper configures viper with environment variable and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("LLCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper already knows about, so bind every key
	// explicitly: LLCP_* overrides then apply even when the key is missing
	// from the config file or there is no file at all.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"metrics.enabled", "metrics.listen_addr",
		"pools.context_capacity", "pools.tx_capacity", "pools.notification_capacity",
		"settings.company_id", "settings.sub_version_number",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(".")
	v.SetConfigName("llcp")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

// Validate runs struct-tag validation over the loaded configuration.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "llcpengine", "config.yaml")
}

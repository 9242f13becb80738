// Package config loads the ftpd configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. FTPD_CONTROL_PORT=2121.
const EnvPrefix = "FTPD"

// Config is the complete server configuration. It is built once at startup
// and not modified afterwards.
type Config struct {
	// RootDir holds one home directory per user: <root_dir>/<user>.
	RootDir string `mapstructure:"root_dir" validate:"required" yaml:"root_dir"`

	// Users maps user names to bcrypt hashes. Names are case-insensitive
	// here; use UsersFile for mixed-case names.
	Users map[string]string `mapstructure:"users" yaml:"users,omitempty"`

	// UsersFile is a YAML users file. It is reloaded when it changes and
	// takes precedence over Users.
	UsersFile string `mapstructure:"users_file" yaml:"users_file,omitempty"`

	// BufferSize is the RETR/STOR chunk size. Accepts "64KiB" style values.
	BufferSize ByteSize `mapstructure:"buffer_size" validate:"gt=0" yaml:"buffer_size"`

	// ControlPort is the FTP control port.
	ControlPort int `mapstructure:"control_port" validate:"min=1,max=65535" yaml:"control_port"`

	// DataPort is the local source port for active mode connections.
	// 0 lets the OS choose.
	DataPort int `mapstructure:"data_port" validate:"min=0,max=65535" yaml:"data_port"`

	// Debug enables debug logging.
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// DataTimeout bounds the active connect and the passive accept.
	DataTimeout time.Duration `mapstructure:"data_timeout" validate:"gt=0" yaml:"data_timeout"`

	// IdleTimeout closes idle control connections. 0 disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`

	// MaxConnections limits concurrent sessions. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// MaxConnectionsPerIP limits concurrent sessions per client address.
	MaxConnectionsPerIP int `mapstructure:"max_connections_per_ip" validate:"gte=0" yaml:"max_connections_per_ip"`

	Passive PassiveConfig `mapstructure:"passive" yaml:"passive"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// PassiveConfig configures PASV listeners.
type PassiveConfig struct {
	// PublicHost is advertised in 227 replies instead of the local address.
	PublicHost string `mapstructure:"public_host" yaml:"public_host,omitempty"`

	// MinPort and MaxPort bound the passive port range. Both 0 means any
	// ephemeral port.
	MinPort int `mapstructure:"min_port" validate:"min=0,max=65535" yaml:"min_port"`
	MaxPort int `mapstructure:"max_port" validate:"min=0,max=65535" yaml:"max_port"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr" or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port serving /metrics and /healthz.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ByteSize is a size in bytes that reads and writes human-readable values
// such as "64KiB" or "1MB".
type ByteSize uint64

// String returns the IEC form, e.g. "64 KiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// MarshalYAML writes the human-readable form.
func (b ByteSize) MarshalYAML() (any, error) {
	return strings.ReplaceAll(b.String(), " ", ""), nil
}

// UnmarshalYAML accepts either a number or a humanize string.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	n, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", node.Value, err)
	}
	*b = ByteSize(n)
	return nil
}

// Load reads the configuration from path, the environment and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FTPD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - path: Path to the config file. Empty means environment and defaults only.
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Loading, decoding or validation error
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
// The file may hold password hashes, so it is only readable by its owner.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field constraints and the rules that span fields.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if len(cfg.Users) == 0 && cfg.UsersFile == "" {
		return errors.New("no users configured: set users or users_file")
	}

	p := cfg.Passive
	if (p.MinPort == 0) != (p.MaxPort == 0) || p.MaxPort < p.MinPort {
		return fmt.Errorf("passive port range [%d, %d] is invalid", p.MinPort, p.MaxPort)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.ControlPort {
		return fmt.Errorf("metrics port %d clashes with the control port", cfg.Metrics.Port)
	}
	return nil
}

// setupViper configures environment overrides and the config file.
func setupViper(v *viper.Viper, path string) {
	// FTPD_PASSIVE_MIN_PORT overrides passive.min_port
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper knows about.
	for _, key := range []string{
		"root_dir", "users_file", "buffer_size", "control_port", "data_port",
		"debug", "data_timeout", "idle_timeout", "shutdown_timeout",
		"max_connections", "max_connections_per_ip",
		"passive.public_host", "passive.min_port", "passive.max_port",
		"logging.format", "logging.output",
		"metrics.enabled", "metrics.port",
	} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
}

// configDecodeHooks returns the decode hooks for durations and byte sizes.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// byteSizeDecodeHook converts strings like "64KiB" and plain numbers to
// ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			n, err := humanize.ParseBytes(v)
			if err != nil {
				return nil, fmt.Errorf("invalid byte size %q: %w", v, err)
			}
			return ByteSize(n), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			// YAML numbers may decode as float64
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

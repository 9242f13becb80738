package config

import "time"

const (
	DefaultBufferSize      = 64 * 1024
	DefaultControlPort     = 21
	DefaultDataTimeout     = 60 * time.Second
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsPort     = 9090
)

// ApplyDefaults fills in zero values.
//
// Zero is a meaningful value for DataPort, IdleTimeout and the connection
// limits, so those are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.ControlPort == 0 {
		cfg.ControlPort = DefaultControlPort
	}
	if cfg.DataTimeout == 0 {
		cfg.DataTimeout = DefaultDataTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// Default returns a starting configuration for `ftpd config init`.
// It has no users; add them with `ftpd passwd`.
func Default() *Config {
	cfg := &Config{
		RootDir:     "/srv/ftp",
		UsersFile:   "/etc/ftpd/users.yaml",
		IdleTimeout: DefaultIdleTimeout,
	}
	ApplyDefaults(cfg)
	return cfg
}

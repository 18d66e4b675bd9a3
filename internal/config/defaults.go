package config

// DefaultConfig returns a Config populated entirely with defaults; used as
// the base that viper's env/file layers are unmarshalled on top of.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9464",
		},
		Pools: PoolConfig{
			ContextCapacity:      4,
			TXCapacity:           4,
			NotificationCapacity: 4,
		},
		Settings: SettingsConfig{
			CompanyID:        0x0000,
			SubVersionNumber: 0x0001,
		},
	}
}

// ApplyDefaults fills any zero-valued fields left unset after unmarshalling
// with their default values. Store-specific fields with a meaningful zero
// (e.g. Metrics.Enabled=false) are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9464"
	}
	if cfg.Pools.ContextCapacity == 0 {
		cfg.Pools.ContextCapacity = 4
	}
	if cfg.Pools.TXCapacity == 0 {
		cfg.Pools.TXCapacity = 4
	}
	if cfg.Pools.NotificationCapacity == 0 {
		cfg.Pools.NotificationCapacity = 4
	}
}

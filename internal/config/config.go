package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the Titan core
type Config struct {
	DatabaseURL   string          `mapstructure:"database_url"`
	LogLevel      string          `mapstructure:"log_level"`
	LogFile       string          `mapstructure:"log_file"`
	EncryptionKey string          `mapstructure:"encryption_key"`
	API           APIConfig       `mapstructure:"api"`
	Connect       ConnectConfig   `mapstructure:"connect"`
	Session       PoolConfig      `mapstructure:"session"`
	Store         PoolConfig      `mapstructure:"store"`
	Keepalive     KeepaliveConfig `mapstructure:"keepalive"`
}

// APIConfig holds defaults for outbound HTTP requests
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConnectConfig holds defaults for database connect attempts
type ConnectConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// PoolConfig holds database/sql pool limits
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// KeepaliveConfig controls the session ping scheduler
type KeepaliveConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration from .env, an optional YAML file and TITAN_*
// environment variables. An explicit path that does not exist is an error;
// a missing default config file is not.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("TITAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/titan")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		dbURL, err := defaultDatabaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dbURL
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that viper cannot enforce
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %v", cfg.API.Timeout)
	}
	if cfg.Connect.Timeout <= 0 {
		return fmt.Errorf("connect.timeout must be positive, got %v", cfg.Connect.Timeout)
	}
	for name, pool := range map[string]PoolConfig{"session": cfg.Session, "store": cfg.Store} {
		if pool.MaxOpenConns < 1 {
			return fmt.Errorf("%s.max_open_conns must be >= 1, got %d", name, pool.MaxOpenConns)
		}
		if pool.MaxIdleConns < 0 || pool.MaxIdleConns > pool.MaxOpenConns {
			return fmt.Errorf("%s.max_idle_conns must be between 0 and max_open_conns (%d), got %d",
				name, pool.MaxOpenConns, pool.MaxIdleConns)
		}
	}
	return nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("encryption_key", "")

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("connect.timeout", "15s")

	v.SetDefault("session.max_open_conns", 4)
	v.SetDefault("session.max_idle_conns", 2)
	v.SetDefault("session.conn_max_lifetime", "30m")

	v.SetDefault("store.max_open_conns", 25)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", "5m")

	v.SetDefault("keepalive.schedule", "@every 30s")
}

// defaultDatabaseURL places the metadata store in the user config directory
func defaultDatabaseURL() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	appDir := filepath.Join(configDir, "titan")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return "sqlite://" + filepath.Join(appDir, "titan.db"), nil
}

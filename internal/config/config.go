package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Plex      PlexConfig      `mapstructure:"plex"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Rules     RulesConfig     `mapstructure:"rules"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// PlexConfig holds the origin watchlist source configuration.
type PlexConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig holds watchlist polling configuration.
type SyncConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	FallbackInterval  time.Duration `mapstructure:"fallback_interval"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	FailureThreshold  int           `mapstructure:"failure_threshold"`
}

// ApprovalsConfig holds approval request lifecycle configuration.
type ApprovalsConfig struct {
	ExpireAfter        time.Duration `mapstructure:"expire_after"`
	AutoApproveExpired bool          `mapstructure:"auto_approve_expired"`
	Retention          time.Duration `mapstructure:"retention"`
	SweepCron          string        `mapstructure:"sweep_cron"`
}

// QueueConfig holds deferred routing queue configuration.
type QueueConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

// RulesConfig holds routing rule store configuration.
type RulesConfig struct {
	SeedPath string `mapstructure:"seed_path"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.helmarr")
	}

	v.SetEnvPrefix("HELMARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8686)

	v.SetDefault("database.path", "./data/helmarr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("plex.url", "https://metadata.provider.plex.tv")
	v.SetDefault("plex.timeout", 30*time.Second)

	v.SetDefault("sync.interval", 10*time.Minute)
	v.SetDefault("sync.fallback_interval", time.Hour)
	v.SetDefault("sync.rate_limit_cooldown", 20*time.Minute)
	v.SetDefault("sync.failure_threshold", 3)

	v.SetDefault("approvals.expire_after", 72*time.Hour)
	v.SetDefault("approvals.auto_approve_expired", false)
	v.SetDefault("approvals.retention", 30*24*time.Hour)
	v.SetDefault("approvals.sweep_cron", "0 */4 * * *")

	v.SetDefault("queue.max_retries", 3)

	v.SetDefault("rules.seed_path", "")
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// This file defines the configuration structure for the application.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	Timezone  string          `mapstructure:"timezone"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retention RetentionConfig `mapstructure:"retention"`
	Search    SearchConfig    `mapstructure:"search"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig bounds the result cache TTL.
type CacheConfig struct {
	Prefix  string        `mapstructure:"prefix"`
	BaseTTL time.Duration `mapstructure:"base_ttl"`
	MinTTL  time.Duration `mapstructure:"min_ttl"`
	MaxTTL  time.Duration `mapstructure:"max_ttl"`
}

type SchedulerConfig struct {
	DefaultTime string `mapstructure:"default_time"`
	Workers     int    `mapstructure:"workers"`
	QueueSize   int    `mapstructure:"queue_size"`
}

// RetentionConfig caps the number of stored articles.
type RetentionConfig struct {
	Ceiling int `mapstructure:"ceiling"`
	Batch   int `mapstructure:"batch"`
}

type SearchConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SMTPConfig describes the fallback sending identity used when no channel
// rows are configured in the database.
type SMTPConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	DailyLimit int           `mapstructure:"daily_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.Reset()
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// LITPUSH_RETENTION_CEILING overrides `retention.ceiling`, and so on.
	viper.SetEnvPrefix("LITPUSH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal()
}

// Watch re-reads config.yml whenever it changes on disk and hands the new
// values to onChange. It must be called after Load.
func Watch(logger *slog.Logger, onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := unmarshal()
		if err != nil {
			if logger != nil {
				logger.Warn("config reload failed", "file", e.Name, "error", err)
			}
			return
		}
		if logger != nil {
			logger.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

func unmarshal() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("port", 8080)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("timezone", "UTC")
	viper.SetDefault("database.path", "./litpush.db")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("cache.prefix", "litpush")
	viper.SetDefault("cache.base_ttl", "6h")
	viper.SetDefault("cache.min_ttl", "30m")
	viper.SetDefault("cache.max_ttl", "48h")
	viper.SetDefault("scheduler.default_time", "09:00")
	viper.SetDefault("scheduler.workers", 4)
	viper.SetDefault("scheduler.queue_size", 256)
	viper.SetDefault("retention.ceiling", 100000)
	viper.SetDefault("retention.batch", 1000)
	viper.SetDefault("search.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	viper.SetDefault("search.api_key", "")
	viper.SetDefault("search.timeout", "30s")
	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")
	viper.SetDefault("smtp.daily_limit", 400)
	viper.SetDefault("smtp.timeout", "20s")
}

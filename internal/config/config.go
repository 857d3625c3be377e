// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Index     IndexConfig     `mapstructure:"index"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig holds the shared admin secret used for the index engine
// credential and for admin API calls.
type AuthConfig struct {
	AdminSecret string `mapstructure:"admin_secret"`
}

// IndexConfig locates the document store.
type IndexConfig struct {
	URL     string        `mapstructure:"url"`
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CrawlerConfig governs per-run crawl behavior.
type CrawlerConfig struct {
	Throttled      bool          `mapstructure:"throttled"`
	UserAgent      string        `mapstructure:"user_agent"`
	Threads        int           `mapstructure:"threads"`
	Delay          time.Duration `mapstructure:"delay"`
	MaxPages       int           `mapstructure:"max_pages"`
	StorageDir     string        `mapstructure:"storage_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SchedulerConfig governs the multi-site re-crawl pass.
type SchedulerConfig struct {
	RecrawlInterval time.Duration `mapstructure:"recrawl_interval"`
	PoolCap         int           `mapstructure:"pool_cap"`
	TaskTimeout     time.Duration `mapstructure:"task_timeout"`
}

// CleanupConfig sets the obsolete-page retention window.
type CleanupConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8444)
	// Registering the key lets AutomaticEnv surface it during Unmarshal.
	v.SetDefault("auth.admin_secret", "")
	v.SetDefault("index.url", "http://localhost:9200")
	v.SetDefault("index.name", "pagefinder")
	v.SetDefault("index.timeout", "30s")
	v.SetDefault("crawler.throttled", true)
	v.SetDefault("crawler.user_agent", "PageFinder/1.0 (+https://github.com/loxal/page-finder-service)")
	v.SetDefault("crawler.threads", 4)
	v.SetDefault("crawler.delay", "100ms")
	v.SetDefault("crawler.max_pages", 2000)
	v.SetDefault("crawler.storage_dir", "data/frontier")
	v.SetDefault("crawler.request_timeout", "15s")
	v.SetDefault("scheduler.recrawl_interval", "12h")
	v.SetDefault("scheduler.pool_cap", 4)
	v.SetDefault("scheduler.task_timeout", "30m")
	v.SetDefault("cleanup.retention", "48h")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.AdminSecret == "" {
		return fmt.Errorf("auth.admin_secret must be set")
	}
	if c.Index.URL == "" {
		return fmt.Errorf("index.url must be set")
	}
	if c.Index.Name == "" {
		return fmt.Errorf("index.name must be set")
	}
	if c.Index.Timeout <= 0 {
		return fmt.Errorf("index.timeout must be > 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.Threads <= 0 {
		return fmt.Errorf("crawler.threads must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.StorageDir == "" {
		return fmt.Errorf("crawler.storage_dir must be set")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Scheduler.RecrawlInterval <= 0 {
		return fmt.Errorf("scheduler.recrawl_interval must be > 0")
	}
	if c.Scheduler.PoolCap <= 0 {
		return fmt.Errorf("scheduler.pool_cap must be > 0")
	}
	if c.Scheduler.TaskTimeout <= 0 {
		return fmt.Errorf("scheduler.task_timeout must be > 0")
	}
	if c.Cleanup.Retention <= 0 {
		return fmt.Errorf("cleanup.retention must be > 0")
	}
	return nil
}

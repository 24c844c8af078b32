package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Pipelines PipelinesConfig `yaml:"pipelines"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// ScraperConfig holds upstream auction-site client settings.
type ScraperConfig struct {
	BaseURL       string        `yaml:"base_url"       env:"SCRAPER_BASE_URL"       env-required:"true"`
	CategoriesRaw string        `yaml:"categories"     env:"SCRAPER_CATEGORIES"     env-default:"real-estate,vehicles"`
	MaxPages      int           `yaml:"max_pages"      env:"SCRAPER_MAX_PAGES"      env-default:"50"`
	ListTimeout   time.Duration `yaml:"list_timeout"   env:"SCRAPER_LIST_TIMEOUT"   env-default:"30s"`
	DetailTimeout time.Duration `yaml:"detail_timeout" env:"SCRAPER_DETAIL_TIMEOUT" env-default:"45s"`
	CheckTimeout  time.Duration `yaml:"check_timeout"  env:"SCRAPER_CHECK_TIMEOUT"  env-default:"10s"`

	// Categories is parsed from CategoriesRaw during validation.
	Categories []string `yaml:"-" env:"-"`
}

// PipelinesConfig holds the scheduling settings of the three pipelines.
// Zero intervals are replaced with per-pipeline defaults during validation.
type PipelinesConfig struct {
	Monitor   PipelineConfig `yaml:"monitor"   env-prefix:"PIPELINE_MONITOR_"`
	Sync      PipelineConfig `yaml:"sync"      env-prefix:"PIPELINE_SYNC_"`
	Discovery PipelineConfig `yaml:"discovery" env-prefix:"PIPELINE_DISCOVERY_"`

	MonitorWorkers int `yaml:"monitor_workers" env:"PIPELINE_MONITOR_WORKERS" env-default:"8"`
}

// PipelineConfig is the schedule of one pipeline.
type PipelineConfig struct {
	Enabled  bool          `yaml:"enabled"  env:"ENABLED" env-default:"true"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// MetricsConfig holds Prometheus listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Host    string `yaml:"host"    env:"METRICS_HOST"    env-default:"0.0.0.0"`
	Port    int    `yaml:"port"    env:"METRICS_PORT"    env-default:"9090"`
}

// Addr returns the host:port the metrics listener binds to.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// ParseCategories parses a comma-separated category list, trimming blanks.
// An empty string returns a nil slice.
func ParseCategories(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	categories := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		categories = append(categories, p)
	}

	return categories
}

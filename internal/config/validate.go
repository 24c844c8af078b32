package config

import (
	"fmt"
	"net/url"
	"time"
)

// Default pipeline intervals, applied when the loaded value is zero.
const (
	defaultMonitorInterval   = 5 * time.Second
	defaultSyncInterval      = 30 * time.Minute
	defaultDiscoveryInterval = 2 * time.Minute
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Scraper.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scraper.base_url %q is not an absolute URL", c.Scraper.BaseURL)
	}

	c.Scraper.Categories = ParseCategories(c.Scraper.CategoriesRaw)
	if len(c.Scraper.Categories) == 0 {
		return fmt.Errorf("scraper.categories must name at least one category")
	}
	if c.Scraper.MaxPages <= 0 {
		return fmt.Errorf("scraper.max_pages must be > 0 (got %d)", c.Scraper.MaxPages)
	}

	if c.Pipelines.MonitorWorkers <= 0 {
		return fmt.Errorf("pipelines.monitor_workers must be > 0 (got %d)", c.Pipelines.MonitorWorkers)
	}

	c.Pipelines.Monitor.applyDefault(defaultMonitorInterval)
	c.Pipelines.Sync.applyDefault(defaultSyncInterval)
	c.Pipelines.Discovery.applyDefault(defaultDiscoveryInterval)

	for name, p := range map[string]PipelineConfig{
		"monitor":   c.Pipelines.Monitor,
		"sync":      c.Pipelines.Sync,
		"discovery": c.Pipelines.Discovery,
	} {
		if p.Interval < time.Second {
			return fmt.Errorf("pipelines.%s.interval must be >= 1s (got %v)", name, p.Interval)
		}
	}

	return nil
}

func (p *PipelineConfig) applyDefault(interval time.Duration) {
	if p.Interval == 0 {
		p.Interval = interval
	}
}

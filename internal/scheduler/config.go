package scheduler

import (
	"time"

	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/ratelimit"
)

// Config controls scheduler intervals, timeouts and the periodic batch.
type Config struct {
	RunInterval   time.Duration
	JobTimeout    time.Duration
	BatchTimeout  time.Duration
	BatchEnabled  bool
	BatchLockKey  string
	BatchLockTTL  time.Duration
	BatchMaxTerms int
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  5 * time.Minute,
		JobTimeout:   30 * time.Second,
		BatchTimeout: 20 * time.Minute,
		BatchLockKey: ratelimit.BatchLockKey,
		BatchLockTTL: 30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaults.BatchTimeout
	}
	if c.BatchLockKey == "" {
		c.BatchLockKey = defaults.BatchLockKey
	}
	if c.BatchLockTTL <= 0 {
		c.BatchLockTTL = defaults.BatchLockTTL
	}
	// the lock must outlive the batch it guards
	if c.BatchLockTTL < c.BatchTimeout {
		c.BatchLockTTL = c.BatchTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:   cfg.Scheduler.Interval,
		BatchEnabled:  cfg.Scheduler.BatchEnabled,
		BatchLockKey:  cfg.Redis.Prefix + ratelimit.BatchLockKey,
		BatchLockTTL:  cfg.Scheduler.BatchLockTTL,
		BatchMaxTerms: cfg.Workflow.MaxBatchTerms,
		EnabledJobs:   cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

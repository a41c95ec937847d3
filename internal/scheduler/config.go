package scheduler

import (
	"time"

	"github.com/trackvault/trackvault/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval    time.Duration
	BatchSize      int
	SnapshotMaxAge time.Duration
	LockTTL        time.Duration
	// EnabledJobs empty means every job runs.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		BatchSize:      50,
		SnapshotMaxAge: 10 * time.Minute,
		LockTTL:        2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.SnapshotMaxAge <= 0 {
		c.SnapshotMaxAge = defaults.SnapshotMaxAge
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:    time.Duration(cfg.Scheduler.RunIntervalSeconds) * time.Second,
		BatchSize:      cfg.Scheduler.BatchSize,
		SnapshotMaxAge: time.Duration(cfg.Scheduler.SnapshotMaxAgeSecs) * time.Second,
		LockTTL:        time.Duration(cfg.Scheduler.LockTTLSeconds) * time.Second,
		EnabledJobs:    cfg.Scheduler.Jobs,
	}.withDefaults()
}

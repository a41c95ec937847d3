package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReconciliationConfig drives outstanding-balance aging and supplier risk
// classification. It is reloadable at runtime so finance can tune the
// thresholds without a redeploy.
type ReconciliationConfig struct {
	AgingBuckets []AgingBucket `mapstructure:"agingBuckets"`
	RiskLevels   []RiskLevel   `mapstructure:"riskLevels"`
}

// AgingBucket labels a range of days an amount has been outstanding.
// MaxDays nil means open-ended.
type AgingBucket struct {
	Label   string `mapstructure:"label"`
	MinDays int    `mapstructure:"minDays"`
	MaxDays *int   `mapstructure:"maxDays"`
}

// RiskLevel matches when outstanding >= MinOutstanding and the oldest
// unsettled delivery is at least MinDays old. Levels are evaluated in
// order, first match wins.
type RiskLevel struct {
	Level          string  `mapstructure:"level"`
	MinOutstanding float64 `mapstructure:"minOutstanding"`
	MinDays        int     `mapstructure:"minDays"`
}

func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		AgingBuckets: []AgingBucket{
			{Label: "0-30", MinDays: 0, MaxDays: intPtr(30)},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
			{Label: "60+", MinDays: 61, MaxDays: nil},
		},
		RiskLevels: []RiskLevel{
			{Level: "high", MinOutstanding: 1_000_000, MinDays: 60},
			{Level: "medium", MinOutstanding: 250_000, MinDays: 31},
			{Level: "low", MinOutstanding: 0, MinDays: 0},
		},
	}
}

func intPtr(v int) *int { return &v }

type ReconciliationConfigHolder struct {
	current atomic.Value // holds ReconciliationConfig
}

func NewReconciliationConfigHolder() (*ReconciliationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reconciliation")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/trackvault/config") // Volume-mounted config
	v.AddConfigPath("/etc/trackvault")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	// env only overrides individual keys (optional)
	v.SetEnvPrefix("TRACKVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultReconciliationConfig()
		v.SetDefault("reconciliation.agingBuckets", defaults.AgingBuckets)
		v.SetDefault("reconciliation.riskLevels", defaults.RiskLevels)
	}

	var cfg ReconciliationConfig
	if err := v.UnmarshalKey("reconciliation", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconciliationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ReconciliationConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconciliationConfig
		if err := v.UnmarshalKey("reconciliation", &updated); err != nil {
			log.Printf("[reconciliation-config] reload failed: %v", err)
			return
		}
		if err := validateReconciliationConfig(updated); err != nil {
			log.Printf("[reconciliation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reconciliation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Get returns the current policy. A zero-value holder answers the
// built-in defaults.
func (h *ReconciliationConfigHolder) Get() ReconciliationConfig {
	if cfg, ok := h.current.Load().(ReconciliationConfig); ok {
		return cfg
	}
	return DefaultReconciliationConfig()
}

func validateReconciliationConfig(cfg ReconciliationConfig) error {
	if len(cfg.AgingBuckets) == 0 {
		return errors.New("reconciliation.agingBuckets cannot be empty")
	}
	if len(cfg.RiskLevels) == 0 {
		return errors.New("reconciliation.riskLevels cannot be empty")
	}
	return nil
}

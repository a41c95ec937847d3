package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	InstanceID  int64

	HTTPAddr string

	OTLPEndpoint string

	Metrics MetricsPushConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit RateLimitConfig

	Scheduler SchedulerConfig

	SeedDemoData bool
}

// SchedulerConfig toggles the background loop. Jobs empty means every
// job runs; naming jobs restricts the instance to that subset.
type SchedulerConfig struct {
	Enabled            bool
	RunIntervalSeconds int
	BatchSize          int
	SnapshotMaxAgeSecs int
	LockTTLSeconds     int
	Jobs               []string
}

// RateLimitConfig throttles collection ingest per supplier. Rate is
// tokens per second, Burst the bucket capacity. LockTTLSeconds bounds the
// per supplier/product insert lock.
type RateLimitConfig struct {
	Enabled        bool
	Rate           float64
	Burst          int
	LockTTLSeconds int
}

// MetricsPushConfig configures the outbound metrics pusher. The worker
// only starts when Enabled is set and an endpoint is present.
type MetricsPushConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	JobName         string
	IntervalSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "trackvault"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		InstanceID:  getenvInt64("INSTANCE_ID", 1),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		Metrics: MetricsPushConfig{
			Enabled:         getenvBool("METRICS_PUSH_ENABLED", true),
			Exporter:        strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:        strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken:       strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			JobName:         getenv("METRICS_PUSH_JOB", "trackvault"),
			IntervalSeconds: int(getenvInt64("METRICS_PUSH_INTERVAL", 30)),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "trackvault"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 600)),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:           getenvFloat64("RATE_LIMIT_RATE", 20),
			Burst:          int(getenvInt64("RATE_LIMIT_BURST", 40)),
			LockTTLSeconds: int(getenvInt64("RATE_LIMIT_LOCK_TTL", 10)),
		},

		Scheduler: SchedulerConfig{
			Enabled:            getenvBool("SCHEDULER_ENABLED", true),
			RunIntervalSeconds: int(getenvInt64("SCHEDULER_RUN_INTERVAL", 60)),
			BatchSize:          int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			SnapshotMaxAgeSecs: int(getenvInt64("SCHEDULER_SNAPSHOT_MAX_AGE", 600)),
			LockTTLSeconds:     int(getenvInt64("SCHEDULER_LOCK_TTL", 120)),
			Jobs:               getenvList("SCHEDULER_JOBS"),
		},

		SeedDemoData: getenvBool("SEED_DEMO_DATA", false),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat64(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration. Settlement rules live in Settlement.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// NodeID seeds the snowflake generator; processes sharing a database need
	// distinct values.
	NodeID int64

	OTLPEndpoint string

	MetricsPush MetricsPushConfig
	Scheduler   SchedulerConfig
	RateLimit   RateLimitConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LockBackend         string
	NotificationChannel string
	SettlementFile      string

	Gateways []GatewayConfig
	// FakeProviders registers the in-memory adapters; used by local and e2e runs.
	FakeProviders bool
}

type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Job       string
	Interval  time.Duration
}

// RateLimitConfig throttles provider callbacks; it needs REDIS_ADDR.
type RateLimitConfig struct {
	Enabled bool
	// CallbackRate is tokens per second per provider and source address.
	CallbackRate  float64
	CallbackBurst int
}

type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	// Jobs limits the loop to the named jobs; empty runs every job.
	Jobs []string
}

// GatewayConfig describes one REST payment/payout gateway.
type GatewayConfig struct {
	Name          string
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cfg := Config{
		AppName:      getenv("APP_SERVICE", "settlement"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		MetricsPush: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "pushgateway")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Job:       getenv("METRICS_PUSH_JOB", "settlement"),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", time.Minute),
		},
		Scheduler: SchedulerConfig{
			Enabled:   getenvBool("SCHEDULER_ENABLED", true),
			Interval:  getenvDuration("SCHEDULER_INTERVAL", time.Minute),
			BatchSize: int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			Jobs:      parseList(getenv("SCHEDULER_JOBS", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("CALLBACK_RATE_LIMIT_ENABLED", false),
			CallbackRate:  getenvFloat("CALLBACK_RATE_LIMIT_RATE", 20),
			CallbackBurst: int(getenvInt64("CALLBACK_RATE_LIMIT_BURST", 40)),
		},
		DBType:              getenv("DATABASE_TYPE", "postgres"),
		DBHost:              getenv("DATABASE_HOST", "localhost"),
		DBPort:              getenv("DATABASE_PORT", "5432"),
		DBName:              getenv("DATABASE_NAME", "settlement"),
		DBUser:              getenv("DATABASE_USER", "postgres"),
		DBPassword:          getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:           getenv("DATABASE_SSLMODE", "disable"),
		DBPath:              getenv("DATABASE_PATH", "settlement.db"),
		DBMaxIdleConn:       int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:       int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime:   int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime:   int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		RedisAddr:           strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:       getenv("REDIS_PASSWORD", ""),
		RedisDB:             int(getenvInt64("REDIS_DB", 0)),
		LockBackend:         normalizeLockBackend(getenv("LOCK_BACKEND", LockBackendMemory)),
		NotificationChannel: getenv("NOTIFICATION_CHANNEL", "settlement.events"),
		SettlementFile:      strings.TrimSpace(getenv("SETTLEMENT_CONFIG_FILE", "")),
		Gateways:            parseGateways(getenv("PROVIDER_GATEWAYS", "")),
		FakeProviders:       getenvBool("PROVIDER_FAKE_ENABLED", environment == "development"),
	}

	return cfg
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func normalizeLockBackend(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == LockBackendRedis {
		return LockBackendRedis
	}
	return LockBackendMemory
}

// parseGateways reads a comma separated list of gateway names. Each name N is
// configured through PROVIDER_<N>_URL, PROVIDER_<N>_API_KEY, PROVIDER_<N>_WEBHOOK_SECRET
// and PROVIDER_<N>_TIMEOUT.
func parseGateways(raw string) []GatewayConfig {
	var out []GatewayConfig
	for _, name := range parseList(raw) {
		key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		baseURL := strings.TrimSpace(os.Getenv("PROVIDER_" + key + "_URL"))
		if baseURL == "" {
			continue
		}
		out = append(out, GatewayConfig{
			Name:          strings.ToLower(name),
			BaseURL:       baseURL,
			APIKey:        strings.TrimSpace(os.Getenv("PROVIDER_" + key + "_API_KEY")),
			WebhookSecret: strings.TrimSpace(os.Getenv("PROVIDER_" + key + "_WEBHOOK_SECRET")),
			Timeout:       getenvDuration("PROVIDER_"+key+"_TIMEOUT", 10*time.Second),
		})
	}
	return out
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
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

func getenvFloat(key string, def float64) float64 {
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

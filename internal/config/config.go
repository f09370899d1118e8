package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string // API bind address, e.g. "127.0.0.1:8080" or ":8080"
	LogDir      string // logs directory
	DatabaseURL string // postgres://...; empty means in-memory stores
	TSDBURL     string // bulk-ingest URL of the time-series store; empty disables sync

	PublicAPIKeys []string
	AdminAPIKeys  []string
	PublicRPM     int
	PublicBurst   int
	AdminRPM      int
	AdminBurst    int

	// Probe defaults, applied when an endpoint leaves a field unset.
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration

	// Detection policy.
	OutageThreshold   int
	RecoveryThreshold int
	VerifyOutages     bool
	LatencyBudgetMS   float64
	EscalateAfter     time.Duration

	// Alerting.
	ThrottleWindow  time.Duration
	SlackWebhook    string
	SendGridKey     string
	AlertEmailFrom  string
	AlertEmailTo    string
	AlertWebhookURL string

	// Engine plumbing.
	MaxConcurrentChecks int
	RegistryRefresh     time.Duration
	SyncInterval        time.Duration
	SyncBatch           int
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	_ = godotenv.Load() // best-effort; env vars win anyway
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:        envStr("ADDR", "127.0.0.1:8080"),
		LogDir:      envStr("LOG_DIR", "logs"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		TSDBURL:     os.Getenv("TSDB_URL"),

		PublicAPIKeys: envList("PUBLIC_API_KEYS"),
		AdminAPIKeys:  envList("ADMIN_API_KEYS"),
		PublicRPM:     envInt("PUBLIC_RPM", 120),
		PublicBurst:   envInt("PUBLIC_BURST", 60),
		AdminRPM:      envInt("ADMIN_RPM", 60),
		AdminBurst:    envInt("ADMIN_BURST", 30),

		CheckInterval: envDurMS("CHECK_INTERVAL_MS", 30_000),
		CheckTimeout:  envDurMS("CHECK_TIMEOUT_MS", 10_000),
		RetryAttempts: envInt("RETRY_ATTEMPTS", 2),
		RetryBackoff:  envDurMS("RETRY_BACKOFF_MS", 300),

		OutageThreshold:   envInt("OUTAGE_THRESHOLD", 3),
		RecoveryThreshold: envInt("RECOVERY_THRESHOLD", 1),
		VerifyOutages:     envBool("VERIFY_OUTAGES", true),
		LatencyBudgetMS:   float64(envInt("LATENCY_BUDGET_MS", 0)),
		EscalateAfter:     envDurMS("ESCALATE_AFTER_MS", int(2*time.Hour/time.Millisecond)),

		ThrottleWindow:  envDurMS("THROTTLE_WINDOW_MS", int(15*time.Minute/time.Millisecond)),
		SlackWebhook:    os.Getenv("SLACK_WEBHOOK"),
		SendGridKey:     os.Getenv("SENDGRID_API_KEY"),
		AlertEmailFrom:  os.Getenv("ALERT_EMAIL_FROM"),
		AlertEmailTo:    os.Getenv("ALERT_EMAIL_TO"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),

		MaxConcurrentChecks: envInt("MAX_CONCURRENT_CHECKS", 16),
		RegistryRefresh:     envDurMS("REGISTRY_REFRESH_MS", 15_000),
		SyncInterval:        envDurMS("SYNC_INTERVAL_MS", 60_000),
		SyncBatch:           envInt("SYNC_BATCH", 200),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envDurMS(key string, defMS int) time.Duration {
	return time.Duration(envInt(key, defMS)) * time.Millisecond
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

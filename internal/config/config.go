package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"relay/internal/ratelimit"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	GatewaySecret        string
	WebBaseURL           string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	WorkerEnabled      bool
	WorkerPollInterval time.Duration
	MaxAttempts        int
	BaseBackoffSeconds int
	MaxBackoffSeconds  int

	RateLimits ratelimit.Config

	ChatDBPath               string
	CorrelationRetryAttempts int
	CorrelationRetryDelay    time.Duration
	ReceiptPollInterval      time.Duration
	ReceiptPollTimeout       time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":4001"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		GatewaySecret:        mustGetenv("GATEWAY_SECRET"),
		WebBaseURL:           getenv("WEB_BASE_URL", "http://localhost:3000"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		WorkerEnabled:      getenv("WORKER_ENABLED", "true") == "true",
		WorkerPollInterval: getenvMillis("WORKER_POLL_INTERVAL_MS", 2000),
		MaxAttempts:        getenvInt("MAX_ATTEMPTS", 5),
		BaseBackoffSeconds: getenvInt("BASE_BACKOFF_SECONDS", 30),
		MaxBackoffSeconds:  getenvInt("MAX_BACKOFF_SECONDS", 1800),

		RateLimits: ratelimit.Config{
			Free: ratelimit.Limits{
				MinIntervalSeconds: getenvInt("FREE_MIN_INTERVAL_SECONDS", 0),
				MaxPerHour:         getenvInt("FREE_MAX_PER_HOUR", 2),
			},
			Paid: ratelimit.Limits{
				MinIntervalSeconds: getenvInt("PAID_MIN_INTERVAL_SECONDS", 0),
				MaxPerHour:         getenvInt("PAID_MAX_PER_HOUR", 30),
			},
		},

		ChatDBPath:               getenv("CHAT_DB_PATH", ""),
		CorrelationRetryAttempts: getenvInt("CORRELATION_RETRY_ATTEMPTS", 8),
		CorrelationRetryDelay:    getenvMillis("CORRELATION_RETRY_DELAY_MS", 2000),
		ReceiptPollInterval:      getenvMillis("RECEIPT_POLL_INTERVAL_MS", 10_000),
		ReceiptPollTimeout:       getenvMillis("RECEIPT_POLL_TIMEOUT_MS", 1_800_000),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic("invalid int env " + key + ": " + v)
	}
	return n
}

func getenvMillis(key string, defMillis int) time.Duration {
	return time.Duration(getenvInt(key, defMillis)) * time.Millisecond
}

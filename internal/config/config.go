package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
	APIMaxBodyBytes    int64
	ReadHeaderTimeout  time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
	RateLimitPerMinute int
	RateLimitMaxIPs    int

	ImportMaxFileBytes int64
	ImportMaxRows      int
	ImportSessionTTL   time.Duration
	// ImportSessionSweep is a cron spec, e.g. "@every 5m".
	ImportSessionSweep   string
	ImportEnrichExisting bool
	ServiceIntervalDays  int
	ServiceIntervalMiles int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        getEnv("API_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Env:         getEnv("APP_ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvCSV("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		}),
		APIMaxBodyBytes:      int64(getEnvInt("API_MAX_BODY_MB", 2)) * 1024 * 1024,
		ReadHeaderTimeout:    time.Duration(getEnvInt("API_READ_HEADER_TIMEOUT_SEC", 5)) * time.Second,
		ReadTimeout:          time.Duration(getEnvInt("API_READ_TIMEOUT_SEC", 30)) * time.Second,
		WriteTimeout:         time.Duration(getEnvInt("API_WRITE_TIMEOUT_SEC", 300)) * time.Second,
		IdleTimeout:          time.Duration(getEnvInt("API_IDLE_TIMEOUT_SEC", 60)) * time.Second,
		ShutdownTimeout:      time.Duration(getEnvInt("API_SHUTDOWN_TIMEOUT_SEC", 15)) * time.Second,
		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitMaxIPs:      getEnvInt("RATE_LIMIT_MAX_IPS", 10000),
		ImportMaxFileBytes:   int64(getEnvInt("IMPORT_MAX_FILE_MB", 25)) * 1024 * 1024,
		ImportMaxRows:        getEnvInt("IMPORT_MAX_ROWS", 5000),
		ImportSessionTTL:     time.Duration(getEnvInt("IMPORT_SESSION_TTL_MIN", 120)) * time.Minute,
		ImportSessionSweep:   getEnv("IMPORT_SESSION_SWEEP", "@every 5m"),
		ImportEnrichExisting: getEnvBool("IMPORT_ENRICH_EXISTING", false),
		ServiceIntervalDays:  getEnvInt("SERVICE_INTERVAL_DAYS", 90),
		ServiceIntervalMiles: getEnvInt("SERVICE_INTERVAL_MILES", 5000),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ImportMaxRows <= 0 {
		return Config{}, fmt.Errorf("IMPORT_MAX_ROWS must be positive")
	}
	if cfg.ServiceIntervalDays <= 0 || cfg.ServiceIntervalMiles <= 0 {
		return Config{}, fmt.Errorf("SERVICE_INTERVAL_DAYS and SERVICE_INTERVAL_MILES must be positive")
	}

	return cfg, nil
}

func (c Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvCSV(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

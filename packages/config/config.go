// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	TableName    string
	BaseURL      string
	FetchTimeout time.Duration
	PullBudget   time.Duration
	// Intermediate JSON array written during a pull.
	DataFile string
	// JSONL written by the cleaning collaborator and read by the loader.
	CleanedFile    string
	CleanerCommand string
	CleanerScript  string
	HTTPAddr       string
	MetricsAddr    string
	QueryCatalog   string
	LogFile        string
	LogLevel       string
	// Detail-page cache. Disabled when RedisAddr is empty.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	DetailCacheTTL time.Duration
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads configuration from the environment, after merging any .env file
// found in the working directory.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, relying on environment", "error", err)
	}

	cfg := Config{}
	var missingVars []string

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		missingVars = append(missingVars, "DATABASE_URL")
	}
	if len(missingVars) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	cfg.TableName = getEnv("TABLE_NAME", "applicant")
	if !identifierRegex.MatchString(cfg.TableName) {
		return cfg, fmt.Errorf("invalid TABLE_NAME %q", cfg.TableName)
	}

	cfg.BaseURL = strings.TrimRight(getEnv("BASE_URL", "https://www.thegradcafe.com"), "/")
	cfg.FetchTimeout = getDuration("FETCH_TIMEOUT", 20*time.Second)
	cfg.PullBudget = getDuration("PULL_BUDGET", 10*time.Second)

	cfg.DataFile = getEnv("DATA_FILE", "applicant_data.json")
	cfg.CleanedFile = getEnv("CLEANED_FILE", "applicant_data.jsonl")
	cfg.CleanerCommand = getEnv("CLEANER_COMMAND", "python")
	cfg.CleanerScript = getEnv("CLEANER_SCRIPT", "llm_hosting/app.py")

	cfg.HTTPAddr = getEnv("HTTP_ADDR", "0.0.0.0:8080")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "0.0.0.0:9093")
	cfg.QueryCatalog = getEnv("QUERY_CATALOG", "queries.json5")

	cfg.LogFile = getEnv("LOG_FILE", "logs/gradcafe.log")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)
	cfg.DetailCacheTTL = getDuration("DETAIL_CACHE_TTL", 24*time.Hour)

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in environment", "key", key, "value", raw, "error", err)
		return defaultVal
	}
	return v
}

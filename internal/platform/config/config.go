// Package config loads engine settings from the environment, with an optional
// .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the engine reads at startup.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	ContentAPIURL string
	AudioCDNURL   string
	DBPath        string

	ReciterID      string
	DailyGoalUnits int

	SyncURL      string
	SyncUserID   string
	SyncInterval time.Duration
}

// FromEnv loads .env (if present) and builds a Config from the environment.
// defaultReciter and API/CDN defaults are supplied by the caller so this
// package stays free of content-catalog imports.
func FromEnv(defaultAPIBase, defaultCDNBase, defaultReciter string) Config {
	_ = godotenv.Load()

	return Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ContentAPIURL: getEnv("CONTENT_API_URL", defaultAPIBase),
		AudioCDNURL:   getEnv("AUDIO_CDN_URL", defaultCDNBase),
		DBPath:        getEnv("DB_PATH", "companion.db"),

		ReciterID:      getEnv("RECITER", defaultReciter),
		DailyGoalUnits: getEnvInt("DAILY_GOAL_UNITS", 10),

		SyncURL:      getEnv("SYNC_URL", ""),
		SyncUserID:   getEnv("SYNC_USER_ID", ""),
		SyncInterval: time.Duration(getEnvInt("SYNC_INTERVAL_SECONDS", 60)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment
// variables.
type Config struct {
	// Inputs
	GraphPath string // path to the block graph YAML document
	DataPath  string // path to a single OHLCV CSV file (rows in any date order)

	// Infrastructure
	SQLitePath  string
	MetricsAddr string
	LogLevel    string // debug, info, warn, error

	// Highlight-centric orchestrator window defaults
	BackwardWindowDays int
	ForwardWindowDays  int
	SRTolerancePct     float64
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() *Config {
	return &Config{
		GraphPath: mustEnv("GRAPH_PATH"),
		DataPath:  mustEnv("DATA_PATH"),

		SQLitePath:  getEnv("SQLITE_PATH", "data/patterns.db"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		BackwardWindowDays: getEnvInt("BACKWARD_WINDOW_DAYS", 30),
		ForwardWindowDays:  getEnvInt("FORWARD_WINDOW_DAYS", 1125),
		SRTolerancePct:     getEnvFloat("SR_TOLERANCE_PCT", 2),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
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
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

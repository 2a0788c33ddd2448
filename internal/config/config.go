package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Timer
	MaxSessionDuration time.Duration
	ReaperInterval     time.Duration
	TodayStatsCacheTTL time.Duration
	StartRatePerMinute int
	MigrationsDir      string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		DatabaseURL:        mustGetEnv("DATABASE_URL"),
		RedisURL:           mustGetEnv("REDIS_URL"),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		MaxSessionDuration: time.Duration(getEnvAsIntOrDefault("TIMER_MAX_SESSION_HOURS", 12)) * time.Hour,
		ReaperInterval:     time.Duration(getEnvAsIntOrDefault("REAPER_INTERVAL_MINUTES", 5)) * time.Minute,
		TodayStatsCacheTTL: time.Duration(getEnvAsIntOrDefault("TODAY_STATS_CACHE_SECONDS", 60)) * time.Second,
		StartRatePerMinute: getEnvAsIntOrDefault("START_RATE_LIMIT_PER_MINUTE", 30),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

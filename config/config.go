package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	LogLevel       string

	// RingTimeout bounds how long an invitation may stay unresolved;
	// RoomIdleTimeout bounds how long a room may wait for its second
	// member.
	RingTimeout     time.Duration
	RoomIdleTimeout time.Duration

	RedisEnabled bool
	Redis        RedisConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		AllowedOrigins:  origins,
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RingTimeout:     getDurationEnv("RING_TIMEOUT", 30*time.Second),
		RoomIdleTimeout: getDurationEnv("ROOM_IDLE_TIMEOUT", 60*time.Second),
		RedisEnabled:    getEnv("REDIS_ENABLED", "true") == "true",
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	DBUrl                  string
	JWTSecret              string
	AppEnv                 string
	LogLevel               string
	UseRemoteStore         bool
	LocalStorePath         string
	SeedDemoData           bool
	NotificationsPageLimit int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		DBUrl:                  getEnv("DB_URL", ""),
		JWTSecret:              jwtSecret,
		AppEnv:                 normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		UseRemoteStore:         getEnvBool("USE_REMOTE_STORE", false),
		LocalStorePath:         getEnv("LOCAL_STORE_PATH", "data/store.json"),
		SeedDemoData:           getEnvBool("SEED_DEMO_DATA", false),
		NotificationsPageLimit: getEnvInt("NOTIFICATIONS_PAGE_LIMIT", 20),
	}
	if cfg.UseRemoteStore && cfg.DBUrl == "" {
		return nil, fmt.Errorf("DB_URL is required when USE_REMOTE_STORE is enabled")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// StoreBackend names the Persistence Port implementation selected at startup.
func (c *Config) StoreBackend() string {
	if c.UseRemoteStore {
		return "postgres"
	}
	return "local"
}

package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=value pairs from the given files (default .env)
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("MARKETPLACE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if secret := os.Getenv("MARKETPLACE_JWT_SECRET"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if logLevel := os.Getenv("MARKETPLACE_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// Store
	if mode := os.Getenv("STORE_MODE"); mode != "" {
		cfg.Store.Mode = mode
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}
	cfg.Database.Database = GetEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.User = GetEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = GetEnvOrDefault("DB_PASSWORD", cfg.Database.Password)

	// Load test
	cfg.LoadTest.Host = GetEnvOrDefault("LOADTEST_HOST", cfg.LoadTest.Host)
	cfg.LoadTest.FixturesDir = GetEnvOrDefault("LOADTEST_FIXTURES", cfg.LoadTest.FixturesDir)
	cfg.Identity.Env = GetEnvOrDefault("FXA_ENV", cfg.Identity.Env)
	cfg.Report.Destination = GetEnvOrDefault("LOADTEST_REPORT", cfg.Report.Destination)
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Postgres PostgresConfig `json:"postgres"`
	Logger   LoggerConfig   `json:"logger"`
	Import   ImportConfig   `json:"import"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Dsn      string `json:"dsn"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	TimeZone string `json:"timezone"`
}

type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type ImportConfig struct {
	BatchSize    int      `json:"batch_size"`
	SkipPatterns []string `json:"skip_patterns"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DATABASE", "powietrze"),
			SSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Import: ImportConfig{
			BatchSize:    getEnvAsInt("IMPORT_BATCH_SIZE", 50000),
			SkipPatterns: getEnvAsSlice("IMPORT_SKIP_PATTERNS", []string{"Depozycja"}),
		},
	}

	config.Postgres.Dsn = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		config.Postgres.Host, config.Postgres.Port, config.Postgres.User,
		config.Postgres.Password, config.Postgres.Database,
		func() string {
			if config.Postgres.SSLMode == "false" || config.Postgres.SSLMode == "" {
				return "disable"
			}
			return config.Postgres.SSLMode
		}(),
		config.Postgres.TimeZone,
	)

	return config, config.validate()
}

func (c *Config) validate() error {
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE has to be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

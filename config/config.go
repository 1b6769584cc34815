package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StrategyRandom = "random"
	StrategyBase62 = "base62"
)

const defaultAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Config holds the application configuration. It is loaded once at startup
// and passed explicitly into the components that need it.
type Config struct {
	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	ServerAddr       string

	// Short code allocation
	CodeLength       int    // SHORT_CODE_LENGTH, default 6
	CodeAlphabet     string // SHORT_CODE_ALPHABET, default 62 alphanumerics
	CodeMaxWidth     int    // SHORT_CODE_MAX_WIDTH, default 10
	CodeStrategy     string // SHORT_CODE_STRATEGY, "random" or "base62"
	DefaultTTLMin    int    // MINUTES_TTL_APP, default 1440; 0 disables default expiry
	SweepIntervalMin int    // SWEEP_INTERVAL_MINUTES, default 10; 0 disables the background sweeper
}

// LoadConfig loads environment variables and returns a Config
func LoadConfig() (*Config, error) {
	// Load environment variables from a .env file, if present
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	config := &Config{
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresSSLMode:  getEnvWithDefault("POSTGRES_SSLMODE", "prefer"),
		ServerAddr:       getEnvWithDefault("SERVER_ADDR", ":8080"),
		CodeAlphabet:     getEnvWithDefault("SHORT_CODE_ALPHABET", defaultAlphabet),
		CodeStrategy:     getEnvWithDefault("SHORT_CODE_STRATEGY", StrategyRandom),
	}

	// Parse PostgreSQL port
	if portStr := os.Getenv("POSTGRES_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
		}
		config.PostgresPort = port
	} else {
		config.PostgresPort = 5432 // default PostgreSQL port
	}

	var err error
	if config.CodeLength, err = getEnvInt("SHORT_CODE_LENGTH", 6); err != nil {
		return nil, err
	}
	if config.CodeMaxWidth, err = getEnvInt("SHORT_CODE_MAX_WIDTH", 10); err != nil {
		return nil, err
	}
	if config.DefaultTTLMin, err = getEnvInt("MINUTES_TTL_APP", 1440); err != nil {
		return nil, err
	}
	if config.SweepIntervalMin, err = getEnvInt("SWEEP_INTERVAL_MINUTES", 10); err != nil {
		return nil, err
	}

	if config.CodeStrategy != StrategyRandom && config.CodeStrategy != StrategyBase62 {
		return nil, fmt.Errorf("invalid SHORT_CODE_STRATEGY: %q", config.CodeStrategy)
	}
	if config.CodeLength < 1 || config.CodeLength > config.CodeMaxWidth {
		return nil, fmt.Errorf("SHORT_CODE_LENGTH must be between 1 and %d", config.CodeMaxWidth)
	}
	if len(config.CodeAlphabet) < 2 {
		return nil, fmt.Errorf("SHORT_CODE_ALPHABET must contain at least two characters")
	}

	// Validate database configuration
	if config.PostgresURL == "" {
		// If PostgresURL is not set, validate individual parameters
		if config.PostgresHost == "" || config.PostgresUser == "" || config.PostgresDB == "" {
			return nil, fmt.Errorf("either POSTGRES_URL or POSTGRES_HOST, POSTGRES_USER, and POSTGRES_DB must be set")
		}
		// Build PostgresURL from individual parameters
		config.PostgresURL = buildPostgresURL(config)
	}

	return config, nil
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// buildPostgresURL constructs PostgreSQL connection URL from individual parameters
func buildPostgresURL(config *Config) string {
	password := ""
	if config.PostgresPassword != "" {
		password = ":" + config.PostgresPassword
	}

	return fmt.Sprintf("postgres://%s%s@%s:%d/%s?sslmode=%s",
		config.PostgresUser,
		password,
		config.PostgresHost,
		config.PostgresPort,
		config.PostgresDB,
		config.PostgresSSLMode,
	)
}

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults shared with tests and the CLI.
const (
	DefaultAllowedCurrencies = "USD,EUR,GBP,JPY,CHF,CAD,AUD,NZD,HKD"
	DefaultBaseCurrency      = "EUR"
	DefaultMaxUploadBytes    = 10 * 1024 * 1024
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Security settings
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	MaxUploadSizeBytes int64
	AllowedOrigins     []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Ingestion settings
	AllowedCurrencies []string
	RowFailurePolicy  string

	// Reporting settings
	BaseCurrency   string
	ReportCacheTTL time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		// Common when running from a subdirectory such as cmd/trackctl.
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	Cfg = FromEnv()

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, BaseCurrency=%s, RowFailurePolicy=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.BaseCurrency, Cfg.RowFailurePolicy)
	log.Printf("Allowed currencies loaded: %d", len(Cfg.AllowedCurrencies))
}

// FromEnv builds an AppConfig from the process environment without touching .env files.
func FromEnv() *AppConfig {
	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", strconv.Itoa(DefaultMaxUploadBytes))
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil || maxUploadSizeBytes <= 0 {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB.", maxUploadSizeBytesStr)
		maxUploadSizeBytes = DefaultMaxUploadBytes
	}

	return &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./trackfolio.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute),
		MaxUploadSizeBytes: maxUploadSizeBytes,
		AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),

		AllowedCurrencies: upperAll(getEnvAsList("ALLOWED_CURRENCIES", DefaultAllowedCurrencies)),
		RowFailurePolicy:  strings.ToLower(getEnv("ROW_FAILURE_POLICY", "abort")),

		BaseCurrency:   strings.ToUpper(getEnv("BASE_CURRENCY", DefaultBaseCurrency)),
		ReportCacheTTL: getEnvAsDuration("REPORT_CACHE_TTL", 5*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil && value > 0 {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func upperAll(items []string) []string {
	for i, item := range items {
		items[i] = strings.ToUpper(item)
	}
	return items
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Media    MediaConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Finance  FinanceConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	CORSOrigins []string
	LogLevel    string
	LogFormat   string // "console" or "json"
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN assembles the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

// MediaConfig holds uploaded-file storage configuration
type MediaConfig struct {
	Root    string // directory uploads are written under
	URLPath string // public route the root is served at
}

// OCRConfig holds document text extraction configuration
type OCRConfig struct {
	PdftotextBin string
	PdftoppmBin  string
	TesseractBin string
	Language     string
	DPI          int
	MinTextLen   int // below this, a PDF text layer is considered empty
	Timeout      time.Duration
}

// LLMConfig holds metadata enrichment configuration. An empty APIKey disables
// enrichment entirely.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// FinanceConfig holds role-visibility configuration
type FinanceConfig struct {
	ViewAll bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvAsSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "console"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Media: MediaConfig{
			Root:    getEnv("MEDIA_ROOT", "./media"),
			URLPath: getEnv("MEDIA_URL_PATH", "/media"),
		},
		OCR: OCRConfig{
			PdftotextBin: getEnv("PDFTOTEXT_BIN", "pdftotext"),
			PdftoppmBin:  getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TesseractBin: getEnv("TESSERACT_BIN", "tesseract"),
			Language:     getEnv("OCR_LANGUAGE", "eng"),
			DPI:          getEnvAsInt("OCR_DPI", 300),
			MinTextLen:   getEnvAsInt("OCR_MIN_TEXT_LEN", 16),
			Timeout:      getEnvAsDuration("OCR_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 20*time.Second),
		},
		Finance: FinanceConfig{
			ViewAll: getEnvAsBool("FINANCE_VIEW_ALL", true),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

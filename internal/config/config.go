// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds all application configuration for the server and CLI.
type Config struct {
	Port     string
	LogLevel slog.Level

	Database  DatabaseConfig
	Model     ModelConfig
	Agent     AgentConfig
	Retrieval RetrievalConfig
}

type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"
	URL    string
}

type ModelConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	ClassifierModel string
	Timeout         time.Duration
	MaxRetries      int
}

type AgentConfig struct {
	MaxTranscriptChars int
	TopicMode          string
	PromptsFile        string
	Location           *time.Location
}

// RetrievalConfig is disabled when Host is empty.
type RetrievalConfig struct {
	Host         string
	Scheme       string
	Class        string
	TextProperty string
	Limit        int
}

// Enabled reports whether a retriever should be wired.
func (r RetrievalConfig) Enabled() bool {
	return r.Host != ""
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Bangkok"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: level,
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
			URL:    getEnv("DATABASE_URL", "./data/health-agent.db"),
		},
		Model: ModelConfig{
			BaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			Model:           getEnv("MODEL", "gpt-4o-mini"),
			ClassifierModel: getEnv("CLASSIFIER_MODEL", ""),
			Timeout:         getEnvDuration("MODEL_TIMEOUT", 30*time.Second),
			MaxRetries:      getEnvInt("MODEL_MAX_RETRIES", 2),
		},
		Agent: AgentConfig{
			MaxTranscriptChars: getEnvInt("MAX_TRANSCRIPT_CHARS", 8000),
			TopicMode:          getEnv("TOPIC_MODE", "checklist"),
			PromptsFile:        getEnv("PROMPTS_FILE", ""),
			Location:           loc,
		},
		Retrieval: RetrievalConfig{
			Host:         getEnv("WEAVIATE_HOST", ""),
			Scheme:       getEnv("WEAVIATE_SCHEME", "http"),
			Class:        getEnv("WEAVIATE_CLASS", "HealthDocument"),
			TextProperty: getEnv("WEAVIATE_TEXT_PROPERTY", "content"),
			Limit:        getEnvInt("RETRIEVAL_LIMIT", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("MODEL cannot be empty")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be > 0")
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("MODEL_MAX_RETRIES must be >= 0")
	}
	if c.Agent.MaxTranscriptChars <= 0 {
		return fmt.Errorf("MAX_TRANSCRIPT_CHARS must be > 0")
	}
	switch c.Agent.TopicMode {
	case "checklist", "info_only":
	default:
		return fmt.Errorf("TOPIC_MODE must be checklist or info_only, got %q", c.Agent.TopicMode)
	}
	if c.Retrieval.Enabled() && c.Retrieval.Limit <= 0 {
		return fmt.Errorf("RETRIEVAL_LIMIT must be > 0")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// Package config loads the service configuration from config.yaml and the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the config file read when no path is given.
	DefaultPath = "config.yaml"

	DefaultAddr         = ":8080"
	DefaultDriver       = "postgres"
	DefaultImagesDir    = "images"
	DefaultLogLevel     = "normal"
	DefaultGeminiModel  = "gemini-1.5-flash"
	DefaultRandomCount  = 10
	DefaultAllowOrigins = "http://localhost:8081"
)

// Config represents the application configuration.
type Config struct {
	Addr         string   `yaml:"addr"`
	LogLevel     string   `yaml:"log_level"`
	AllowOrigins []string `yaml:"allow_origins"`
	ImagesDir    string   `yaml:"images_dir"`

	MealDB  MealDBConfig  `yaml:"mealdb"`
	Storage StorageConfig `yaml:"storage"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// MealDBConfig configures the remote recipe service.
type MealDBConfig struct {
	BaseURL     string `yaml:"base_url"`
	RandomCount int    `yaml:"random_count"`
}

// StorageConfig selects the durable slot backend: "postgres" or "memory".
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

// GeminiConfig enables photo drafting when APIKey is set.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Addr:         DefaultAddr,
		LogLevel:     DefaultLogLevel,
		AllowOrigins: []string{DefaultAllowOrigins},
		ImagesDir:    DefaultImagesDir,
		MealDB: MealDBConfig{
			RandomCount: DefaultRandomCount,
		},
		Storage: StorageConfig{
			Driver: DefaultDriver,
		},
		Gemini: GeminiConfig{
			Model: DefaultGeminiModel,
		},
	}
}

// Load reads path over the defaults (a missing file is fine), then applies
// variables from .env and the process environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Addr, "RECIPEBOX_ADDR")
	set(&c.LogLevel, "RECIPEBOX_LOG_LEVEL")
	set(&c.Storage.Driver, "RECIPEBOX_STORAGE")
	set(&c.Storage.DatabaseURL, "DATABASE_URL")
	set(&c.MealDB.BaseURL, "MEALDB_BASE_URL")
	set(&c.Gemini.APIKey, "GEMINI_API_KEY")
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url (or DATABASE_URL) is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.MealDB.RandomCount < 1 {
		return fmt.Errorf("mealdb.random_count must be at least 1, got %d", c.MealDB.RandomCount)
	}
	return nil
}

// Package config reads configuration from the environment, with an optional
// YAML file layered on top for deployments that prefer files over env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	ListenAddr string
	Env        string

	// Storage backends. Redis takes precedence for messages when both are
	// set; SQLite always backs the user directory when set.
	RedisAddr  string
	SQLitePath string

	// Auth.
	JWTSecret string
	TokenTTL  time.Duration

	// Gateway limits.
	MaxMessageLength int
	MaxConns         int
	IdleTimeout      time.Duration

	// Rate limiting for auth endpoints and the WebSocket upgrade.
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// fileConfig mirrors Config for the optional YAML file. Zero values mean
// "keep whatever the environment said".
type fileConfig struct {
	ListenAddr       string        `yaml:"listen_addr"`
	Env              string        `yaml:"env"`
	RedisAddr        string        `yaml:"redis_addr"`
	SQLitePath       string        `yaml:"sqlite_path"`
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	MaxMessageLength int           `yaml:"max_message_length"`
	MaxConns         int           `yaml:"max_conns"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RateLimitMax     int           `yaml:"rate_limit_max"`
	RateLimitWindow  time.Duration `yaml:"rate_limit_window"`
}

// Load reads configuration from environment variables, loading a .env file
// first if present. If CONFIG_FILE is set, that YAML file overrides the
// environment. In production a real JWT secret is required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		Env:              getEnv("ENV", "development"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		TokenTTL:         getDuration("TOKEN_TTL", 24*time.Hour),
		MaxMessageLength: getInt("MAX_MESSAGE_LENGTH", 2000),
		MaxConns:         getInt("MAX_CONNS", 0),
		IdleTimeout:      getDuration("IDLE_TIMEOUT", 0),
		RateLimitMax:     getInt("RATE_LIMIT_MAX", 20),
		RateLimitWindow:  getDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.Env == "production" && cfg.JWTSecret == "dev-secret" {
		return nil, fmt.Errorf("config: JWT_SECRET is required in production")
	}
	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// applyFile overlays non-zero values from a YAML file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.Env != "" {
		c.Env = fc.Env
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	if fc.SQLitePath != "" {
		c.SQLitePath = fc.SQLitePath
	}
	if fc.JWTSecret != "" {
		c.JWTSecret = fc.JWTSecret
	}
	if fc.TokenTTL != 0 {
		c.TokenTTL = fc.TokenTTL
	}
	if fc.MaxMessageLength != 0 {
		c.MaxMessageLength = fc.MaxMessageLength
	}
	if fc.MaxConns != 0 {
		c.MaxConns = fc.MaxConns
	}
	if fc.IdleTimeout != 0 {
		c.IdleTimeout = fc.IdleTimeout
	}
	if fc.RateLimitMax != 0 {
		c.RateLimitMax = fc.RateLimitMax
	}
	if fc.RateLimitWindow != 0 {
		c.RateLimitWindow = fc.RateLimitWindow
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

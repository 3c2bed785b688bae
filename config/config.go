package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionBackendMongo = "mongo"
	SessionBackendRedis = "redis"
)

type Config struct {
	// MongoDB configuration
	MongoURI     string
	DatabaseName string

	// Session configuration
	SessionBackend         string
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration
	CookieSecure           bool

	// Redis, only read when SessionBackend is "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Credentials
	BcryptCost int

	// Server configuration
	Port        string
	CORSOrigins string
	Env         string
}

// LoadConfig reads configuration from the process environment. Values from a
// .env file are expected to be loaded into the environment beforehand.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "clinic")
	v.SetDefault("SESSION_BACKEND", SessionBackendMongo)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_CLEANUP_INTERVAL", "1h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("PORT", "3000")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000, http://127.0.0.1:3000")
	v.SetDefault("APP_ENV", "development")

	cfg := &Config{
		MongoURI:               v.GetString("MONGO_URI"),
		DatabaseName:           v.GetString("MONGO_DB_NAME"),
		SessionBackend:         strings.ToLower(strings.TrimSpace(v.GetString("SESSION_BACKEND"))),
		SessionTTL:             v.GetDuration("SESSION_TTL"),
		SessionCleanupInterval: v.GetDuration("SESSION_CLEANUP_INTERVAL"),
		CookieSecure:           v.GetBool("COOKIE_SECURE"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		BcryptCost:             v.GetInt("BCRYPT_COST"),
		Port:                   v.GetString("PORT"),
		CORSOrigins:            v.GetString("CORS_ORIGINS"),
		Env:                    v.GetString("APP_ENV"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and within range.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return errors.New("MONGO_URI not set")
	}
	if c.DatabaseName == "" {
		return errors.New("MONGO_DB_NAME not set")
	}
	switch c.SessionBackend {
	case SessionBackendMongo:
	case SessionBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR must be set when SESSION_BACKEND is redis")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBackendMongo, SessionBackendRedis, c.SessionBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.SessionCleanupInterval <= 0 {
		return fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive, got %s", c.SessionCleanupInterval)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	return nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

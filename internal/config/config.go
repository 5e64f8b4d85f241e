package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile        string
	MirrorDSN     string
	APIAddr       string
	AdminAddr     string
	AdminUser     string
	AdminPassword string
	TokenExpiry   time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "12h"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:        getEnv("NEONCHAT_DB", "neonchat.db"),
		MirrorDSN:     getEnv("MIRROR_DSN", "neonchat_mirror.db"),
		APIAddr:       getEnv("API_ADDR", ":8080"),
		AdminAddr:     getEnv("ADMIN_ADDR", "localhost:8081"),
		AdminUser:     getEnv("ADMIN_USER", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		TokenExpiry:   tokenExpiry,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

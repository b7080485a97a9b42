// Package config loads client settings from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the chat client and the archiver.
type Config struct {
	RedisAddr   string
	NATSURL     string
	PostgresURL string // archiver only
	AuthKey     string // JWT signing key
	MetricsAddr string // empty disables the metrics endpoint
	Timezone    string // IANA zone name for date separators
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env file")
	}

	cfg := &Config{
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		PostgresURL: getEnv("POSTGRES_URL", ""),
		AuthKey:     getEnv("AUTH_KEY", ""),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
		Timezone:    getEnv("TIMEZONE", ""),
	}

	log.Printf("[config] redis_addr:   %s", cfg.RedisAddr)
	log.Printf("[config] nats_url:     %s", cfg.NATSURL)
	if cfg.PostgresURL != "" {
		log.Printf("[config] postgres_url: %s", maskURL(cfg.PostgresURL))
	}
	if cfg.MetricsAddr != "" {
		log.Printf("[config] metrics_addr: %s", cfg.MetricsAddr)
	}
	return cfg
}

// Location resolves the configured time zone, falling back to the process
// zone when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[config] unknown timezone %q, using local: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// maskURL hides credentials in a connection URL.
func maskURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := ""
	if i := strings.Index(url, "://"); i >= 0 {
		scheme = url[:i+3]
	}
	return scheme + "****:****" + url[at:]
}

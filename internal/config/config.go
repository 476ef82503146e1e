package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL      string `yaml:"ttl"`
		SeedFile string `yaml:"seed_file"`
	} `yaml:"questions"`
	Session struct {
		Store        string `yaml:"store"`
		CodeAttempts int    `yaml:"code_attempts"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"session"`
}

// Load reads YAML config from path. An empty path yields the zero config so the
// service can run from flags and environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SessionStore resolves the session backend: explicit setting first, then Redis when
// configured, then Postgres, else in-memory.
func (c Config) SessionStore() string {
	switch {
	case c.Session.Store != "":
		return c.Session.Store
	case c.Redis.Addr != "":
		return StoreRedis
	case c.Postgres.URL != "":
		return StorePostgres
	}
	return StoreMemory
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	switch c.Session.Store {
	case "", StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("session.store: unknown store %q", c.Session.Store)
	}
	if c.Session.CodeAttempts < 0 {
		return errors.New("session.code_attempts must not be negative")
	}
	if c.SessionStore() == StoreRedis && c.Redis.Addr == "" {
		return errors.New("session.store is redis but redis.addr is empty")
	}
	if c.SessionStore() == StorePostgres && c.Postgres.URL == "" {
		return errors.New("session.store is postgres but postgres.url is empty")
	}
	for name, raw := range map[string]string{
		"redis.ttl":             c.Redis.TTL,
		"questions.ttl":         c.Questions.TTL,
		"session.poll_interval": c.Session.PollInterval,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

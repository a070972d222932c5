package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pion/ice/v2"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Mailbox   MailboxConfig   `yaml:"mailbox"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env-default:"65536"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Issuer      string        `yaml:"issuer" env-default:"signalbox"`
	TokenTTL    time.Duration `yaml:"token_ttl" env-default:"12h"`
	AllowGuests bool          `yaml:"allow_guests" env:"AUTH_ALLOW_GUESTS"`
}

// MailboxConfig controls session retention and admission.
// A zero IdleTTL keeps mailboxes until they are cleared.
type MailboxConfig struct {
	Store            string        `yaml:"store" env:"MAILBOX_STORE" env-default:"memory"`
	IdleTTL          time.Duration `yaml:"idle_ttl" env-default:"5m"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env-default:"30s"`
	MaxSessions      int           `yaml:"max_sessions" env-default:"10000"`
	MaxMembers       int           `yaml:"max_members" env-default:"0"`
	ValidatePayloads bool          `yaml:"validate_payloads"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env-default:"20"`
	Burst             int     `yaml:"burst" env-default:"40"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env-default:""`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// LoadPath reads the YAML file at configPath, applies env overrides and
// defaults, and validates the result.
func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Mailbox.Store == "" {
		c.Mailbox.Store = StoreMemory
	}
	if c.Mailbox.SweepInterval <= 0 {
		c.Mailbox.SweepInterval = 30 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Mailbox.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres store")
		}
	default:
		return fmt.Errorf("unknown mailbox store %q", c.Mailbox.Store)
	}
	if c.Mailbox.IdleTTL < 0 {
		return errors.New("mailbox.idle_ttl must not be negative")
	}
	if c.Mailbox.MaxSessions < 0 || c.Mailbox.MaxMembers < 0 {
		return errors.New("mailbox limits must not be negative")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	for _, raw := range c.WebRTC.STUNServers {
		if _, err := ice.ParseURL(raw); err != nil {
			return fmt.Errorf("webrtc.stun_servers: %q: %w", raw, err)
		}
	}
	return nil
}

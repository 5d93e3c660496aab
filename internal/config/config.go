// Package config loads the service configuration from a TOML file, an
// optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/keyvault/adapters/cipher"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full runtime configuration
type Config struct {
	Server   Server   `toml:"server"`
	Security Security `toml:"security"`
	APIKeys  APIKeys  `toml:"api_keys"`
	Database Database `toml:"database"`
	Redis    Redis    `toml:"redis"`
	Signing  Signing  `toml:"signing"`
}

type Server struct {
	Port int `toml:"port"`
	// RateLimit guards the admin endpoints, in limiter notation ("10-M")
	RateLimit string `toml:"rate_limit"`
}

// Security holds the process secrets. The master key is either SecretKey
// (64 hex chars) or derived from MasterPassphrase and MasterSalt.
type Security struct {
	AdminSecret      string `toml:"admin_secret"`
	JWTSecret        string `toml:"jwt_secret"`
	SecretKey        string `toml:"secret_key"`
	MasterPassphrase string `toml:"master_passphrase"`
	MasterSalt       string `toml:"master_salt"`
}

type APIKeys struct {
	Duration         Duration `toml:"duration"`
	MaxDuration      Duration `toml:"max_duration"`
	AuthorizedEmails []string `toml:"authorized_emails"`
}

type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type Redis struct {
	URL      string   `toml:"url"`
	CacheTTL Duration `toml:"cache_ttl"`
}

type Signing struct {
	DefaultChain string   `toml:"default_chain"`
	Timeout      Duration `toml:"timeout"`
}

// Duration decodes "90s" style strings, or a bare integer as seconds
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: Server{
			Port:      3000,
			RateLimit: "30-M",
		},
		APIKeys: APIKeys{
			Duration: Duration{time.Hour},
		},
		Database: Database{
			Driver: DriverSQLite,
		},
		Redis: Redis{
			CacheTTL: Duration{30 * time.Second},
		},
		Signing: Signing{
			DefaultChain: "ethereum",
			Timeout:      Duration{10 * time.Second},
		},
	}
}

// Validate reports the first missing or inconsistent setting
func (c *Config) Validate() error {
	if c.Security.AdminSecret == "" {
		return errors.New("ADMIN_SECRET is required")
	}
	if c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Security.SecretKey == "" && c.Security.MasterPassphrase == "" {
		return errors.New("SECRET_KEY or MASTER_PASSPHRASE is required")
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.APIKeys.Duration.Duration < 0 || c.APIKeys.MaxDuration.Duration < 0 {
		return errors.New("api key durations must not be negative")
	}
	if c.APIKeys.MaxDuration.Duration > 0 && c.APIKeys.Duration.Duration > c.APIKeys.MaxDuration.Duration {
		return errors.New("API_KEY_DURATION exceeds API_KEY_MAX_DURATION")
	}
	return nil
}

// ValidateDatabase checks only the storage settings. Administrative
// commands that never serve requests need nothing else.
func (c *Config) ValidateDatabase() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

// MasterKey resolves the 32 byte master key
func (c *Config) MasterKey() ([]byte, error) {
	if c.Security.SecretKey != "" {
		return cipher.ParseMasterKey(c.Security.SecretKey)
	}
	if c.Security.MasterPassphrase == "" {
		return nil, errors.New("no master key configured")
	}
	return cipher.DeriveMasterKey([]byte(c.Security.MasterPassphrase), []byte(c.Security.MasterSalt))
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

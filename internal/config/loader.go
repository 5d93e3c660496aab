package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
)

var log = logging.Logger("keyvault/config")

const (
	defaultConfigPath = "configs/config.toml"
	legacyConfigPath  = "config.toml"
)

// LoadDotEnv loads variables from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	log.Debugf("loaded environment from %s", path)
	return nil
}

// Load reads the TOML file at path, or the first default location found
// when path is empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{defaultConfigPath, legacyConfigPath} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(expandPath(path), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		log.Infof("loaded configuration from %s", path)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Database.DSN = expandPath(cfg.Database.DSN)
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		dst.Duration = d
		return nil
	}

	str("ADMIN_SECRET", &cfg.Security.AdminSecret)
	str("JWT_SECRET", &cfg.Security.JWTSecret)
	str("SECRET_KEY", &cfg.Security.SecretKey)
	str("MASTER_PASSPHRASE", &cfg.Security.MasterPassphrase)
	str("MASTER_SALT", &cfg.Security.MasterSalt)
	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)
	str("REDIS_URL", &cfg.Redis.URL)
	str("DEFAULT_CHAIN", &cfg.Signing.DefaultChain)
	str("RATE_LIMIT", &cfg.Server.RateLimit)

	if v, ok := lookup("AUTHORIZED_EMAILS"); ok && v != "" {
		cfg.APIKeys.AuthorizedEmails = splitList(v)
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: invalid value %q", v)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("DB_MOCK"); ok && v != "" {
		mock, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DB_MOCK: invalid value %q", v)
		}
		if mock {
			cfg.Database.Driver = DriverMemory
		}
	}

	for key, dst := range map[string]*Duration{
		"API_KEY_DURATION":     &cfg.APIKeys.Duration,
		"API_KEY_MAX_DURATION": &cfg.APIKeys.MaxDuration,
		"REDIS_CACHE_TTL":      &cfg.Redis.CacheTTL,
		"SIGN_TIMEOUT":         &cfg.Signing.Timeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandPath expands a leading ~ to the user's home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[1:])
		}
	}
	return path
}

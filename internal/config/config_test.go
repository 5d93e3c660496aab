package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[server]
port = 8080
rate_limit = "5-M"

[security]
admin_secret = "file-admin"
jwt_secret = "file-jwt"
secret_key = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

[api_keys]
duration = "2h"
max_duration = "720h"
authorized_emails = ["ops@example.com"]

[database]
driver = "postgres"
dsn = "postgres://keyvault@localhost/keyvault"

[signing]
default_chain = "solana"
timeout = "5s"
`

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "config.toml", sampleTOML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "5-M", cfg.Server.RateLimit)
	assert.Equal(t, "file-admin", cfg.Security.AdminSecret)
	assert.Equal(t, 2*time.Hour, cfg.APIKeys.Duration.Duration)
	assert.Equal(t, 720*time.Hour, cfg.APIKeys.MaxDuration.Duration)
	assert.Equal(t, []string{"ops@example.com"}, cfg.APIKeys.AuthorizedEmails)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "solana", cfg.Signing.DefaultChain)
	assert.Equal(t, 5*time.Second, cfg.Signing.Timeout.Duration)
	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL.Duration)
	require.NoError(t, cfg.Validate())

	key, err := cfg.MasterKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.Equal(t, byte(0x1f), key[31])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, envMap(map[string]string{
		"ADMIN_SECRET":         "env-admin",
		"JWT_SECRET":           "env-jwt",
		"SECRET_KEY":           "ab",
		"AUTHORIZED_EMAILS":    " a@example.com, ,b@example.com ",
		"API_KEY_DURATION":     "7200",
		"API_KEY_MAX_DURATION": "48h",
		"PORT":                 "9000",
		"DB_MOCK":              "true",
		"REDIS_URL":            "redis://localhost:6379/1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env-admin", cfg.Security.AdminSecret)
	assert.Equal(t, "env-jwt", cfg.Security.JWTSecret)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.APIKeys.AuthorizedEmails)
	assert.Equal(t, 2*time.Hour, cfg.APIKeys.Duration.Duration)
	assert.Equal(t, 48*time.Hour, cfg.APIKeys.MaxDuration.Duration)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
	assert.Equal(t, ":9000", cfg.Addr())
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	for key, value := range map[string]string{
		"PORT":             "eighty",
		"DB_MOCK":          "perhaps",
		"API_KEY_DURATION": "forever",
	} {
		t.Run(key, func(t *testing.T) {
			err := applyEnv(Default(), envMap(map[string]string{key: value}))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Security.AdminSecret = "a"
		cfg.Security.JWTSecret = "j"
		cfg.Security.MasterPassphrase = "p"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"no admin secret":   func(c *Config) { c.Security.AdminSecret = "" },
		"no jwt secret":     func(c *Config) { c.Security.JWTSecret = "" },
		"no master key":     func(c *Config) { c.Security.MasterPassphrase = "" },
		"unknown driver":    func(c *Config) { c.Database.Driver = "mongo" },
		"postgres no dsn":   func(c *Config) { c.Database.Driver = DriverPostgres },
		"bad port":          func(c *Config) { c.Server.Port = 0 },
		"duration over max": func(c *Config) { c.APIKeys.MaxDuration = Duration{time.Minute} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	// no secrets configured at all
	cfg := Default()
	require.NoError(t, cfg.ValidateDatabase())
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = DriverPostgres
	assert.Error(t, cfg.ValidateDatabase())
	cfg.Database.DSN = "postgres://keyvault@localhost/keyvault"
	assert.NoError(t, cfg.ValidateDatabase())

	cfg.Database.Driver = "mongo"
	assert.Error(t, cfg.ValidateDatabase())
}

func TestMasterKey_Passphrase(t *testing.T) {
	cfg := Default()
	cfg.Security.MasterPassphrase = "correct horse"
	cfg.Security.MasterSalt = "salt"

	a, err := cfg.MasterKey()
	require.NoError(t, err)
	b, err := cfg.MasterKey()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.Equal(t, a, b)

	cfg.Security.MasterSalt = "other"
	c, err := cfg.MasterKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = Default().MasterKey()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := writeFile(t, ".env", "KEYVAULT_TEST_DOTENV=from-file\n")
	t.Setenv("KEYVAULT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("KEYVAULT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("KEYVAULT_TEST_DOTENV"))
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90")))
	assert.Equal(t, 90*time.Second, d.Duration)
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

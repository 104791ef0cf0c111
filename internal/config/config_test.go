package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Empty(t, cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 5.0, cfg.Ingest.RateLimit, 0.001)
	assert.Equal(t, 10, cfg.Ingest.Burst)
	assert.Equal(t, 16, cfg.Ingest.MaxBodyMB)
	assert.Equal(t, 60, cfg.Source.TimeoutSecs)
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.Equal(t, "offers-cli/1.0", cfg.Source.UserAgent)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: offers.db
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins:
    - https://offers.example.com
ingest:
  burst: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "offers.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://offers.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 3, cfg.Ingest.Burst)
	// Defaults still apply for unset values
	assert.Equal(t, 16, cfg.Ingest.MaxBodyMB)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OFFERS_STORE_DRIVER", "postgres")
	t.Setenv("OFFERS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("OFFERS_SERVER_PORT", "3000")
	t.Setenv("OFFERS_STORE_DATABASE_URL", "postgres://localhost/offers")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/offers", cfg.Store.DatabaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Store.MaxConns = 10
	cfg.Store.MinConns = 2
	cfg.Server.Port = 8080
	cfg.Ingest.RateLimit = 5
	cfg.Ingest.Burst = 10
	cfg.Ingest.MaxBodyMB = 16
	cfg.Source.TimeoutSecs = 60
	cfg.Source.MaxRetries = 3
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "import", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidatePostgres_MissingURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateSQLite_NoURLNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = ""

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidatePoolBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Store.MaxConns = 0
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.max_conns must be > 0")

	cfg.Store.MaxConns = 4
	cfg.Store.MinConns = 5
	err = cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.min_conns")

	cfg.Store.MinConns = 4
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_IngestLimits(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.RateLimit = 0
	cfg.Ingest.Burst = 0
	cfg.Ingest.MaxBodyMB = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.rate_limit must be > 0")
	assert.Contains(t, err.Error(), "ingest.burst must be >= 1")
	assert.Contains(t, err.Error(), "ingest.max_body_mb must be >= 1")

	// Import mode does not look at the server limits.
	assert.NoError(t, cfg.Validate("import"))
}

func TestValidateImport_SourceSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Source.TimeoutSecs = 0
	cfg.Source.MaxRetries = -1

	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.timeout_secs")
	assert.Contains(t, err.Error(), "source.max_retries")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

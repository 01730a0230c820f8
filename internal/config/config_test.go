package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, databaseDSNEnv, databaseDrvEnv, timezoneEnv, logLevelEnv,
		telegramTokenEnv, telegramChatIDEnv, adminAddrEnv, otlpEndpointEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 4, cfg.Source.Workers)
	assert.Equal(t, 60*time.Second, cfg.History.DedupWindow)
	assert.Equal(t, "Available Soon", cfg.Source.AvailableSoonMarker)
	assert.Equal(t, "America/Denver", cfg.Scheduler.Location().String())
	assert.NotEmpty(t, cfg.Source.DomainEndpoints())
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: pgx
  dsn: postgres://file
scheduler:
  interval: 5m
  timezone: America/Chicago
source:
  endpoints:
    - name: dogs
      url: https://widget.example/dogs
    - name: featured
      kind: page
      url: https://shelter.example/featured
  timeout: 10s
  workers: 0
history:
  dedupWindow: 2m
logging:
  level: debug
  format: json
`), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env")
	t.Setenv(otlpEndpointEnv, "http://collector:4318")

	cfg := Load()
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "America/Chicago", cfg.Scheduler.Location().String())
	assert.Equal(t, 10*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 4, cfg.Source.Workers, "non-positive workers fall back to default")
	assert.Equal(t, 2*time.Minute, cfg.History.DedupWindow)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Tracing.Enabled)
	assert.True(t, cfg.Tracing.Insecure)
	assert.Equal(t, "collector:4318", cfg.Tracing.Endpoint)

	endpoints := cfg.Source.DomainEndpoints()
	require.Len(t, endpoints, 2)
	assert.Equal(t, "widget", endpoints[0].Kind)
	assert.Equal(t, "page", endpoints[1].Kind)
}

func TestLoad_UnknownTimezone(t *testing.T) {
	clearEnv(t)
	t.Setenv(timezoneEnv, "Mars/Olympus")

	cfg := Load()
	assert.Equal(t, defaultTimezone, cfg.Scheduler.Timezone)
	assert.Equal(t, defaultTimezone, cfg.Scheduler.Location().String())
}

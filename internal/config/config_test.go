package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"api": { "baseUrl": "https://telemetry.example.com", "token": "abc123" },
		"store": { "backend": "postgres", "dsn": "host=10.0.0.1 dbname=fleet" }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fleettrack.cfg.json"), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", GetString("logLevel"))
	assert.Equal(t, "https://telemetry.example.com", GetString("api.baseUrl"))
	assert.Equal(t, "abc123", GetString("api.token"))
	assert.Equal(t, "postgres", GetString("store.backend"))
	assert.Equal(t, "host=10.0.0.1 dbname=fleet", GetString("store.dsn"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fleettrack.cfg.json"), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", GetString("logLevel"))
	assert.Equal(t, "./fleetlogs", GetString("logsDir"))
	assert.Equal(t, "http://localhost:8080", GetString("api.baseUrl"))
	assert.Equal(t, "", GetString("api.token"))
	assert.Equal(t, "sqlite", GetString("store.backend"))
	assert.Equal(t, "./fleettrack.db", GetString("store.path"))
	assert.Equal(t, 300*time.Millisecond, GetMillis("controller.debounceMs"))
	assert.Equal(t, 7, GetInt("controller.defaultRangeDays"))
	assert.InDelta(t, 1.0, GetFloat("playback.defaultSpeed"), 1e-9)
	assert.True(t, GetBool("stream.enabled"))
	assert.Equal(t, ":8090", GetString("stream.listenAddr"))
	assert.False(t, GetBool("influx.enabled"))
	assert.False(t, GetBool("graylog.enabled"))
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Len(t, cfg.Venues, 3)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yamlBody := []byte(`
server:
  host: "127.0.0.1"
  port: 9090
venues:
  hyperliquid:
    enabled: true
    rest_base_url: "https://custom.example"
    ws_url: "wss://custom.example/ws"
    heartbeat_every: 20s
    reconnect_base: 1s
    reconnect_cap: 30s
    max_attempts: 5
`)
	require.NoError(t, os.WriteFile(path, yamlBody, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://custom.example", cfg.Venues["hyperliquid"].RESTBaseURL)
}

func TestValidateRejectsZeroVenues(t *testing.T) {
	cfg := Default()
	cfg.Venues = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsAllVenuesDisabled(t *testing.T) {
	cfg := Default()
	for name, v := range cfg.Venues {
		v.Enabled = false
		cfg.Venues[name] = v
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingRESTBaseURL(t *testing.T) {
	cfg := Default()
	v := cfg.Venues["hyperliquid"]
	v.RESTBaseURL = ""
	cfg.Venues["hyperliquid"] = v
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrideWinsOverDefaults(t *testing.T) {
	t.Setenv("GATEWAY_HTTP_PORT", "7777")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

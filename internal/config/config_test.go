// ABOUTME: Tests for configuration loading.
// ABOUTME: Covers YAML parsing, env expansion, duration parsing, defaults, and validation.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: http://backend:9000
auth:
  token_env: MY_TOKEN
  token_file: /tmp/token
stream:
  reconnect_delay: 250ms
logging:
  level: debug
  format: json
stub:
  http_addr: localhost:9001
  database_path: /tmp/orders.db
  jwt_secret: sekrit
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.Server.BaseURL)
	assert.Equal(t, "MY_TOKEN", cfg.Auth.TokenEnv)
	assert.Equal(t, "/tmp/token", cfg.Auth.TokenFile)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.ReconnectDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "localhost:9001", cfg.Stub.HTTPAddr)
	assert.Equal(t, "sekrit", cfg.Stub.JWTSecret)
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("KUNJAL_TEST_URL", "http://expanded:8000")

	path := writeConfig(t, `
server:
  base_url: ${KUNJAL_TEST_URL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://expanded:8000", cfg.Server.BaseURL)
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: warn
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Server.BaseURL)
	assert.Equal(t, time.Second, cfg.Stream.ReconnectDelay)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
stream:
  reconnect_delay: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect_delay")
}

func TestLoadMissingBaseURL(t *testing.T) {
	t.Setenv("KUNJAL_TEST_EMPTY", "")
	path := writeConfig(t, `
server:
  base_url: ${KUNJAL_TEST_EMPTY}
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.BaseURL, cfg.Server.BaseURL)
}

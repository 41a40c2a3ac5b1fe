package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CADMIRROR_CONFIG", "")
	t.Setenv("ONSHAPE_ACCESS_KEY", "ak")
	t.Setenv("ONSHAPE_SECRET_KEY", "sk")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://cad.onshape.com/api/v6", cfg.Onshape.BaseURL)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 20, cfg.Sync.PageSize)
	assert.Equal(t, 4, cfg.Sync.MaxInFlight)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.RetryBase)
	assert.Equal(t, 2, cfg.Sync.MaxConcurrentRuns)
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("CADMIRROR_CONFIG", "")
	t.Setenv("ONSHAPE_ACCESS_KEY", "")
	t.Setenv("ONSHAPE_SECRET_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CADMIRROR_CONFIG", "")
	t.Setenv("ONSHAPE_ACCESS_KEY", "ak")
	t.Setenv("ONSHAPE_SECRET_KEY", "sk")
	t.Setenv("ONSHAPE_BASE_URL", "https://onshape.example.com/api")
	t.Setenv("API_PORT", "9090")
	t.Setenv("SYNC_PAGE_SIZE", "50")
	t.Setenv("SYNC_RETRY_BASE", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://onshape.example.com/api", cfg.Onshape.BaseURL)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, 50, cfg.Sync.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Sync.RetryBase)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
onshape:
  access_key: yaml-ak
  secret_key: yaml-sk
api_port: 7070
sync:
  workers: 8
`), 0o600))

	t.Setenv("CADMIRROR_CONFIG", path)
	t.Setenv("ONSHAPE_ACCESS_KEY", "")
	t.Setenv("ONSHAPE_SECRET_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "yaml-ak", cfg.Onshape.AccessKey)
	assert.Equal(t, 7070, cfg.APIPort)
	assert.Equal(t, 8, cfg.Sync.Workers)
}

func TestEnvWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_port: 7070\n"), 0o600))

	t.Setenv("CADMIRROR_CONFIG", path)
	t.Setenv("ONSHAPE_ACCESS_KEY", "ak")
	t.Setenv("ONSHAPE_SECRET_KEY", "sk")
	t.Setenv("API_PORT", "6060")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.APIPort)
}

func TestValidateBounds(t *testing.T) {
	cfg := LoadWithDefaults()
	cfg.Onshape.AccessKey = "ak"
	cfg.Onshape.SecretKey = "sk"
	require.NoError(t, cfg.Validate())

	cfg.Sync.PageSize = 0
	assert.Error(t, cfg.Validate())
}

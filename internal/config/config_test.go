package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openlift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /tmp/test.db
relays:
  - wss://relay.example
secret_key: `+"\"0101\""+`
publish_timeout_seconds: 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, []string{"wss://relay.example"}, cfg.Relays)
	assert.Equal(t, "0101", cfg.SecretKey)
	assert.Equal(t, 3*time.Second, cfg.PublishTimeout())
}

func TestLoad_MalformedIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openlift.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relays: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NonPositiveTimeoutFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openlift.yaml")
	require.NoError(t, os.WriteFile(path, []byte("publish_timeout_seconds: -1\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().PublishTimeout(), cfg.PublishTimeout())
}

func TestPrimaryRelay(t *testing.T) {
	assert.Equal(t, "wss://relay.damus.io", Default().PrimaryRelay())
	assert.Empty(t, Config{}.PrimaryRelay())
}

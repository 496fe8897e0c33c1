package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simtap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "decode:\n  values: true\n"))
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Mapping.Path)
	assert.NotEmpty(t, cfg.Signal.Path)
	assert.Equal(t, "skip", cfg.Decode.Policy)
	assert.Equal(t, ":9109", cfg.Metrics.Addr)
	assert.True(t, cfg.Decode.Values)
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mapping:
  path: /dev/shm/custom_region
signal:
  path: /dev/shm/custom_signal
decode:
  policy: abort
  reverify: true
broadcast:
  enabled: true
  addr: ":9000"
`))
	require.NoError(t, err)

	assert.Equal(t, "/dev/shm/custom_region", cfg.Mapping.Path)
	assert.Equal(t, "abort", cfg.Decode.Policy)
	assert.True(t, cfg.Decode.Reverify)
	assert.True(t, cfg.Broadcast.Enabled)
	assert.Equal(t, ":9000", cfg.Broadcast.Addr)
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	_, err := Load(writeConfig(t, "decode:\n  policy: retry\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode.policy")
}

func TestLoadRejectsRecordWithoutPath(t *testing.T) {
	_, err := Load(writeConfig(t, "record:\n  enabled: true\ndecode:\n  values: true\n"))
	assert.Error(t, err)
}

func TestLoadRejectsRecordWithoutValues(t *testing.T) {
	_, err := Load(writeConfig(t, "record:\n  enabled: true\n  path: /tmp/x.stap\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "skip", cfg.Decode.Policy)
	assert.NotEmpty(t, cfg.Mapping.Path)
}

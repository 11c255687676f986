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
	path := filepath.Join(t.TempDir(), "smokestack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "state.json", cfg.State.SnapshotPath)
	assert.Equal(t, 1024, cfg.Events.QueueSize)
	assert.Equal(t, 10*time.Second, cfg.Events.WriteTimeout)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  admin_group: sre-admins
state:
  snapshot_path: /var/lib/smokestack/state.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sre-admins", cfg.Server.AdminGroup)
	assert.Equal(t, "/var/lib/smokestack/state.json", cfg.State.SnapshotPath)
	// Unset sections keep defaults.
	assert.Equal(t, "history.jsonl", cfg.State.HistoryPath)
	assert.Equal(t, 1024, cfg.Events.QueueSize)
	assert.Equal(t, 5, cfg.Sinks.MaxRetries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
events:
  queue_size: -1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_size")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SMOKESTACK_TEST_GROUP", "platform-admins")

	out := ExpandEnv([]byte("admin_group: {{.SMOKESTACK_TEST_GROUP}}"))
	assert.Equal(t, "admin_group: platform-admins", string(out))

	// Content without template markers passes through untouched,
	// including literal dollar signs.
	raw := []byte("pattern: ^secret.*$")
	assert.Equal(t, raw, ExpandEnv(raw))
}

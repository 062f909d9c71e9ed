package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, BackendDynamoDB, cfg.StoreBackend)
	assert.Equal(t, "coursehub", cfg.DynamoDBTable)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, 2, cfg.Tunables.RetryMaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Tunables.RetryBaseDelay)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BASE_DELAY_MS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 5, cfg.Tunables.RetryMaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Tunables.RetryBaseDelay)
}

func TestLoadOverlay(t *testing.T) {
	overlay := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(overlay, []byte(
		"serverAddress: \":7070\"\ntunables:\n  retryMaxAttempts: 4\n"), 0o644))
	t.Setenv("CONFIG_FILE", overlay)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ServerAddress, "overlay overrides the environment")
	assert.Equal(t, 4, cfg.Tunables.RetryMaxAttempts)
}

func TestValidate(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		cfg := &Config{StoreBackend: "redis"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("dynamodb requires a table", func(t *testing.T) {
		cfg := &Config{StoreBackend: BackendDynamoDB}
		assert.Error(t, cfg.Validate())
	})

	t.Run("memory backend needs nothing", func(t *testing.T) {
		cfg := &Config{StoreBackend: BackendMemory}
		assert.NoError(t, cfg.Validate())
	})
}

func TestWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tunables:\n  retryMaxAttempts: 2\n"), 0o644))

	initial := Tunables{RetryMaxAttempts: 2, RetryBaseDelay: 50 * time.Millisecond}
	w, err := NewWatcher(path, initial, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, w)
	defer w.Stop()

	changed := make(chan Tunables, 1)
	w.OnChange(func(tn Tunables) { changed <- tn })

	require.NoError(t, os.WriteFile(path, []byte("tunables:\n  retryMaxAttempts: 7\n"), 0o644))

	select {
	case tn := <-changed:
		assert.Equal(t, 7, tn.RetryMaxAttempts)
		assert.Equal(t, 7, w.Tunables().RetryMaxAttempts)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not observe the overlay change")
	}
}

func TestWatcherDisabled(t *testing.T) {
	w, err := NewWatcher("", Tunables{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, w)
	w.Stop()
}

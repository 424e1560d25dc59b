package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/agentgate.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/agentgate.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Store.Backend)
		assert.Equal(t, 20, cfg.Policy.RateConfirmThreshold)
		assert.NotEmpty(t, cfg.Store.Path)
		assert.NotEmpty(t, cfg.Audit.File)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "agentgate.json")

		testConfig := `{
			"data_dir": "` + tmpDir + `",
			"store": {"backend": "memory"},
			"policy": {
				"rate_window": "2m",
				"rate_confirm_threshold": 5,
				"rate_deny_threshold": 10,
				"actors": {
					"agent-junior": {"deny": ["business-action"]}
				}
			},
			"confirmation": {"ttl": "15m", "sweep_schedule": "*/5 * * * *"}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)

		assert.Equal(t, "memory", cfg.Store.Backend)
		assert.Equal(t, 2*time.Minute, cfg.Policy.RateWindow)
		assert.Equal(t, 5, cfg.Policy.RateConfirmThreshold)
		assert.Equal(t, 10, cfg.Policy.RateDenyThreshold)
		assert.Equal(t, 15*time.Minute, cfg.Confirmation.TTL)
		assert.Equal(t, "*/5 * * * *", cfg.Confirmation.SweepSchedule)
		require.Contains(t, cfg.Policy.Actors, "agent-junior")
		assert.Equal(t, []string{"business-action"}, cfg.Policy.Actors["agent-junior"].Deny)

		// Unspecified sections keep defaults.
		assert.Equal(t, 30*time.Second, cfg.Dispatch.DefaultTimeout)
	})

	t.Run("invalid JSON fails", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "agentgate.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "agentgate.json")

	cfg := DefaultConfig()
	cfg.Store.Backend = "memory"
	cfg.Policy.RateConfirmThreshold = 7
	cfg.DataDir = tmpDir

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", loaded.Store.Backend)
	assert.Equal(t, 7, loaded.Policy.RateConfirmThreshold)
}

func TestLoaderGetConfigPath(t *testing.T) {
	loader := NewLoader("/explicit/path.json")
	assert.Equal(t, "/explicit/path.json", loader.GetConfigPath())

	defaultLoader := NewLoader("")
	assert.Contains(t, defaultLoader.GetConfigPath(), ".agentgate")
}

func TestWatcher_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "agentgate.json")
	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(DefaultConfig()))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(loader, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	updated := DefaultConfig()
	updated.Policy.RateConfirmThreshold = 3
	require.NoError(t, loader.Save(updated))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 3, cfg.Policy.RateConfirmThreshold)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload was not observed")
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/visitorlabs/profiler/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 86400, cfg.Cache.TTLSeconds)
	require.Equal(t, 24*time.Hour, cfg.ArtifactTTL())
	require.Equal(t, "headless", cfg.Fetcher.Mode)
	require.Equal(t, "openai", cfg.Classifier.Provider)
	require.Equal(t, 1500, cfg.Classifier.MaxContentChars)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9090
cache:
  redis_addr: localhost:6379
  ttl_seconds: 3600
fetcher:
  mode: plain
classifier:
  provider: gemini
  model: gemini-2.0-flash
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	require.Equal(t, time.Hour, cfg.ArtifactTTL())
	require.Equal(t, "plain", cfg.Fetcher.Mode)
	require.Equal(t, "gemini", cfg.Classifier.Provider)
	require.Equal(t, "gemini-2.0-flash", cfg.Classifier.Model)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Fetcher.Mode = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Classifier.Provider = "oracle"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Classifier.Model = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Auth.Enabled = true
	require.Error(t, cfg.Validate())
	cfg.Auth.APIKey = "secret"
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.PubSub.ProjectID = "proj"
	require.Error(t, cfg.Validate())
	cfg.PubSub.TopicName = "topic"
	require.NoError(t, cfg.Validate())
}

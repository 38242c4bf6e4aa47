package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.GetDefaultHour())
	assert.Equal(t, 30*time.Second, cfg.GetAPITimeout())
	assert.Equal(t, 3, cfg.GetMaxRetries())
	assert.Equal(t, "gridview", cfg.GetTopicPrefix())
	assert.Equal(t, ":8080", cfg.GetServerAddr())
	assert.Equal(t, 4, cfg.GetFetchConcurrency())
	w, h := cfg.GetCaptureSize()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 800, h)
	assert.False(t, cfg.View.AllowReturn)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
api:
  url: http://localhost:5000/api
  timeout: 5s
view:
  default_hour: 18
  allow_return: true
mqtt:
  enabled: true
  broker: localhost:1883
  topic_prefix: grid
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", cfg.API.URL)
	assert.Equal(t, 5*time.Second, cfg.GetAPITimeout())
	assert.Equal(t, 18, cfg.GetDefaultHour())
	assert.True(t, cfg.View.AllowReturn)
	assert.Equal(t, "grid", cfg.GetTopicPrefix())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "api:\n  url: http://file.example/api\n")
	t.Setenv("GRIDVIEW_API_URL", "http://env.example/api")
	t.Setenv("GRIDVIEW_VIEW_ALLOW_RETURN", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example/api", cfg.API.URL)
	assert.True(t, cfg.View.AllowReturn)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"hour":      "view:\n  default_hour: 30\n",
		"url":       "api:\n  url: not a url\n",
		"broker":    "mqtt:\n  enabled: true\n",
		"log level": "log_level: loud\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{API: APIConfig{URL: "http://localhost:5000/api"}, View: ViewConfig{DefaultHour: 7}}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.GetDefaultHour())
	assert.Equal(t, cfg.API.URL, loaded.API.URL)
}

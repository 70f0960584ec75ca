package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/qbz/config"
	"github.com/xeptore/qbz/qobuz/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	conf, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", conf.Log.Level)
	assert.Equal(t, "pretty", conf.Log.Format)
	assert.Equal(t, "https://play.qobuz.com", conf.Qobuz.WebBaseURL)
	assert.Equal(t, "https://www.qobuz.com/api.json/0.2", conf.Qobuz.APIBaseURL)
	assert.Equal(t, "hi-res", conf.Qobuz.Quality)
	assert.Equal(t, 500, conf.Qobuz.Cache.MaxSizeMB)
	assert.Equal(t, 30, conf.Qobuz.Timeouts.Request)
	assert.Equal(t, 120, conf.Qobuz.Timeouts.Download)
	assert.Equal(t, 10, conf.Qobuz.Timeouts.Connect)
	assert.InDelta(t, 5, conf.Qobuz.Limits.RequestsPerSec, 0)
	assert.Equal(t, 10, conf.Qobuz.Limits.Burst)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
log:
  level: debug
  format: json
qobuz:
  quality: cd
  cache:
    max_size_mb: 64
  timeouts:
    download: 60
`)

	conf, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", conf.Log.Level)
	assert.Equal(t, "json", conf.Log.Format)
	assert.Equal(t, "cd", conf.Qobuz.Quality)
	assert.Equal(t, 64, conf.Qobuz.Cache.MaxSizeMB)
	assert.Equal(t, 60, conf.Qobuz.Timeouts.Download)
	// Unset keys still default.
	assert.Equal(t, 30, conf.Qobuz.Timeouts.Request)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "bad log level", content: "log:\n  level: verbose\n"},
		{name: "bad log format", content: "log:\n  format: xml\n"},
		{name: "bad quality", content: "qobuz:\n  quality: ultra\n"},
		{name: "negative cache size", content: "qobuz:\n  cache:\n    max_size_mb: -1\n"},
		{name: "negative timeout", content: "qobuz:\n  timeouts:\n    request: -5\n"},
		{name: "negative rate", content: "qobuz:\n  limits:\n    requests_per_sec: -1\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestPreferredQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		quality string
		want    types.Quality
	}{
		{quality: "mp3", want: types.QualityMP3320},
		{quality: "cd", want: types.QualityFLAC},
		{quality: "hi-res-96", want: types.QualityFLACHiRes96},
		{quality: "hi-res", want: types.QualityFLACHiRes},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.quality, func(t *testing.T) {
			t.Parallel()

			conf := config.Qobuz{Quality: tt.quality} //nolint:exhaustruct
			assert.Equal(t, tt.want, conf.PreferredQuality())
		})
	}
}

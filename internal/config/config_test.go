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
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Fetcher.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Fetcher.RetryDelay)
	assert.Equal(t, 10*time.Second, cfg.Fetcher.Timeout)
	assert.Len(t, cfg.Fetcher.UserAgents, 4)
	assert.Equal(t, 200, cfg.Images.MinWidth)
	assert.Equal(t, 0.95, cfg.Images.DuplicateThreshold)
	assert.Equal(t, 5*time.Second, cfg.Images.FetchTimeout)
	assert.Equal(t, 50, cfg.Vision.LowThreshold)
	assert.Equal(t, 150, cfg.Vision.HighThreshold)
	assert.False(t, cfg.Vision.Enabled)
	assert.False(t, cfg.Extract.Amazon)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "stream:product_extraction", cfg.Redis.Stream)
	assert.Equal(t, int64(100000), cfg.Redis.MaxLen)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EXTRACTOR_FETCHER_TIMEOUT", "3s")
	t.Setenv("EXTRACTOR_FETCHER_USER_AGENTS", "ua-one,ua-two")
	t.Setenv("EXTRACTOR_IMAGES_MIN_WIDTH", "320")
	t.Setenv("EXTRACTOR_DATABASE_MAX_CONNS", "5")
	t.Setenv("EXTRACTOR_BROWSER_ENABLED", "true")
	t.Setenv("EXTRACTOR_VISION_ENABLED", "true")
	t.Setenv("EXTRACTOR_EXTRACT_AMAZON", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, []string{"ua-one", "ua-two"}, cfg.Fetcher.UserAgents)
	assert.Equal(t, 320, cfg.Images.MinWidth)
	assert.Equal(t, int32(5), cfg.Database.MaxConns)
	assert.True(t, cfg.Vision.Enabled)
	assert.True(t, cfg.Extract.Amazon)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extractor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
images:
  min_width: 400
  duplicate_threshold: 0.9
logging:
  format: text
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 400, cfg.Images.MinWidth)
	assert.Equal(t, 0.9, cfg.Images.DuplicateThreshold)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 200, cfg.Images.MinHeight)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad log format", map[string]string{"EXTRACTOR_LOGGING_FORMAT": "xml"}},
		{"zero attempts", map[string]string{"EXTRACTOR_FETCHER_MAX_ATTEMPTS": "0"}},
		{"threshold above one", map[string]string{"EXTRACTOR_IMAGES_DUPLICATE_THRESHOLD": "1.5"}},
		{"vision without browser", map[string]string{"EXTRACTOR_VISION_ENABLED": "true"}},
		{"inverted canny thresholds", map[string]string{"EXTRACTOR_VISION_LOW_THRESHOLD": "200"}},
		{"inverted rate limits", map[string]string{"EXTRACTOR_BATCH_RATE_LIMIT_MIN": "10s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConverters(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	th := cfg.Images.Thresholds()
	assert.Equal(t, 200, th.MinWidth)
	assert.Equal(t, 10.0, th.MinStdDev)

	fo := cfg.Fetcher.Options()
	assert.Equal(t, 3, fo.MaxAttempts)

	bo := cfg.Browser.Options()
	assert.True(t, bo.Headless)
	assert.Equal(t, 1920, bo.ViewportWidth)

	vo := cfg.Vision.Options()
	assert.Equal(t, 4, vo.MaxRegions)

	db := cfg.Database.DB()
	assert.Equal(t, "ad_extractor", db.Database)
	assert.Equal(t, 5432, db.Port)
}

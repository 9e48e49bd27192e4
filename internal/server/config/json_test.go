package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_Overlay(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"http_addr":                    "0.0.0.0:9000",
		"database_dsn":                 "postgres://blog",
		"secret_key":                   "my_secret_key",
		"temp_token_validity_duration": "2m",
		"orphan_threshold":             "36h",
		"sweep_concurrency":            3,
		"s3_bucket":                    "bucket",
		"max_upload_size":              1024,
		"cron_secret":                  "cron",
	})

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, []string{"-config", path})

	assert.Equal(t, "0.0.0.0:9000", cfg.HTTPAddr)
	assert.Equal(t, "postgres://blog", cfg.DatabaseDSN)
	assert.Equal(t, "my_secret_key", cfg.SecretKey)
	assert.Equal(t, 2*time.Minute, cfg.TempTokenValidityDuration)
	assert.Equal(t, 36*time.Hour, cfg.OrphanThreshold)
	assert.Equal(t, 3, cfg.SweepConcurrency)
	assert.Equal(t, "bucket", cfg.S3Bucket)
	assert.Equal(t, int64(1024), cfg.MaxUploadSize)
	assert.Equal(t, "cron", cfg.CronSecret)

	// untouched keys keep defaults
	assert.Equal(t, 7*24*time.Hour, cfg.MediaRetention)
	assert.Equal(t, "slog", cfg.LogFormat)
}

func Test_parseJson_ShortFlagAndNumericDuration(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"media_retention": float64(time.Hour),
	})

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, []string{"-c", path})

	assert.Equal(t, time.Hour, cfg.MediaRetention)
}

func Test_parseJson_NoConfigFlag(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	want := *cfg

	parseJson(cfg, []string{"-a", ":1"})

	assert.Equal(t, want, *cfg)
}

func Test_parseJson_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg := &Config{}
		assert.Panics(t, func() {
			parseJson(cfg, []string{"-c", filepath.Join(t.TempDir(), "absent.json")})
		})
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		cfg := &Config{}
		assert.Panics(t, func() { parseJson(cfg, []string{"-c", path}) })
	})
}

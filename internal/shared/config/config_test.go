package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.ObjectStoreType)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 30, cfg.Risk.MinTrendBuckets)
	assert.Equal(t, 30, cfg.Risk.MinRows)
	assert.InDelta(t, 0.3, cfg.Risk.MaxMissingRatio, 1e-9)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "insight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
session_ttl: 10m
session_max: 8
rank_max_limit: 25
risk:
  min_trend_buckets: 12
  max_missing_ratio: 0.5
cors_allow_origins:
  - https://a.example
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("RISK_MIN_ROWS", "5")
	t.Setenv("OBJECT_STORE", "MINIO")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 8, cfg.SessionMax)
	assert.Equal(t, 25, cfg.RankMaxLimit)
	assert.Equal(t, 12, cfg.Risk.MinTrendBuckets)
	assert.Equal(t, 5, cfg.Risk.MinRows)
	assert.InDelta(t, 0.5, cfg.Risk.MaxMissingRatio, 1e-9)
	assert.Equal(t, []string{"https://a.example"}, cfg.CORSAllowOrigin)
	assert.Equal(t, "minio", cfg.ObjectStoreType)
	assert.True(t, cfg.MinIOUseSSL)
}

func TestLoadInvalidEnvKeepsDefault(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("SESSION_MAX", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 64, cfg.SessionMax)
}

func TestLoadRejectsIncompleteStore(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("OBJECT_STORE", "s3")
	t.Setenv("S3_BUCKET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFIG_FILE", "does-not-exist.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvFileIsLoaded(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PREVIEW_ROWS", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# local\nPREVIEW_ROWS=\"42\"\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.PreviewRows)
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		line     string
		key, val string
		ok       bool
	}{
		{"PORT=8080", "PORT", "8080", true},
		{"export ENV='prod'", "ENV", "prod", true},
		{"  # comment", "", "", false},
		{"NOEQUALS", "", "", false},
		{"EMPTY=", "EMPTY", "", true},
	}
	for _, tc := range cases {
		key, val, ok := parseEnvLine(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.key, key, tc.line)
		assert.Equal(t, tc.val, val, tc.line)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "docfix.db", cfg.Store.SQLitePath)
	assert.EqualValues(t, 10, cfg.Store.MaxConns)
	assert.InDelta(t, 0.7, cfg.Engine.AcceptThreshold, 0.001)
	assert.Equal(t, 3, cfg.Engine.ConfirmationThreshold)
	assert.Equal(t, 5, cfg.Engine.ScorerTimeoutSecs)
	assert.Equal(t, 2, cfg.Analyzer.MinOccurrences)
	assert.InDelta(t, 0.7, cfg.Analyzer.AutoApplyConfidence, 0.001)
	assert.Equal(t, 168, cfg.Analyzer.WindowHours)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentDocuments)
	assert.Equal(t, 60, cfg.Batch.ExtractTimeoutSecs)
	assert.InDelta(t, 10.0, cfg.Scorer.RateLimit, 0.001)
	assert.Equal(t, 3, cfg.Scorer.MaxAttempts)
	assert.Equal(t, "tesseract", cfg.OCR.Provider)
	assert.Equal(t, "rus+eng", cfg.OCR.Languages)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/docfix
engine:
  accept_threshold: 0.85
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent_documents: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/docfix", cfg.Store.DatabaseURL)
	assert.InDelta(t, 0.85, cfg.Engine.AcceptThreshold, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrentDocuments)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Engine.ConfirmationThreshold)
	assert.Equal(t, 2, cfg.Analyzer.MinOccurrences)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DOCFIX_STORE_DRIVER", "postgres")
	t.Setenv("DOCFIX_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("DOCFIX_SERVER_PORT", "3000")
	t.Setenv("DOCFIX_SCORER_BASE_URL", "http://scorer.internal:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "http://scorer.internal:9000", cfg.Scorer.BaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouty", Format: "json"})
	require.Error(t, err)
}

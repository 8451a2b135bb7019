package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
	assert.NotEmpty(t, cfg.Log.RedactFields)

	assert.Equal(t, "sqlite", cfg.Database.Backend)
	assert.Equal(t, 10, cfg.Database.SQLite.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.Database.SQLite.BusyTimeout)
	assert.True(t, cfg.Database.Migrations.VerifyChecksums)

	assert.Equal(t, 100000, cfg.QueryHistory.ResultMaxRows)
	assert.Equal(t, 30, cfg.QueryHistory.RetentionTimeInDays)
	assert.Equal(t, "@every 10m", cfg.QueryHistory.SweepSchedule)

	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data"), ExpandPath("~/data"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, "/var/lib/qhist", ExpandPath("/var/lib/qhist"))
	assert.Equal(t, "~user/data", ExpandPath("~user/data"))
}

func TestConfigSearchPaths(t *testing.T) {
	paths := configSearchPaths(AppName)
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join("/etc", AppName), paths[0])
}

func TestLoad_WithConfigFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
log:
  level: debug
  format: json
database:
  backend: postgres
  sqlite:
    busy_timeout: 2s
query_history:
  result_max_rows: 50
  retention_time_in_days: 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "postgres", cfg.Database.Backend)
	assert.Equal(t, 2*time.Second, cfg.Database.SQLite.BusyTimeout)
	assert.Equal(t, 50, cfg.QueryHistory.ResultMaxRows)
	assert.Equal(t, 7, cfg.QueryHistory.RetentionTimeInDays)

	// untouched keys keep their defaults
	assert.Equal(t, "@every 10m", cfg.QueryHistory.SweepSchedule)
	assert.Equal(t, 10, cfg.Database.SQLite.MaxOpenConns)
}

func TestLoad_WithEnvVars(t *testing.T) {
	path := writeConfig(t, "config.yaml", "log:\n  level: info\n")
	t.Setenv("QHIST_LOG_LEVEL", "error")
	t.Setenv("QHIST_QUERY_HISTORY_RESULT_MAX_ROWS", "25")
	t.Setenv("QHIST_QUERY_HISTORY_RETENTION_TIME_IN_DAYS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 25, cfg.QueryHistory.ResultMaxRows)
	assert.Equal(t, 3, cfg.QueryHistory.RetentionTimeInDays)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "invalid: yaml: content: [")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NonExistentConfigFile(t *testing.T) {
	_, err := Load("/non/existent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_WithSecrets(t *testing.T) {
	t.Setenv("QHIST_TEST_PG_DSN", "postgres://qhist:pw@localhost/qhist")
	secretFile := writeConfig(t, "dsn", "  postgres://from-file/qhist \n")

	path := writeConfig(t, "config.yaml", `
database:
  postgres:
    dsn: "env://QHIST_TEST_PG_DSN"
log:
  file_path: "file://`+secretFile+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://qhist:pw@localhost/qhist", cfg.Database.Postgres.DSN)
	assert.Equal(t, "postgres://from-file/qhist", cfg.Log.FilePath)
}

func TestLoad_SecretResolutionError(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  postgres:
    dsn: "env://NON_EXISTENT_ENV_VAR_FOR_QHIST_TEST"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Database.Postgres.DSN")
}

func TestLoad_JSONAndTOML(t *testing.T) {
	jsonPath := writeConfig(t, "config.json", `{"query_history": {"result_max_rows": 12}}`)
	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.QueryHistory.ResultMaxRows)

	tomlPath := writeConfig(t, "config.toml", "[query_history]\nretention_time_in_days = 9\n")
	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.QueryHistory.RetentionTimeInDays)
}

func TestResolveSecretValue(t *testing.T) {
	t.Setenv("QHIST_SECRET_TEST", "s3cret")

	got, err := resolveSecretValue("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	got, err = resolveSecretValue("env://QHIST_SECRET_TEST")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	_, err = resolveSecretValue("env://QHIST_SECRET_TEST_MISSING")
	assert.Error(t, err)

	_, err = resolveSecretValue("file:///non/existent/secret")
	assert.Error(t, err)
}

func TestResolveSecrets_Slices(t *testing.T) {
	t.Setenv("QHIST_REDACT_TEST", "apikey")

	cfg := DefaultConfig()
	cfg.Log.RedactFields = []string{"password", "env://QHIST_REDACT_TEST"}

	require.NoError(t, resolveSecrets(cfg))
	assert.Equal(t, []string{"password", "apikey"}, cfg.Log.RedactFields)
}

func TestResolveSecrets_NilPointer(t *testing.T) {
	var cfg *Config
	assert.NoError(t, resolveSecrets(cfg))
}

func TestGenerateConfig_AllFormats(t *testing.T) {
	for _, format := range SupportedFormats {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()

			path, err := GenerateConfig(dir, format)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "config."+format), path)

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, DefaultConfig().QueryHistory, cfg.QueryHistory)
			assert.Equal(t, DefaultConfig().Database.SQLite.BusyTimeout, cfg.Database.SQLite.BusyTimeout)
		})
	}
}

func TestGenerateConfig_InvalidFormat(t *testing.T) {
	_, err := GenerateConfig(t.TempDir(), "ini")
	assert.Error(t, err)
}

func TestGenerateConfig_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	_, err := GenerateConfig(dir, "yaml")
	require.NoError(t, err)

	path, err := GenerateConfig(dir, "yaml")
	assert.Error(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), path)
}

func TestGenerateConfigIfNotExists(t *testing.T) {
	dir := t.TempDir()

	path, created, err := GenerateConfigIfNotExists(dir, "yaml")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := GenerateConfigIfNotExists(dir, "json")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, path, again)
}

func TestProvider(t *testing.T) {
	p := NewProvider(nil)
	assert.Equal(t, 100000, p.QueryHistoryResultMaxRows())
	assert.Equal(t, 30, p.QueryHistoryRetentionDays())

	cfg := DefaultConfig()
	cfg.QueryHistory.ResultMaxRows = 5
	cfg.QueryHistory.RetentionTimeInDays = 1
	p.Update(cfg)

	assert.Equal(t, 5, p.QueryHistoryResultMaxRows())
	assert.Equal(t, 1, p.QueryHistoryRetentionDays())
	assert.Same(t, cfg, p.Current())
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "config.yaml", "query_history:\n  result_max_rows: 10\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, path, w.File())
	assert.Equal(t, 10, w.Current().QueryHistory.ResultMaxRows)

	p := NewProvider(w.Current())
	w.OnChange(p.Update)

	require.NoError(t, os.WriteFile(path, []byte("query_history:\n  result_max_rows: 20\n"), 0644))
	require.NoError(t, w.Reload())

	assert.Equal(t, 20, p.QueryHistoryResultMaxRows())
	assert.Equal(t, 20, w.Current().QueryHistory.ResultMaxRows)

	w.Stop()
	require.NoError(t, os.WriteFile(path, []byte("query_history:\n  result_max_rows: 30\n"), 0644))
	require.NoError(t, w.Reload())
	assert.Equal(t, 20, p.QueryHistoryResultMaxRows())
}

func TestNewWatcher_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := NewWatcher("")
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"FINES_INPUT_DIR", "FINES_SOURCE_URI", "FINES_OUTPUT", "FINES_UPLOAD_URI", "FINES_LOG_LEVEL",
	"FINES_BQ_PROJECT", "FINES_BQ_DATASET", "FINES_PG_DSN", "FINES_PG_TABLE",
	"FINES_PUSHGATEWAY_URL", "FINES_METRICS_JOB",
}

// clearEnv unsets every FINES_* variable for the duration of the test.
// godotenv never overrides a variable that is present, even when empty.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ".", cfg.InputDir)
	assert.Equal(t, "expenses.csv", cfg.OutputPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.RemoteSource())
	assert.False(t, cfg.BigQueryEnabled())
	assert.False(t, cfg.PostgresEnabled())
	assert.False(t, cfg.MetricsEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Layering(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "fines.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
input_dir: /data/statements
output: /data/out.csv
log_level: debug
bigquery:
  project: yaml-project
postgres:
  dsn: postgres://yaml
`), 0o644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("FINES_BQ_PROJECT=dotenv-project\nFINES_PG_TABLE=dotenv_table\n"), 0o644))

	t.Setenv("FINES_OUTPUT", "/env/out.csv")
	t.Setenv("FINES_PG_TABLE", "env_table")

	cfg, err := load(yamlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, "/data/statements", cfg.InputDir)
	assert.Equal(t, "/env/out.csv", cfg.OutputPath, "env overrides YAML")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "dotenv-project", cfg.BigQuery.Project, ".env overrides YAML")
	assert.Equal(t, "fines", cfg.BigQuery.Dataset, "default kept")
	assert.Equal(t, "postgres://yaml", cfg.Postgres.DSN)
	assert.Equal(t, "env_table", cfg.Postgres.Table, "process env wins over .env")
}

func TestLoad_MissingYAML(t *testing.T) {
	clearEnv(t)
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_dir: [unterminated"), 0o644))

	_, err := load(path, filepath.Join(t.TempDir(), ".env"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"gcs source", func(c *Config) { c.SourceURI = "gs://statements/smt" }, false},
		{"bad source scheme", func(c *Config) { c.SourceURI = "/tmp/pdfs" }, true},
		{"empty input dir", func(c *Config) { c.InputDir = "" }, true},
		{"empty output", func(c *Config) { c.OutputPath = "" }, true},
		{"upload object", func(c *Config) { c.UploadURI = "gs://exports/expenses.csv" }, false},
		{"upload needs object", func(c *Config) { c.UploadURI = "gs://exports/" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, true},
		{"bigquery without dataset", func(c *Config) { c.BigQuery = BigQueryConfig{Project: "p"} }, true},
		{"postgres without table", func(c *Config) { c.Postgres = PostgresConfig{DSN: "postgres://x"} }, true},
		{"metrics without job", func(c *Config) { c.Metrics = MetricsConfig{PushgatewayURL: "http://pg:9091"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNeedsStorage(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.NeedsStorage())
	cfg.UploadURI = "gs://exports/expenses.csv"
	assert.True(t, cfg.NeedsStorage())
}

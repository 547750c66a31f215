// Package config loads run settings for the extractor.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file in the working directory, then FINES_* environment variables.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dvloznov/fines-ledger/internal/export"
	"github.com/dvloznov/fines-ledger/internal/gcs"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all run settings.
type Config struct {
	InputDir   string `yaml:"input_dir"`
	SourceURI  string `yaml:"source_uri"`
	OutputPath string `yaml:"output"`
	UploadURI  string `yaml:"upload_uri"`
	LogLevel   string `yaml:"log_level"`

	BigQuery BigQueryConfig `yaml:"bigquery"`
	Postgres PostgresConfig `yaml:"postgres"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// BigQueryConfig selects the dataset that receives rows and run records.
type BigQueryConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// PostgresConfig selects the table the rows are copied into.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// MetricsConfig points at the Pushgateway that receives run metrics.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		InputDir:   ".",
		OutputPath: export.DefaultFilename,
		LogLevel:   logger.DefaultLevel,
		BigQuery:   BigQueryConfig{Dataset: "fines"},
		Postgres:   PostgresConfig{Table: "infractions"},
		Metrics:    MetricsConfig{Job: "fines_extract"},
	}
}

// Load builds the configuration. path may be empty; when set, the YAML file
// must exist.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("Load: parse config %s: %w", path, err)
		}
	}

	// Variables already set in the environment take precedence over .env.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: read %s: %w", envFile, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.InputDir, "FINES_INPUT_DIR")
	setFromEnv(&c.SourceURI, "FINES_SOURCE_URI")
	setFromEnv(&c.OutputPath, "FINES_OUTPUT")
	setFromEnv(&c.UploadURI, "FINES_UPLOAD_URI")
	setFromEnv(&c.LogLevel, "FINES_LOG_LEVEL")
	setFromEnv(&c.BigQuery.Project, "FINES_BQ_PROJECT")
	setFromEnv(&c.BigQuery.Dataset, "FINES_BQ_DATASET")
	setFromEnv(&c.Postgres.DSN, "FINES_PG_DSN")
	setFromEnv(&c.Postgres.Table, "FINES_PG_TABLE")
	setFromEnv(&c.Metrics.PushgatewayURL, "FINES_PUSHGATEWAY_URL")
	setFromEnv(&c.Metrics.Job, "FINES_METRICS_JOB")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.SourceURI != "" {
		if _, _, err := gcs.ParseURI(c.SourceURI, true); err != nil {
			return fmt.Errorf("%w: source: %v", ErrInvalid, err)
		}
	} else if c.InputDir == "" {
		return fmt.Errorf("%w: input directory is empty", ErrInvalid)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalid)
	}
	if c.UploadURI != "" {
		if _, _, err := gcs.ParseURI(c.UploadURI, false); err != nil {
			return fmt.Errorf("%w: upload: %v", ErrInvalid, err)
		}
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalid, err)
	}
	if c.BigQuery.Project != "" && c.BigQuery.Dataset == "" {
		return fmt.Errorf("%w: bigquery dataset is required when a project is set", ErrInvalid)
	}
	if c.Postgres.DSN != "" && c.Postgres.Table == "" {
		return fmt.Errorf("%w: postgres table is required when a DSN is set", ErrInvalid)
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		return fmt.Errorf("%w: metrics job is required when a pushgateway is set", ErrInvalid)
	}
	return nil
}

// RemoteSource reports whether documents are read from GCS instead of InputDir.
func (c *Config) RemoteSource() bool { return c.SourceURI != "" }

func (c *Config) BigQueryEnabled() bool { return c.BigQuery.Project != "" }

func (c *Config) PostgresEnabled() bool { return c.Postgres.DSN != "" }

func (c *Config) MetricsEnabled() bool { return c.Metrics.PushgatewayURL != "" }

// NeedsStorage reports whether a GCS client is required.
func (c *Config) NeedsStorage() bool { return c.SourceURI != "" || c.UploadURI != "" }

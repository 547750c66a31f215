package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/fines-ledger/internal/config"
	"github.com/dvloznov/fines-ledger/internal/export"
	"github.com/dvloznov/fines-ledger/internal/gcs"
	bq "github.com/dvloznov/fines-ledger/internal/infra/bigquery"
	"github.com/dvloznov/fines-ledger/internal/infra/postgres"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"github.com/dvloznov/fines-ledger/internal/metrics/prompush"
	"github.com/dvloznov/fines-ledger/internal/pdftext"
	"github.com/dvloznov/fines-ledger/internal/pipeline"
	"github.com/dvloznov/fines-ledger/internal/source"
	"github.com/spf13/cobra"
)

type extractOptions struct {
	configPath  string
	inputDir    string
	sourceURI   string
	output      string
	uploadURI   string
	bqProject   string
	bqDataset   string
	pgDSN       string
	pushgateway string
	logLevel    string
}

func newExtractCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract fines from every PDF in a directory or GCS prefix",
		Long: `Reads every PDF directly inside the input directory (or gs:// prefix),
matches the speeding fine lines of each page and writes them to a
';'-delimited UTF-8 CSV. Optionally uploads the CSV and loads the rows
into BigQuery and Postgres.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file")
	f.StringVar(&opts.inputDir, "input-dir", "", "directory holding the statement PDFs")
	f.StringVar(&opts.sourceURI, "source", "", "gs://bucket/prefix holding the statement PDFs")
	f.StringVar(&opts.output, "output", "", "CSV output path (default \""+export.DefaultFilename+"\")")
	f.StringVar(&opts.uploadURI, "upload", "", "also upload the CSV to gs://bucket/object")
	f.StringVar(&opts.bqProject, "bq-project", "", "load rows into BigQuery in this project")
	f.StringVar(&opts.bqDataset, "bq-dataset", "", "BigQuery dataset (default \""+bq.DefaultDataset+"\")")
	f.StringVar(&opts.pgDSN, "pg-dsn", "", "load rows into Postgres")
	f.StringVar(&opts.pushgateway, "pushgateway", "", "push run metrics to this Pushgateway URL")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (default \""+logger.DefaultLevel+"\")")
	cmd.MarkFlagsMutuallyExclusive("input-dir", "source")

	return cmd
}

// apply copies the flags set on the command line over cfg.
func (o *extractOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("input-dir", &cfg.InputDir, o.inputDir)
	set("source", &cfg.SourceURI, o.sourceURI)
	set("output", &cfg.OutputPath, o.output)
	set("upload", &cfg.UploadURI, o.uploadURI)
	set("bq-project", &cfg.BigQuery.Project, o.bqProject)
	set("bq-dataset", &cfg.BigQuery.Dataset, o.bqDataset)
	set("pg-dsn", &cfg.Postgres.DSN, o.pgDSN)
	set("pushgateway", &cfg.Metrics.PushgatewayURL, o.pushgateway)
	set("log-level", &cfg.LogLevel, o.logLevel)

	// An explicit directory wins over a source URI from config or env.
	if cmd.Flags().Changed("input-dir") {
		cfg.SourceURI = ""
	}
}

func runExtract(cmd *cobra.Command, opts *extractOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	ctx := logger.WithContext(cmd.Context(), log)

	runner, cleanup, err := buildRunner(ctx, cfg)
	defer cleanup()
	if err != nil {
		return err
	}
	runner.Out = cmd.OutOrStdout()

	summary, err := runner.Run(ctx)
	if pipeline.IsEmpty(err) {
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("documents", summary.Documents).
		Int("failed", summary.Failed()).
		Int("records", len(summary.Records)).
		Msg("Extraction finished")
	return nil
}

// buildRunner wires the source, sinks, ledger and metrics described by cfg.
// cleanup is always safe to call.
func buildRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store *gcs.Client
	if cfg.NeedsStorage() {
		c, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, cleanup, err
		}
		store = c
		closers = append(closers, func() { _ = c.Close() })
	}

	var src pipeline.Source = source.NewLocal(cfg.InputDir)
	if cfg.RemoteSource() {
		g, err := source.NewGCS(store, cfg.SourceURI)
		if err != nil {
			return nil, cleanup, err
		}
		src = g
	}

	sinks := []pipeline.Sink{&export.FileSink{Path: cfg.OutputPath}}

	if cfg.UploadURI != "" {
		bucket, object, err := gcs.ParseURI(cfg.UploadURI, false)
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, &export.ObjectSink{Store: store, Bucket: bucket, Object: object})
	}

	runner := pipeline.NewRunner(src, pdftext.New())

	if cfg.BigQueryEnabled() {
		repo, err := bq.NewRepository(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = repo.Close() })
		sinks = append(sinks, repo.Sink())
		runner.Tracker = repo.Ledger()
	}

	if cfg.PostgresEnabled() {
		pg, closePG, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, closePG)
		sinks = append(sinks, pg)
	}

	if cfg.MetricsEnabled() {
		backend, err := prompush.NewBackend(cfg.Metrics.Job, cfg.Metrics.PushgatewayURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("metrics: %w", err)
		}
		runner.Metrics = backend
	}

	runner.Sinks = sinks
	return runner, cleanup, nil
}

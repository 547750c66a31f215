package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/fines-ledger/internal/config"
	bq "github.com/dvloznov/fines-ledger/internal/infra/bigquery"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"github.com/spf13/cobra"
)

type runLister interface {
	RecentRuns(ctx context.Context, limit int) ([]*bq.ExtractionRunRow, error)
}

func newRunsCmd() *cobra.Command {
	var configPath, project, dataset string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent extraction runs recorded in BigQuery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bq-project") {
				cfg.BigQuery.Project = project
			}
			if cmd.Flags().Changed("bq-dataset") {
				cfg.BigQuery.Dataset = dataset
			}
			if !cfg.BigQueryEnabled() {
				return fmt.Errorf("%w: a BigQuery project is required", config.ErrInvalid)
			}

			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), log)

			repo, err := bq.NewRepository(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
			if err != nil {
				return err
			}
			defer repo.Close()

			return listRuns(ctx, repo.Ledger(), limit, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file")
	f.StringVar(&project, "bq-project", "", "BigQuery project holding the run ledger")
	f.StringVar(&dataset, "bq-dataset", "", "BigQuery dataset (default \""+bq.DefaultDataset+"\")")
	f.IntVar(&limit, "limit", bq.DefaultRecentRuns, "number of runs to show")

	return cmd
}

// listRuns prints one tab-separated line per run, newest first.
func listRuns(ctx context.Context, lister runLister, limit int, out io.Writer) error {
	runs, err := lister.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\tdocuments=%s failed=%s records=%s",
			r.RunID,
			r.StartedTS.UTC().Format(time.RFC3339),
			r.Status,
			r.Source,
			nullInt(r.DocumentsTotal.Int64, r.DocumentsTotal.Valid),
			nullInt(r.DocumentsFailed.Int64, r.DocumentsFailed.Valid),
			nullInt(r.RecordsTotal.Int64, r.RecordsTotal.Valid),
		)
		if r.ErrorMessage.Valid && r.ErrorMessage.StringVal != "" {
			fmt.Fprintf(out, "\terror=%q", r.ErrorMessage.StringVal)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func nullInt(v int64, valid bool) string {
	if !valid {
		return "-"
	}
	return fmt.Sprint(v)
}

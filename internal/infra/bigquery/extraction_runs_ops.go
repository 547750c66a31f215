package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"google.golang.org/api/iterator"
)

const (
	extractionRunsTable = "extraction_runs"
	maxErrorMessageLen  = 2000

	// DefaultRecentRuns is the number of runs RecentRuns returns when no
	// positive limit is given.
	DefaultRecentRuns = 20
)

// statementRunner executes parameterized statements. Run waits for DML to
// finish; Read returns the result rows of a query.
type statementRunner interface {
	Run(ctx context.Context, sql string, params []bigquery.QueryParameter) error
	Read(ctx context.Context, sql string, params []bigquery.QueryParameter) (rowIterator, error)
}

// rowIterator is satisfied by *bigquery.RowIterator.
type rowIterator interface {
	Next(dst interface{}) error
}

type clientRunner struct {
	client *bigquery.Client
}

func (r clientRunner) Run(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := r.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func (r clientRunner) Read(ctx context.Context, sql string, params []bigquery.QueryParameter) (rowIterator, error) {
	q := r.client.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

// Ledger records the lifecycle of extraction runs in extraction_runs.
type Ledger struct {
	runner  statementRunner
	project string
	dataset string
}

// NewLedger returns a ledger writing through client.
func NewLedger(client *bigquery.Client, project, dataset string) *Ledger {
	return &Ledger{runner: clientRunner{client: client}, project: project, dataset: dataset}
}

func (l *Ledger) table() string {
	return fmt.Sprintf("`%s.%s.%s`", l.project, l.dataset, extractionRunsTable)
}

// StartRun inserts a row with status=RUNNING for runID.
func (l *Ledger) StartRun(ctx context.Context, runID, source string) error {
	sql := fmt.Sprintf(`
		INSERT %s (
			run_id,
			source,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@source,
			@started_ts,
			@status
		)
	`, l.table())

	params := []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "source", Value: source},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: RunStatusRunning},
	}

	if err := l.runner.Run(ctx, sql, params); err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	return nil
}

// MarkRunSucceeded sets status=SUCCESS, finished_ts and the run counters.
func (l *Ledger) MarkRunSucceeded(ctx context.Context, runID string, documents, failed, records int) error {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    documents_total = @documents_total,
		    documents_failed = @documents_failed,
		    records_total = @records_total,
		    error_message = ""
		WHERE run_id = @run_id
	`, l.table())

	params := []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "documents_total", Value: documents},
		{Name: "documents_failed", Value: failed},
		{Name: "records_total", Value: records},
		{Name: "run_id", Value: runID},
	}

	if err := l.runner.Run(ctx, sql, params); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// MarkRunFailed sets status=FAILED, finished_ts and error_message.
// Failures are logged; the run has already failed for its own reason.
func (l *Ledger) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageLen {
			errMsg = errMsg[:maxErrorMessageLen]
		}
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, l.table())

	params := []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := l.runner.Run(ctx, sql, params); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: updating run")
	}
}

// RecentRuns returns the latest runs, most recently started first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]*ExtractionRunRow, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}

	sql := fmt.Sprintf(`
		SELECT
			run_id,
			source,
			started_ts,
			finished_ts,
			status,
			error_message,
			documents_total,
			documents_failed,
			records_total
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, l.table())

	it, err := l.runner.Read(ctx, sql, []bigquery.QueryParameter{{Name: "limit", Value: limit}})
	if err != nil {
		return nil, fmt.Errorf("RecentRuns: reading query: %w", err)
	}

	var runs []*ExtractionRunRow
	for {
		var row ExtractionRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("RecentRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}

package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses stored in extraction_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// ExtractionRunRow is one row of extraction_runs.
type ExtractionRunRow struct {
	RunID  string `bigquery:"run_id"` // REQUIRED
	Source string `bigquery:"source"` // REQUIRED, local directory or gs:// prefix

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string              `bigquery:"status"`        // REQUIRED
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	DocumentsTotal  bigquery.NullInt64 `bigquery:"documents_total"`  // NULLABLE
	DocumentsFailed bigquery.NullInt64 `bigquery:"documents_failed"` // NULLABLE
	RecordsTotal    bigquery.NullInt64 `bigquery:"records_total"`    // NULLABLE
}

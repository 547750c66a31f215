package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fines-ledger/internal/domain"
	"github.com/dvloznov/fines-ledger/internal/filedate"
)

type InfractionRow struct {
	RunID      string `bigquery:"run_id"`      // REQUIRED
	SourceFile string `bigquery:"source_file"` // REQUIRED
	RowID      string `bigquery:"row_id"`      // NULLABLE

	FineDate bigquery.NullDate `bigquery:"fine_date"` // NULLABLE, null when the file name has no date

	Block            string `bigquery:"block"`             // REQUIRED
	Lot              string `bigquery:"lot"`               // REQUIRED
	Name             string `bigquery:"name"`              // REQUIRED
	InfractionNumber string `bigquery:"infraction_number"` // REQUIRED
	Amount           string `bigquery:"amount"`            // REQUIRED, as printed

	ExtractedTS time.Time `bigquery:"extracted_ts"` // REQUIRED
}

// NewInfractionRow maps an extracted record to its table row.
func NewInfractionRow(runID string, rec domain.Infraction, extracted time.Time) *InfractionRow {
	row := &InfractionRow{
		RunID:            runID,
		SourceFile:       rec.Source,
		RowID:            rec.RowID,
		Block:            rec.Block,
		Lot:              rec.Lot,
		Name:             rec.Name,
		InfractionNumber: rec.InfractionNumber,
		Amount:           rec.Amount,
		ExtractedTS:      extracted,
	}
	if d, ok := filedate.Civil(rec.Date); ok {
		row.FineDate = bigquery.NullDate{Date: d, Valid: true}
	}
	return row
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fines-ledger/internal/domain"
)

const (
	infractionsTable = "infractions"
	insertBatchSize  = 500
)

// Inserter is the streaming insert surface of *bigquery.Inserter.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Sink streams extracted records into the infractions table.
type Sink struct {
	inserter Inserter
	name     string
	now      func() time.Time
}

// NewSink returns a sink writing to project.dataset.infractions.
func NewSink(client *bigquery.Client, project, dataset string) *Sink {
	table := client.DatasetInProject(project, dataset).Table(infractionsTable)
	return newSink(table.Inserter(), fmt.Sprintf("bigquery:%s.%s.%s", project, dataset, infractionsTable))
}

func newSink(ins Inserter, name string) *Sink {
	return &Sink{inserter: ins, name: name, now: time.Now}
}

func (s *Sink) Name() string { return s.name }

// Write inserts records in batches, tagging every row with runID.
func (s *Sink) Write(ctx context.Context, runID string, records []domain.Infraction) error {
	if len(records) == 0 {
		return nil
	}

	extracted := s.now()
	rows := make([]*InfractionRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NewInfractionRow(runID, rec, extracted))
	}

	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := s.inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("Sink.Write: inserting rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

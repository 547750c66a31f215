package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DefaultDataset holds the extraction tables unless configured otherwise.
const DefaultDataset = "fines"

// Repository owns a shared BigQuery client and hands out the ledger and sink
// built on it.
type Repository struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewRepository creates a BigQuery client for project.
func NewRepository(ctx context.Context, project, dataset string) (*Repository, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ledger returns the extraction run ledger.
func (r *Repository) Ledger() *Ledger {
	return NewLedger(r.client, r.project, r.dataset)
}

// Sink returns the infractions sink.
func (r *Repository) Sink() *Sink {
	return NewSink(r.client, r.project, r.dataset)
}

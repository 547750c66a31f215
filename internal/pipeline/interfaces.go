package pipeline

import (
	"context"
	"io"

	"github.com/dvloznov/fines-ledger/internal/domain"
	"github.com/dvloznov/fines-ledger/internal/source"
)

// Source enumerates documents and opens them for reading.
// Implemented by source.Local and source.GCS.
type Source interface {
	String() string
	List(ctx context.Context) ([]source.Document, error)
	Open(ctx context.Context, doc source.Document) (source.Blob, error)
}

// TextExtractor returns the text of each page of a PDF in page order.
// Implemented by pdftext.Extractor.
type TextExtractor interface {
	Pages(r io.ReaderAt, size int64) ([]string, error)
}

// Sink receives the records of a run once all documents are processed.
type Sink interface {
	Name() string
	Write(ctx context.Context, runID string, records []domain.Infraction) error
}

// LocalFileSink is implemented by sinks that write a file on this machine.
// Their console line names the file the way the summary always has.
type LocalFileSink interface {
	Sink
	LocalPath() string
}

// RunTracker records the lifecycle of a run, e.g. in the BigQuery ledger.
type RunTracker interface {
	StartRun(ctx context.Context, runID, source string) error
	MarkRunSucceeded(ctx context.Context, runID string, documents, failed, records int) error
	MarkRunFailed(ctx context.Context, runID string, runErr error)
}

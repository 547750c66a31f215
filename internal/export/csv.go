// Package export serializes infraction records as a delimited table.
//
// The format is fixed: ';' as field separator, UTF-8 with a byte order mark
// (so spreadsheet tools pick the right encoding), a header row, and the
// columns of domain.Columns in that order. Amounts are written as captured.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dvloznov/fines-ledger/internal/domain"
	"github.com/dvloznov/fines-ledger/internal/gcs"
	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// Delimiter separates fields.
	Delimiter = ';'
	// DefaultFilename is the conventional output name.
	DefaultFilename = "expenses.csv"
	// ContentType is used when the table is uploaded.
	ContentType = "text/csv; charset=utf-8"
)

// Write writes the header and one row per record to w.
func Write(w io.Writer, records []domain.Infraction) error {
	bw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())

	cw := csv.NewWriter(bw)
	cw.Comma = Delimiter
	sw := gocsv.NewSafeCSVWriter(cw)

	if err := gocsv.MarshalCSV(records, sw); err != nil {
		return fmt.Errorf("export: marshal records: %w", err)
	}
	sw.Flush()
	if err := sw.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}

// Read parses a table produced by Write. A leading BOM is optional.
// Fields not present in the table (RowID, Source) are left empty.
func Read(r io.Reader) ([]domain.Infraction, error) {
	dr := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(dr)
	cr.Comma = Delimiter

	var out []domain.Infraction
	if err := gocsv.UnmarshalCSV(cr, &out); err != nil {
		return nil, fmt.Errorf("export: unmarshal records: %w", err)
	}
	return out, nil
}

// WriteFile writes the table to path. The file is written under a temporary
// name first and renamed into place, so a failed run never leaves a partial table.
func WriteFile(path string, records []domain.Infraction) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("WriteFile: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("WriteFile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("WriteFile: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("WriteFile: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("WriteFile: rename: %w", err)
	}
	return nil
}

// ReadFile parses the table stored at path.
func ReadFile(path string) ([]domain.Infraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// FileSink writes the table to a local file.
type FileSink struct {
	Path string
}

func (s *FileSink) Name() string { return s.Path }

// LocalPath returns the file the table is written to.
func (s *FileSink) LocalPath() string { return s.Path }

func (s *FileSink) Write(ctx context.Context, runID string, records []domain.Infraction) error {
	return WriteFile(s.Path, records)
}

// ObjectWriter opens a writer for a storage object.
type ObjectWriter interface {
	NewWriter(ctx context.Context, bucketName, objectName, contentType string) io.WriteCloser
}

// ObjectSink uploads the table to an object store such as GCS.
type ObjectSink struct {
	Store  ObjectWriter
	Bucket string
	Object string
}

func (s *ObjectSink) Name() string { return gcs.URI(s.Bucket, s.Object) }

func (s *ObjectSink) Write(ctx context.Context, runID string, records []domain.Infraction) error {
	w := s.Store.NewWriter(ctx, s.Bucket, s.Object, ContentType)
	if err := Write(w, records); err != nil {
		_ = w.Close()
		return fmt.Errorf("ObjectSink.Write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ObjectSink.Write: finalize upload: %w", err)
	}
	return nil
}

package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/fines-ledger/internal/domain"
	"github.com/dvloznov/fines-ledger/internal/export"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"github.com/dvloznov/fines-ledger/internal/pipeline"
	"github.com/dvloznov/fines-ledger/internal/source"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	heuserLine = "613 Mz 2 Lote 21 Heuser Mariano Multas Infracción nro 1073: Exceso de velocidad (mas de 30 km/h) 65.171,77"
	perezLine  = "614 Mz 5 Lote 3 Pérez Ana Multas Infracción nro 1080: Exceso de velocidad (mas de 20 km/h) 12.000,00"
	gomezLine  = "7 Mz 11 Lote 9 Gómez Luis Multas Infracción nro 2: Exceso de velocidad 950,50"
	brokenPDF  = "BROKEN"
	pageBreak  = "\f"
)

// memSource serves documents from memory. Content is a list of pages
// separated by pageBreak, or brokenPDF.
type memSource struct {
	docs    []string
	content map[string]string
	listErr error
	open    int
	closed  int
}

func (s *memSource) String() string { return "memory" }

func (s *memSource) List(ctx context.Context) ([]source.Document, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var docs []source.Document
	for _, name := range s.docs {
		docs = append(docs, source.Document{Name: name, Location: "mem://" + name})
	}
	return docs, nil
}

func (s *memSource) Open(ctx context.Context, doc source.Document) (source.Blob, error) {
	data, ok := s.content[doc.Name]
	if !ok {
		return nil, errors.New("no such document")
	}
	s.open++
	return &memBlob{Reader: strings.NewReader(data), src: s}, nil
}

type memBlob struct {
	*strings.Reader
	src *memSource
}

func (b *memBlob) Close() error {
	b.src.closed++
	return nil
}

type fakeExtractor struct{}

func (fakeExtractor) Pages(r io.ReaderAt, size int64) ([]string, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	if string(data) == brokenPDF {
		return nil, errors.New("malformed document")
	}
	return strings.Split(string(data), pageBreak), nil
}

type trackerCall struct {
	op                         string
	documents, failed, records int
	err                        error
}

type fakeTracker struct {
	calls    []trackerCall
	startErr error
}

func (f *fakeTracker) StartRun(ctx context.Context, runID, src string) error {
	f.calls = append(f.calls, trackerCall{op: "start"})
	return f.startErr
}

func (f *fakeTracker) MarkRunSucceeded(ctx context.Context, runID string, documents, failed, records int) error {
	f.calls = append(f.calls, trackerCall{op: "succeeded", documents: documents, failed: failed, records: records})
	return nil
}

func (f *fakeTracker) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	f.calls = append(f.calls, trackerCall{op: "failed", err: runErr})
}

type fakeRecorder struct {
	statuses []string
	records  int
	flushed  bool
}

func (f *fakeRecorder) ObserveDocument(status string, d time.Duration) {
	f.statuses = append(f.statuses, status)
}
func (f *fakeRecorder) AddRecords(n int) { f.records += n }
func (f *fakeRecorder) Flush() error {
	f.flushed = true
	return nil
}

type failingSink struct{}

func (failingSink) Name() string { return "broken-sink" }
func (failingSink) Write(ctx context.Context, runID string, records []domain.Infraction) error {
	return errors.New("disk full")
}

type recordingSink struct {
	name    string
	records []domain.Infraction
}

func (s *recordingSink) Name() string { return s.name }
func (s *recordingSink) Write(ctx context.Context, runID string, records []domain.Infraction) error {
	s.records = append(s.records, records...)
	return nil
}

func newRunner(src *memSource, out io.Writer, sinks ...pipeline.Sink) *pipeline.Runner {
	r := pipeline.NewRunner(src, fakeExtractor{}, sinks...)
	r.Out = out
	r.NewRunID = func() string { return "run-1" }
	return r
}

func TestRun_SkipsFailingDocument(t *testing.T) {
	src := &memSource{
		docs: []string{"Agosto 2025.pdf", "Septiembre 2025.pdf"},
		content: map[string]string{
			"Agosto 2025.pdf":     brokenPDF,
			"Septiembre 2025.pdf": "header\n" + heuserLine + "\nfooter" + pageBreak + perezLine,
		},
	}
	outPath := filepath.Join(t.TempDir(), export.DefaultFilename)
	tracker := &fakeTracker{}
	recorder := &fakeRecorder{}
	var out bytes.Buffer

	r := newRunner(src, &out, &export.FileSink{Path: outPath})
	r.Tracker = tracker
	r.Metrics = recorder

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.Documents)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "Agosto 2025.pdf", summary.Failures[0].Document)
	require.Len(t, summary.Records, 2)
	assert.Equal(t, "2025-09-01", summary.Records[0].Date)
	assert.Equal(t, "Septiembre 2025.pdf", summary.Records[0].Source)
	assert.Equal(t, []string{outPath}, summary.Sinks)

	written, err := export.ReadFile(outPath)
	require.NoError(t, err)
	assert.Len(t, written, 2)

	console := out.String()
	assert.Contains(t, console, "Searching for PDFs in memory...")
	assert.Contains(t, console, "Processing Agosto 2025.pdf...")
	assert.Contains(t, console, "Error reading Agosto 2025.pdf:")
	assert.Contains(t, console, "Success! Extracted 2 entries.")
	assert.Contains(t, console, "Data saved to "+outPath)

	assert.Equal(t, []trackerCall{{op: "start"}, {op: "succeeded", documents: 2, failed: 1, records: 2}}, tracker.calls)
	assert.Equal(t, []string{"failed", "ok"}, recorder.statuses)
	assert.Equal(t, 2, recorder.records)
	assert.True(t, recorder.flushed)
	assert.Equal(t, src.open, src.closed, "every opened document is closed")
}

func TestRun_DocumentErrorUnwraps(t *testing.T) {
	src := &memSource{docs: []string{"missing.pdf"}, content: map[string]string{}}

	summary, err := newRunner(src, io.Discard).Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoRecords)

	require.Len(t, summary.Failures, 1)
	var docErr *pipeline.DocumentError
	require.True(t, errors.As(error(summary.Failures[0]), &docErr))
	assert.Contains(t, docErr.Error(), "no such document")
}

func TestRun_NoDocuments(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), export.DefaultFilename)
	tracker := &fakeTracker{}
	var out bytes.Buffer

	r := newRunner(&memSource{}, &out, &export.FileSink{Path: outPath})
	r.Tracker = tracker

	summary, err := r.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoDocuments)
	assert.True(t, pipeline.IsEmpty(err))
	assert.Empty(t, summary.Records)

	_, statErr := os.Stat(outPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no output file on empty run")
	assert.Contains(t, out.String(), "No PDF files found in the directory.")
	assert.Equal(t, "succeeded", tracker.calls[len(tracker.calls)-1].op)
}

func TestRun_NoRecords(t *testing.T) {
	src := &memSource{
		docs:    []string{"Mayo 2025.pdf"},
		content: map[string]string{"Mayo 2025.pdf": "no fines this month" + pageBreak + ""},
	}
	outPath := filepath.Join(t.TempDir(), export.DefaultFilename)
	var out bytes.Buffer
	recorder := &fakeRecorder{}

	r := newRunner(src, &out, &export.FileSink{Path: outPath})
	r.Metrics = recorder

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoRecords)

	_, statErr := os.Stat(outPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
	assert.Contains(t, out.String(), "No matching expense data found in the PDFs.")
	assert.Equal(t, []string{"empty"}, recorder.statuses)
}

func TestRun_RecordOrder(t *testing.T) {
	src := &memSource{
		docs: []string{"Julio 2024.pdf", "nombre raro.pdf"},
		content: map[string]string{
			"Julio 2024.pdf":  perezLine + pageBreak + heuserLine + "\n" + heuserLine,
			"nombre raro.pdf": gomezLine,
		},
	}

	summary, err := newRunner(src, io.Discard).Run(context.Background())
	require.NoError(t, err)

	want := []domain.Infraction{
		{Date: "2024-07-01", Block: "5", Lot: "3", Name: "Pérez Ana", InfractionNumber: "1080", Amount: "12.000,00"},
		{Date: "2024-07-01", Block: "2", Lot: "21", Name: "Heuser Mariano", InfractionNumber: "1073", Amount: "65.171,77"},
		{Date: "2024-07-01", Block: "2", Lot: "21", Name: "Heuser Mariano", InfractionNumber: "1073", Amount: "65.171,77"},
		{Date: "1970-01-01", Block: "11", Lot: "9", Name: "Gómez Luis", InfractionNumber: "2", Amount: "950,50"},
	}
	ignore := cmpopts.IgnoreFields(domain.Infraction{}, "RowID", "Source")
	if diff := cmp.Diff(want, summary.Records, ignore); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_SinkError(t *testing.T) {
	src := &memSource{
		docs:    []string{"Agosto 2025.pdf"},
		content: map[string]string{"Agosto 2025.pdf": heuserLine},
	}
	tracker := &fakeTracker{}

	r := newRunner(src, io.Discard, failingSink{})
	r.Tracker = tracker

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.False(t, pipeline.IsEmpty(err))
	assert.Contains(t, err.Error(), "broken-sink")

	last := tracker.calls[len(tracker.calls)-1]
	assert.Equal(t, "failed", last.op)
	assert.ErrorContains(t, last.err, "disk full")
}

func TestRun_ListError(t *testing.T) {
	src := &memSource{listErr: os.ErrNotExist}
	tracker := &fakeTracker{}

	r := newRunner(src, io.Discard)
	r.Tracker = tracker

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "failed", tracker.calls[len(tracker.calls)-1].op)
}

func TestRun_TrackerStartError(t *testing.T) {
	src := &memSource{docs: []string{"a.pdf"}, content: map[string]string{"a.pdf": heuserLine}}
	tracker := &fakeTracker{startErr: errors.New("ledger unavailable")}

	r := newRunner(src, io.Discard)
	r.Tracker = tracker

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, src.open, "no document is read when the run cannot be recorded")
}

func TestRun_Cancelled(t *testing.T) {
	src := &memSource{docs: []string{"a.pdf"}, content: map[string]string{"a.pdf": heuserLine}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(src, io.Discard).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_CSVRoundTrip(t *testing.T) {
	src := &memSource{
		docs:    []string{"Octubre 2025.pdf"},
		content: map[string]string{"Octubre 2025.pdf": heuserLine + "\n" + gomezLine},
	}
	outPath := filepath.Join(t.TempDir(), "out.csv")

	summary, err := newRunner(src, io.Discard, &export.FileSink{Path: outPath}).Run(context.Background())
	require.NoError(t, err)

	got, err := export.ReadFile(outPath)
	require.NoError(t, err)

	ignore := cmpopts.IgnoreFields(domain.Infraction{}, "RowID", "Source")
	if diff := cmp.Diff(summary.Records, got, ignore); diff != "" {
		t.Errorf("csv round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ConsoleLinePerSink(t *testing.T) {
	src := &memSource{
		docs:    []string{"Agosto 2025.pdf"},
		content: map[string]string{"Agosto 2025.pdf": heuserLine},
	}
	outPath := filepath.Join(t.TempDir(), export.DefaultFilename)
	table := &recordingSink{name: "bigquery:proj.fines.infractions"}
	var out bytes.Buffer

	summary, err := newRunner(src, &out, &export.FileSink{Path: outPath}, table).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{outPath, "bigquery:proj.fines.infractions"}, summary.Sinks)
	assert.Len(t, table.records, 1)

	console := out.String()
	assert.Contains(t, console, "Data saved to "+outPath+"\n")
	assert.Contains(t, console, "Wrote records to bigquery:proj.fines.infractions\n")
	assert.NotContains(t, console, "Data saved to bigquery:")
}

func TestRun_DocumentLogFields(t *testing.T) {
	src := &memSource{
		docs:    []string{"Agosto 2025.pdf"},
		content: map[string]string{"Agosto 2025.pdf": brokenPDF},
	}
	logs := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(logs))

	_, err := newRunner(src, io.Discard).Run(ctx)
	require.ErrorIs(t, err, pipeline.ErrNoRecords)

	assert.Contains(t, logs.String(), `"document":"Agosto 2025.pdf"`)
	assert.Contains(t, logs.String(), `"location":"mem://Agosto 2025.pdf"`)
	assert.Contains(t, logs.String(), `"run_id":"run-1"`)
	assert.Contains(t, logs.String(), "Skipping document")
}

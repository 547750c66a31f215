// Package source enumerates and opens statement documents.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/fines-ledger/internal/gcs"
)

// Document identifies one input file.
type Document struct {
	Name     string // base file name, used to derive the statement date
	Location string // local path or gs:// URI
}

// Blob is an opened document. Callers must Close it.
type Blob interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// IsPDF reports whether name has a .pdf extension, ignoring case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Local reads PDFs from a single directory level.
type Local struct {
	Dir string
}

// NewLocal returns a source over dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

func (l *Local) String() string {
	if abs, err := filepath.Abs(l.Dir); err == nil {
		return abs
	}
	return l.Dir
}

// List returns the PDF files in the directory in the order the filesystem
// listing returns them (sorted by name). Subdirectories are not visited.
func (l *Local) List(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("Local.List: reading %q: %w", l.Dir, err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		docs = append(docs, Document{
			Name:     e.Name(),
			Location: filepath.Join(l.Dir, e.Name()),
		})
	}
	return docs, nil
}

// Open opens a local document for reading.
func (l *Local) Open(ctx context.Context, doc Document) (Blob, error) {
	f, err := os.Open(doc.Location)
	if err != nil {
		return nil, fmt.Errorf("Local.Open: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("Local.Open: stat %q: %w", doc.Location, err)
	}
	return &fileBlob{File: f, size: st.Size()}, nil
}

type fileBlob struct {
	*os.File
	size int64
}

func (b *fileBlob) Size() int64 { return b.size }

// ObjectStore is the subset of gcs.StorageService a GCS source needs.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucketName, prefix string) ([]string, error)
	Download(ctx context.Context, bucketName, objectName string) ([]byte, error)
}

// GCS reads PDFs stored directly under a bucket prefix.
type GCS struct {
	store  ObjectStore
	bucket string
	prefix string
}

// NewGCS returns a source for a gs://bucket/prefix URI.
func NewGCS(store ObjectStore, uri string) (*GCS, error) {
	bucket, prefix, err := gcs.ParseURI(uri, true)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: %w", err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GCS{store: store, bucket: bucket, prefix: prefix}, nil
}

func (g *GCS) String() string {
	return gcs.URI(g.bucket, g.prefix)
}

// List returns the PDF objects under the prefix in service listing order.
func (g *GCS) List(ctx context.Context) ([]Document, error) {
	names, err := g.store.ListObjects(ctx, g.bucket, g.prefix)
	if err != nil {
		return nil, fmt.Errorf("GCS.List: %w", err)
	}

	var docs []Document
	for _, name := range names {
		if !IsPDF(name) {
			continue
		}
		location := gcs.URI(g.bucket, name)
		docs = append(docs, Document{
			Name:     gcs.ExtractFilename(location),
			Location: location,
		})
	}
	return docs, nil
}

// Open downloads the object into memory.
func (g *GCS) Open(ctx context.Context, doc Document) (Blob, error) {
	bucket, object, err := gcs.ParseURI(doc.Location, false)
	if err != nil {
		return nil, fmt.Errorf("GCS.Open: %w", err)
	}
	data, err := g.store.Download(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("GCS.Open: %w", err)
	}
	return memBlob{bytes.NewReader(data)}, nil
}

type memBlob struct {
	*bytes.Reader
}

func (memBlob) Close() error { return nil }

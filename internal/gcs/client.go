package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const uriScheme = "gs://"

// ErrInvalidURI is returned for URIs that are not of the form gs://bucket/object.
var ErrInvalidURI = errors.New("invalid GCS URI")

// Client is the concrete StorageService backed by Google Cloud Storage.
// It assumes Application Default Credentials are configured.
type Client struct {
	client *storage.Client
}

// NewClient creates a storage client shared by all operations.
func NewClient(ctx context.Context) (*Client, error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Client{client: sc}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ListObjects returns object names directly under prefix, in the lexical
// order returned by the service. Nested "directories" are skipped.
func (c *Client) ListObjects(ctx context.Context, bucketName, prefix string) ([]string, error) {
	it := c.client.Bucket(bucketName).Objects(ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListObjects: listing gs://%s/%s: %w", bucketName, prefix, err)
		}
		// Synthetic prefix entries only carry Prefix.
		if attrs.Name == "" {
			continue
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Download reads the whole object into memory.
func (c *Client) Download(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	rc, err := c.client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Download: reading object %s/%s: %w", bucketName, objectName, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Download: reading bytes: %w", err)
	}
	return data, nil
}

// UploadFile uploads a local file to a GCS bucket under the given object name.
func (c *Client) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// NewWriter returns a writer for the object; nothing is visible until Close succeeds.
func (c *Client) NewWriter(ctx context.Context, bucketName, objectName, contentType string) io.WriteCloser {
	w := c.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object.
// The object part may be empty or a prefix ending in "/" when allowPrefix is set.
func ParseURI(uri string, allowPrefix bool) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, uriScheme) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}

	trimmed := strings.TrimPrefix(uri, uriScheme)
	bucket, object, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w (no bucket): %q", ErrInvalidURI, uri)
	}
	if !allowPrefix && (object == "" || strings.HasSuffix(object, "/")) {
		return "", "", fmt.Errorf("%w (no object path): %q", ErrInvalidURI, uri)
	}
	return bucket, object, nil
}

// URI formats a bucket and object as a gs:// URI.
func URI(bucket, object string) string {
	return uriScheme + bucket + "/" + object
}

// ExtractFilename extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func ExtractFilename(uri string) string {
	trimmed := strings.TrimPrefix(uri, uriScheme)

	_, object, ok := strings.Cut(trimmed, "/")
	if !ok {
		return trimmed
	}
	return path.Base(object)
}

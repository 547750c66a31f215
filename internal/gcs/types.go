package gcs

import (
	"context"
	"io"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// ListObjects returns the object names directly under prefix (no recursion).
	ListObjects(ctx context.Context, bucketName, prefix string) ([]string, error)

	// Download returns the full contents of an object.
	Download(ctx context.Context, bucketName, objectName string) ([]byte, error)

	// UploadFile uploads a local file to a storage bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error

	// NewWriter opens a writer for an object. The object is committed on Close.
	NewWriter(ctx context.Context, bucketName, objectName, contentType string) io.WriteCloser
}

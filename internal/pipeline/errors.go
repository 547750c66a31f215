package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocuments means the source held no PDF files. No output is written.
	ErrNoDocuments = errors.New("no PDF documents found")
	// ErrNoRecords means documents were read but none contained a fine line.
	// No output is written.
	ErrNoRecords = errors.New("no matching records found")
)

// DocumentError reports a document that could not be processed. The run
// continues with the next document.
type DocumentError struct {
	Document string
	Err      error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Document, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// IsEmpty reports whether err is one of the two empty outcomes, which are
// not failures.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrNoDocuments) || errors.Is(err, ErrNoRecords)
}

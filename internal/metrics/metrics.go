// Package metrics defines the run instrumentation used by the pipeline.
// Backends live in subpackages; the default is Nop.
package metrics

import "time"

// Document outcomes used as the status label.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusEmpty  = "empty"
)

// Recorder receives per-run measurements.
type Recorder interface {
	// ObserveDocument records one processed document and how long it took.
	ObserveDocument(status string, d time.Duration)
	// AddRecords counts extracted records.
	AddRecords(n int)
	// Flush publishes everything recorded so far.
	Flush() error
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) ObserveDocument(string, time.Duration) {}
func (Nop) AddRecords(int)                        {}
func (Nop) Flush() error                          { return nil }

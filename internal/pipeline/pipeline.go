// Package pipeline runs an extraction over every statement of a source and
// hands the collected records to the configured sinks.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/fines-ledger/internal/domain"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"github.com/dvloznov/fines-ledger/internal/metrics"
	"github.com/google/uuid"
)

// Runner processes the documents of one source, one after another.
type Runner struct {
	Source    Source
	Extractor TextExtractor
	Sinks     []Sink

	// Optional.
	Tracker  RunTracker
	Metrics  metrics.Recorder
	Out      io.Writer // progress and summary lines
	NewRunID func() string
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Documents int
	Records   []domain.Infraction
	Failures  []*DocumentError
	Sinks     []string
}

// Failed returns the number of documents that could not be processed.
func (s *Summary) Failed() int { return len(s.Failures) }

// NewRunner returns a runner writing to sinks.
func NewRunner(src Source, ex TextExtractor, sinks ...Sink) *Runner {
	return &Runner{Source: src, Extractor: ex, Sinks: sinks}
}

// Run processes every document of the source in listing order. A document
// that fails is reported in the summary and skipped. Records are written to
// the sinks only when at least one was found; otherwise Run returns
// ErrNoDocuments or ErrNoRecords together with the summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	r.defaults()

	summary := &Summary{RunID: r.NewRunID()}
	log := logger.FromContext(ctx).With().Str("run_id", summary.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	defer func() {
		if err := r.Metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("Failed to push run metrics")
		}
	}()

	if r.Tracker != nil {
		if err := r.Tracker.StartRun(ctx, summary.RunID, r.Source.String()); err != nil {
			return summary, fmt.Errorf("Run: start run: %w", err)
		}
	}

	fmt.Fprintf(r.Out, msgSearching, r.Source)

	docs, err := r.Source.List(ctx)
	if err != nil {
		err = fmt.Errorf("Run: listing documents: %w", err)
		r.fail(ctx, summary, err)
		return summary, err
	}
	summary.Documents = len(docs)
	log.Info().Int("documents", len(docs)).Str("source", r.Source.String()).Msg("Listed documents")

	if len(docs) == 0 {
		fmt.Fprint(r.Out, msgNoDocuments)
		return summary, r.finishEmpty(ctx, summary, ErrNoDocuments)
	}

	docPipeline := NewDocumentPipeline(r.Source, r.Extractor)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			r.fail(ctx, summary, err)
			return summary, fmt.Errorf("Run: %w", err)
		}

		fmt.Fprintf(r.Out, msgProcessing, doc.Name)
		dlog := logger.WithFields(log, map[string]interface{}{
			"document": doc.Name,
			"location": doc.Location,
		})

		state := &DocumentState{Document: doc}
		start := time.Now()
		err := docPipeline.Execute(logger.WithContext(ctx, dlog), state)
		elapsed := time.Since(start)

		if err != nil {
			r.Metrics.ObserveDocument(metrics.StatusFailed, elapsed)
			summary.Failures = append(summary.Failures, &DocumentError{Document: doc.Name, Err: err})
			fmt.Fprintf(r.Out, msgReadError, doc.Name, err)
			dlog.Error().Err(err).Msg("Skipping document")
			continue
		}

		status := metrics.StatusOK
		if len(state.Records) == 0 {
			status = metrics.StatusEmpty
		}
		r.Metrics.ObserveDocument(status, elapsed)
		r.Metrics.AddRecords(len(state.Records))

		summary.Records = append(summary.Records, state.Records...)
		dlog.Info().
			Str("date", state.Date).
			Int("pages", len(state.Pages)).
			Int("records", len(state.Records)).
			Dur("elapsed", elapsed).
			Msg("Processed document")
	}

	if len(summary.Records) == 0 {
		fmt.Fprint(r.Out, msgNoRecords)
		return summary, r.finishEmpty(ctx, summary, ErrNoRecords)
	}

	fmt.Fprintf(r.Out, msgSuccess, len(summary.Records))
	for _, sink := range r.Sinks {
		if err := sink.Write(ctx, summary.RunID, summary.Records); err != nil {
			err = fmt.Errorf("Run: writing to %s: %w", sink.Name(), err)
			r.fail(ctx, summary, err)
			return summary, err
		}
		summary.Sinks = append(summary.Sinks, sink.Name())
		if fs, ok := sink.(LocalFileSink); ok {
			fmt.Fprintf(r.Out, msgSaved, fs.LocalPath())
		} else {
			fmt.Fprintf(r.Out, msgWrote, sink.Name())
		}
		log.Info().Str("sink", sink.Name()).Int("records", len(summary.Records)).Msg("Wrote records")
	}

	if err := r.succeed(ctx, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r *Runner) defaults() {
	if r.Metrics == nil {
		r.Metrics = metrics.Nop{}
	}
	if r.Out == nil {
		r.Out = io.Discard
	}
	if r.NewRunID == nil {
		r.NewRunID = uuid.NewString
	}
}

// finishEmpty closes an empty run in the ledger and returns outcome.
func (r *Runner) finishEmpty(ctx context.Context, summary *Summary, outcome error) error {
	log := logger.FromContext(ctx)
	log.Warn().
		Int("documents", summary.Documents).
		Int("failed", summary.Failed()).
		Msg(outcome.Error())
	if err := r.succeed(ctx, summary); err != nil {
		return err
	}
	return outcome
}

func (r *Runner) succeed(ctx context.Context, summary *Summary) error {
	if r.Tracker == nil {
		return nil
	}
	if err := r.Tracker.MarkRunSucceeded(ctx, summary.RunID, summary.Documents, summary.Failed(), len(summary.Records)); err != nil {
		return fmt.Errorf("Run: mark run succeeded: %w", err)
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, summary *Summary, err error) {
	if r.Tracker != nil {
		r.Tracker.MarkRunFailed(ctx, summary.RunID, err)
	}
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/fines-ledger/internal/domain"
	"github.com/dvloznov/fines-ledger/internal/extract"
	"github.com/dvloznov/fines-ledger/internal/filedate"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"github.com/dvloznov/fines-ledger/internal/source"
)

// DocumentStep represents a single step in processing one document.
type DocumentStep interface {
	Execute(ctx context.Context, state *DocumentState) error
}

// DocumentState holds the shared state across the steps for one document.
type DocumentState struct {
	Document source.Document
	Date     string
	Blob     source.Blob
	Pages    []string
	Records  []domain.Infraction
}

func (s *DocumentState) release() {
	if s.Blob != nil {
		_ = s.Blob.Close()
		s.Blob = nil
	}
}

// Step 1: ResolveDateStep derives the statement date from the file name.
type ResolveDateStep struct{}

func (s *ResolveDateStep) Execute(ctx context.Context, state *DocumentState) error {
	state.Date = filedate.Parse(state.Document.Name)
	if filedate.IsUnknown(state.Date) {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("document", state.Document.Name).
			Msg("No month and year in file name, using placeholder date")
	}
	return nil
}

// Step 2: OpenDocumentStep opens the document from its source.
type OpenDocumentStep struct {
	Source Source
}

func (s *OpenDocumentStep) Execute(ctx context.Context, state *DocumentState) error {
	blob, err := s.Source.Open(ctx, state.Document)
	if err != nil {
		return err
	}
	state.Blob = blob
	return nil
}

// Step 3: ExtractTextStep reads the text of every page.
type ExtractTextStep struct {
	Extractor TextExtractor
}

func (s *ExtractTextStep) Execute(ctx context.Context, state *DocumentState) error {
	pages, err := s.Extractor.Pages(state.Blob, state.Blob.Size())
	state.release()
	if err != nil {
		return err
	}
	state.Pages = pages
	return nil
}

// Step 4: MatchLinesStep turns matching lines into records.
type MatchLinesStep struct{}

func (s *MatchLinesStep) Execute(ctx context.Context, state *DocumentState) error {
	records := extract.Pages(state.Pages, state.Date)
	for i := range records {
		records[i].Source = state.Document.Name
	}
	state.Records = records
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []DocumentStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...DocumentStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially. An opened document is
// always closed, whichever step fails.
func (p *Pipeline) Execute(ctx context.Context, state *DocumentState) error {
	defer state.release()
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewDocumentPipeline creates the standard 4-step pipeline for one statement.
func NewDocumentPipeline(src Source, ex TextExtractor) *Pipeline {
	return NewPipeline(
		&ResolveDateStep{},
		&OpenDocumentStep{Source: src},
		&ExtractTextStep{Extractor: ex},
		&MatchLinesStep{},
	)
}

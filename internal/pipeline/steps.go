package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/logger"
)

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Events      []domain.RawEvent
	Existing    []domain.Transaction
	Valid       []domain.RawEvent
	Rejected    int
	Extractions []Extraction
	Normalized  []domain.Transaction
	Merged      []domain.Transaction
	Added       int
	Updated     int
}

// Step 1: ValidateStep drops events that cannot become transactions.
type ValidateStep struct{}

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	state.Valid = make([]domain.RawEvent, 0, len(state.Events))
	for _, ev := range state.Events {
		clean, err := ValidateEvent(ev)
		if err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("Rejected capture event")
			state.Rejected++
			continue
		}
		state.Valid = append(state.Valid, clean)
	}
	return nil
}

// Step 2: ParseStep extracts structured fields from each description.
type ParseStep struct {
	Parser TextParser
}

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	state.Extractions = make([]Extraction, len(state.Valid))
	for i, ev := range state.Valid {
		if ev.Description == nil {
			continue
		}
		ext := s.Parser.Parse(*ev.Description)
		if ext.Empty() {
			log.Debug().Str("event_id", ev.ID).Msg("No fields parsed from description")
		}
		state.Extractions[i] = ext
	}
	return nil
}

// Step 3: NormalizeStep resolves canonical transactions.
type NormalizeStep struct {
	Normalizer *Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Extractions) != len(state.Valid) {
		return fmt.Errorf("NormalizeStep: %d extractions for %d events", len(state.Extractions), len(state.Valid))
	}
	state.Normalized = make([]domain.Transaction, len(state.Valid))
	for i, ev := range state.Valid {
		state.Normalized[i] = s.Normalizer.NormalizeWith(ev, state.Extractions[i])
	}
	return nil
}

// Step 4: MergeStep folds the batch into the existing log.
type MergeStep struct{}

func (s *MergeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Merged = Merge(state.Normalized, state.Existing)
	state.Added = CountNew(state.Merged, state.Existing)
	state.Updated = CountChanged(state.Merged, state.Existing)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewIngestionPipeline wires validate, parse, normalize and merge.
func NewIngestionPipeline(parser TextParser, now Clock) *Pipeline {
	return NewPipeline(
		&ValidateStep{},
		&ParseStep{Parser: parser},
		&NormalizeStep{Normalizer: NewNormalizer(parser, now)},
		&MergeStep{},
	)
}

// Ingest runs events through the ingestion pipeline against existing.
func (p *Pipeline) Ingest(ctx context.Context, existing []domain.Transaction, events []domain.RawEvent) (*PipelineState, error) {
	state := &PipelineState{Events: events, Existing: existing}
	if err := p.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	return state, nil
}

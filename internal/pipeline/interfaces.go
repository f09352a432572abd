package pipeline

import (
	"context"
)

// TextParser extracts structured fields from a notification body.
// *Parser is the production implementation; tests substitute their own.
type TextParser interface {
	Parse(text string) Extraction
}

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

var _ TextParser = (*Parser)(nil)

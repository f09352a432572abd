package advisor

import (
	"time"

	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/dvloznov/pixtracker/internal/pipeline"
	"github.com/rs/zerolog"
)

// Service turns the transaction log into spending and saving insights.
// Every insight has a deterministic fallback used when the model is missing
// or its answer cannot be used.
type Service struct {
	model Model
	loc   *time.Location
	now   pipeline.Clock
	log   zerolog.Logger
}

// NewService returns a Service. model may be nil.
func NewService(model Model, loc *time.Location, now pipeline.Clock, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		model: model,
		loc:   loc,
		now:   now,
		log:   logger.WithComponent(log, "advisor"),
	}
}

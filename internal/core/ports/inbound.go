package ports

import (
	"context"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

// EnvelopeProcessor is the inbound contract for driving one envelope through the pipeline.
type EnvelopeProcessor interface {
	Process(ctx context.Context, env domain.Envelope) ProcessResult
	ProcessBatch(ctx context.Context, envs []domain.Envelope) []ProcessResult
}

// ProcessResult reports what happened to one envelope.
type ProcessResult struct {
	Envelope    domain.Envelope
	Disposition domain.Disposition
	Stage       domain.Stage
	Outcome     *domain.Outcome
	Err         error
}

// RequestSubmitter is the inbound contract for enqueueing new process requests.
type RequestSubmitter interface {
	Submit(ctx context.Context, raw []byte) (domain.ProcessRequest, error)
}

// AttemptReader exposes attempt counters to read-only surfaces.
type AttemptReader interface {
	AttemptCount(ctx context.Context, eventID string) (int, error)
}

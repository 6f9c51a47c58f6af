package ports

import (
	"context"
	"time"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

// Acknowledger controls the lifecycle of a received envelope.
type Acknowledger interface {
	Delete(ctx context.Context, env domain.Envelope) error
	ExtendVisibility(ctx context.Context, env domain.Envelope, timeout time.Duration) error
}

// Releaser is implemented by transports that track received envelopes and
// can hand one back for redelivery after delay instead of waiting out its
// visibility timeout.
type Releaser interface {
	Release(ctx context.Context, env domain.Envelope, delay time.Duration) error
}

// InboundChannel delivers batches of envelopes. Receive may block up to the
// configured long-poll wait and returns an empty batch when nothing arrived.
type InboundChannel interface {
	Receive(ctx context.Context) ([]domain.Envelope, error)
	Acknowledger
}

// OutboundChannel publishes a serialized payload. A nil error means the
// transport accepted the payload durably.
type OutboundChannel interface {
	Send(ctx context.Context, payload []byte) error
}

// StorageGateway reads source blobs and writes result blobs.
// Fetch fails with ErrSourceNotFound or ErrStorageUnavailable; Store fails
// with ErrStorageQuotaExceeded or ErrStorageUnavailable.
type StorageGateway interface {
	Fetch(ctx context.Context, loc domain.ObjectLocation) ([]byte, error)
	Store(ctx context.Context, loc domain.ObjectLocation, blob []byte, contentType string) error
}

// Transformer converts a blob into ordered chunks. It must not touch shared
// state and should honour ctx cancellation.
type Transformer interface {
	Transform(ctx context.Context, blob []byte, meta domain.DocumentMetadata) ([]domain.DocumentChunk, error)
}

// MessageCodec decodes inbound payloads and encodes outbound ones.
type MessageCodec interface {
	Decode(raw []byte) (domain.ProcessRequest, error)
	EncodeRequest(req domain.ProcessRequest) ([]byte, error)
	EncodeOutcome(outcome domain.Outcome) ([]byte, error)
	EncodeChunks(req domain.ProcessRequest, chunks []domain.DocumentChunk) ([]byte, error)
}

// OutcomeReporter publishes success and failure outcomes.
type OutcomeReporter interface {
	Publish(ctx context.Context, outcome domain.Outcome) error
}

// AttemptTracker counts processing attempts per request eventId for
// transports without a native delivery counter.
type AttemptTracker interface {
	AttemptCount(ctx context.Context, eventID string) (int, error)
	IncrementAttempt(ctx context.Context, eventID string) (int, error)
}

// ProcessingMetrics observes the pipeline.
type ProcessingMetrics interface {
	StartMessage()
	FinishMessage(disposition domain.Disposition, code domain.ErrorCode, duration time.Duration)
	ObserveChunks(count int)
	ObserveQueueLag(lag time.Duration)
}

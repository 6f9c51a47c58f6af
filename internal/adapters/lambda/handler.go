// Package lambdaadapter runs the processor over SQS event batches delivered
// by AWS Lambda and reports partial batch failures.
package lambdaadapter

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
)

// BindFunc returns a processor that acknowledges envelopes through ack.
type BindFunc func(ack ports.Acknowledger) ports.EnvelopeProcessor

type Handler struct {
	bind       BindFunc
	visibility ports.Acknowledger
}

// NewHandler builds a Lambda handler. visibility, when non-nil, serves
// visibility extensions for in-flight records.
func NewHandler(bind BindFunc, visibility ports.Acknowledger) *Handler {
	return &Handler{bind: bind, visibility: visibility}
}

// Handle processes one SQS event. Lambda deletes every record that is not
// listed in BatchItemFailures, so only envelopes the processor deleted are
// left out of the response.
func (h *Handler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	ack := newBatchAck(h.visibility)
	envs := make([]domain.Envelope, 0, len(event.Records))
	for _, record := range event.Records {
		envs = append(envs, EnvelopeFromRecord(record))
	}

	results := h.bind(ack).ProcessBatch(ctx, envs)

	var response events.SQSEventResponse
	for _, env := range envs {
		if ack.deleted(env.MessageID) {
			continue
		}
		response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
			ItemIdentifier: env.MessageID,
		})
	}

	slog.Info("lambda_batch_processed",
		"records", len(envs),
		"results", len(results),
		"batch_item_failures", len(response.BatchItemFailures),
	)
	return response, nil
}

func EnvelopeFromRecord(record events.SQSMessage) domain.Envelope {
	env := domain.Envelope{
		MessageID:     record.MessageId,
		ReceiptHandle: record.ReceiptHandle,
		Body:          []byte(record.Body),
	}
	if raw, ok := record.Attributes["ApproximateReceiveCount"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			env.ReceiveCount = n
		}
	}
	return env
}

type batchAck struct {
	inner ports.Acknowledger

	mu   sync.Mutex
	done map[string]struct{}
}

func newBatchAck(inner ports.Acknowledger) *batchAck {
	return &batchAck{inner: inner, done: make(map[string]struct{})}
}

func (a *batchAck) Delete(_ context.Context, env domain.Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.done[env.MessageID] = struct{}{}
	return nil
}

func (a *batchAck) ExtendVisibility(ctx context.Context, env domain.Envelope, timeout time.Duration) error {
	if a.inner == nil {
		return nil
	}
	return a.inner.ExtendVisibility(ctx, env, timeout)
}

func (a *batchAck) deleted(messageID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.done[messageID]
	return ok
}

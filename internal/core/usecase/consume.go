package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
)

const (
	defaultReceiveBackoff = 500 * time.Millisecond
	maxReceiveBackoff     = 30 * time.Second
)

// ConsumeUseCase polls the inbound channel and hands each batch to the processor.
type ConsumeUseCase struct {
	inbound   ports.InboundChannel
	processor ports.EnvelopeProcessor
	backoff   time.Duration
	idleWait  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

type ConsumeOption func(*ConsumeUseCase)

// WithIdleWait pauses Run for d after an empty receive. Transports that
// return immediately when the queue is empty (SQS short polling) need it.
func WithIdleWait(d time.Duration) ConsumeOption {
	return func(uc *ConsumeUseCase) { uc.idleWait = d }
}

func NewConsumeUseCase(inbound ports.InboundChannel, processor ports.EnvelopeProcessor, opts ...ConsumeOption) *ConsumeUseCase {
	uc := &ConsumeUseCase{
		inbound:   inbound,
		processor: processor,
		backoff:   defaultReceiveBackoff,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RunOnce receives a single batch and processes it.
func (uc *ConsumeUseCase) RunOnce(ctx context.Context) ([]ports.ProcessResult, error) {
	envs, err := uc.inbound.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, nil
	}
	return uc.processor.ProcessBatch(ctx, envs), nil
}

// Run polls until ctx is cancelled. Receive errors back off exponentially
// and reset after the next successful receive.
func (uc *ConsumeUseCase) Run(ctx context.Context) error {
	backoff := uc.backoff
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		results, err := uc.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			slog.Warn("receive_failed", "error", err, "backoff_ms", backoff.Milliseconds())
			if sleepErr := uc.sleep(ctx, backoff); sleepErr != nil {
				return nil
			}
			backoff = min(backoff*2, maxReceiveBackoff)
			continue
		}
		backoff = uc.backoff

		if len(results) > 0 {
			logBatch(results)
			continue
		}
		if uc.idleWait > 0 {
			if sleepErr := uc.sleep(ctx, uc.idleWait); sleepErr != nil {
				return nil
			}
		}
	}
}

func logBatch(results []ports.ProcessResult) {
	var completed, failed, retried int
	for _, result := range results {
		switch result.Disposition {
		case domain.DispositionCompleted:
			completed++
		case domain.DispositionFailed:
			failed++
		default:
			retried++
		}
	}
	slog.Info("batch_processed",
		"size", len(results),
		"completed", completed,
		"failed", failed,
		"retry", retried,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

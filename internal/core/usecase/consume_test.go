package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
)

type inboundFake struct {
	ackFake
	batches [][]domain.Envelope
	errs    []error
	calls   int
	onEmpty func()
}

func (f *inboundFake) Receive(context.Context) ([]domain.Envelope, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.batches) == 0 {
		if f.onEmpty != nil {
			f.onEmpty()
		}
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type processorFake struct {
	batches [][]domain.Envelope
}

func (f *processorFake) Process(ctx context.Context, env domain.Envelope) ports.ProcessResult {
	return f.ProcessBatch(ctx, []domain.Envelope{env})[0]
}

func (f *processorFake) ProcessBatch(_ context.Context, envs []domain.Envelope) []ports.ProcessResult {
	f.batches = append(f.batches, envs)
	results := make([]ports.ProcessResult, len(envs))
	for i, env := range envs {
		results[i] = ports.ProcessResult{Envelope: env, Disposition: domain.DispositionCompleted}
	}
	return results
}

func TestConsumeRunOnceSkipsEmptyBatch(t *testing.T) {
	inbound := &inboundFake{}
	processor := &processorFake{}
	uc := NewConsumeUseCase(inbound, processor)

	results, err := uc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(results) != 0 || len(processor.batches) != 0 {
		t.Fatalf("expected no processing for empty batch")
	}
}

func TestConsumeRunBacksOffOnReceiveErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := &inboundFake{
		errs:    []error{errors.New("throttled"), errors.New("throttled")},
		batches: [][]domain.Envelope{{{MessageID: "m1"}, {MessageID: "m2"}}},
		onEmpty: cancel,
	}
	processor := &processorFake{}
	uc := NewConsumeUseCase(inbound, processor)

	var sleeps []time.Duration
	uc.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	if err := uc.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sleeps) != 2 || sleeps[1] != 2*sleeps[0] {
		t.Fatalf("expected doubling backoff, got %v", sleeps)
	}
	if len(processor.batches) != 1 || len(processor.batches[0]) != 2 {
		t.Fatalf("expected one batch of two, got %+v", processor.batches)
	}
}

func TestConsumeRunWaitsAfterEmptyReceive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := &inboundFake{
		batches: [][]domain.Envelope{{{MessageID: "m1"}}},
	}
	uc := NewConsumeUseCase(inbound, &processorFake{}, WithIdleWait(time.Second))

	var sleeps []time.Duration
	uc.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			cancel()
		}
		return nil
	}

	if err := uc.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if inbound.calls != 4 {
		t.Fatalf("expected one receive per idle wait, got %d receives", inbound.calls)
	}
	for _, d := range sleeps {
		if d != time.Second {
			t.Fatalf("expected idle waits of 1s, got %v", sleeps)
		}
	}
}

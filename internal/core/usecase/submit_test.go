package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/kontext-processor/internal/codec"
	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

func TestSubmitEnqueuesCanonicalRequest(t *testing.T) {
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	queue := &outboundFake{}
	uc := NewSubmitRequestUseCase(c, queue)

	req, err := uc.Submit(context.Background(), []byte(requestBody))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if req.ContentID != "c1" || len(queue.payloads) != 1 {
		t.Fatalf("unexpected submit result: %+v, %d payloads", req, len(queue.payloads))
	}
	again, err := c.Decode(queue.payloads[0])
	if err != nil {
		t.Fatalf("enqueued payload does not decode: %v", err)
	}
	if again.EventID != req.EventID || again.Source != req.Source {
		t.Fatalf("expected enqueued request to match, got %+v", again)
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	queue := &outboundFake{}
	uc := NewSubmitRequestUseCase(c, queue)

	_, err = uc.Submit(context.Background(), []byte(`{"contentId":"c1"}`))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(queue.payloads) != 0 {
		t.Fatalf("expected nothing enqueued")
	}
}

func TestSubmitQueueErrorIsTemporary(t *testing.T) {
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	uc := NewSubmitRequestUseCase(c, &outboundFake{err: errors.New("queue down")})

	_, err = uc.Submit(context.Background(), []byte(requestBody))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestSubmitAssignsFreshEventIDPerSubmission(t *testing.T) {
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	queue := &outboundFake{}
	uc := NewSubmitRequestUseCase(c, queue)
	body := []byte(strings.Replace(requestBody, `"eventId": "e1",`, "", 1))

	first, err := uc.Submit(context.Background(), body)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := uc.Submit(context.Background(), body)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if first.EventID == "" || first.EventID == second.EventID {
		t.Fatalf("expected distinct event ids, got %q and %q", first.EventID, second.EventID)
	}
	enqueued, err := c.Decode(queue.payloads[1])
	if err != nil {
		t.Fatalf("enqueued payload does not decode: %v", err)
	}
	if enqueued.EventID != second.EventID {
		t.Fatalf("expected enqueued event id %q, got %q", second.EventID, enqueued.EventID)
	}
}

func TestSubmitKeepsCallerEventID(t *testing.T) {
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	uc := NewSubmitRequestUseCase(c, &outboundFake{})

	req, err := uc.Submit(context.Background(), []byte(requestBody))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if req.EventID != "e1" {
		t.Fatalf("expected caller event id e1, got %q", req.EventID)
	}
}

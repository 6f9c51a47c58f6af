package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kirillkom/kontext-processor/internal/codec"
	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

type outboundFake struct {
	payloads [][]byte
	err      error
}

func (f *outboundFake) Send(_ context.Context, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestOutcomeReporterPublishesEncodedOutcome(t *testing.T) {
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	out := &outboundFake{}
	reporter := NewOutcomeReporter(c, out)

	req := domain.ProcessRequest{ContentID: "c1", ContentType: domain.ContentTypeDocument}
	outcome := domain.NewSuccessOutcome(req, 3, 0, domain.ObjectLocation{Bucket: "results", Key: "processed/c1-chunks.json"})
	if err := reporter.Publish(context.Background(), outcome); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(out.payloads) != 1 {
		t.Fatalf("expected one payload, got %d", len(out.payloads))
	}
	var got map[string]any
	if err := json.Unmarshal(out.payloads[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["eventType"] != "content.process.success" || got["chunkCount"] != float64(3) {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestOutcomeReporterClassifiesSendErrors(t *testing.T) {
	c, err := codec.New()
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	reporter := NewOutcomeReporter(c, &outboundFake{err: errors.New("connection reset")})

	outcome := domain.NewSuccessOutcome(domain.ProcessRequest{ContentID: "c1"}, 1, 0, domain.ObjectLocation{})
	err = reporter.Publish(context.Background(), outcome)
	if !domain.IsKind(err, domain.ErrPublishUnavailable) {
		t.Fatalf("expected ErrPublishUnavailable, got %v", err)
	}
	if domain.Classify(err).Terminal {
		t.Fatalf("expected publish errors to be transient")
	}
}

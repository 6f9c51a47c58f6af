package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
)

// SubmitRequestUseCase validates a raw process request and enqueues it on
// the inbound channel in canonical form.
type SubmitRequestUseCase struct {
	codec ports.MessageCodec
	queue ports.OutboundChannel
	newID func() string
}

func NewSubmitRequestUseCase(codec ports.MessageCodec, queue ports.OutboundChannel) *SubmitRequestUseCase {
	return &SubmitRequestUseCase{codec: codec, queue: queue, newID: uuid.NewString}
}

// Submit enqueues raw. A submission without eventId gets a fresh one, so
// identical bodies submitted twice are tracked as separate requests.

func (uc *SubmitRequestUseCase) Submit(ctx context.Context, raw []byte) (domain.ProcessRequest, error) {
	req, err := uc.codec.Decode(raw)
	if err != nil {
		return domain.ProcessRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	if !hasEventID(raw) {
		req.EventID = uc.newID()
	}

	payload, err := uc.codec.EncodeRequest(req)
	if err != nil {
		return domain.ProcessRequest{}, fmt.Errorf("encode request: %w", err)
	}
	if err := uc.queue.Send(ctx, payload); err != nil {
		return domain.ProcessRequest{}, domain.WrapError(domain.ErrTemporary, "enqueue request", err)
	}
	return req, nil
}

func hasEventID(raw []byte) bool {
	var ids struct {
		EventID string `json:"eventId"`
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return false
	}
	return strings.TrimSpace(ids.EventID) != ""
}

package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
)

// OutcomeReporter serializes outcomes and sends them on the outbound channel.
type OutcomeReporter struct {
	codec    ports.MessageCodec
	outbound ports.OutboundChannel
}

func NewOutcomeReporter(codec ports.MessageCodec, outbound ports.OutboundChannel) *OutcomeReporter {
	return &OutcomeReporter{codec: codec, outbound: outbound}
}

func (r *OutcomeReporter) Publish(ctx context.Context, outcome domain.Outcome) error {
	payload, err := r.codec.EncodeOutcome(outcome)
	if err != nil {
		return fmt.Errorf("encode %s outcome: %w", outcome.Kind, err)
	}
	if err := r.outbound.Send(ctx, payload); err != nil {
		if domain.IsKind(err, domain.ErrPublishUnavailable) {
			return err
		}
		return domain.WrapError(domain.ErrPublishUnavailable, "send outcome", err)
	}
	return nil
}

package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/resilience"
)

// connectivityErrors are answered by reconnecting, so callers may retry them.
var connectivityErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrNoStreamResponse,
	nats.ErrNoResponders,
}

func isConnectivityError(err error) bool {
	for _, target := range connectivityErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if isConnectivityError(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ClassifyDomainError(err)
}

// wrapTemporaryIfNeeded tags connectivity and open-breaker failures as
// ErrTemporary so the processor leaves the envelope for redelivery.
func wrapTemporaryIfNeeded(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case isConnectivityError(err), resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, op, err)
	default:
		return err
	}
}

package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

// Call runs fn through e and returns its value.
func Call[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classifier ErrorClassifier) (T, error) {
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, classifier)
	return out, err
}

// ClassifyDomainError retries transient storage and transport kinds. Missing
// objects and exhausted quotas are answers, not outages, and do not trip the breaker.
func ClassifyDomainError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{}
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case domain.IsKind(err, domain.ErrSourceNotFound),
		domain.IsKind(err, domain.ErrNotFound),
		domain.IsKind(err, domain.ErrStorageQuotaExceeded):
		return ErrorClassification{}
	case domain.IsKind(err, domain.ErrStorageUnavailable),
		domain.IsKind(err, domain.ErrPublishUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

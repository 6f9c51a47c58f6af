package httpadapter

import (
	"net/http"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrPublishUnavailable),
		domain.IsKind(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func submissionResult(status int) string {
	switch {
	case status < 300:
		return "accepted"
	case status < 500:
		return "rejected"
	default:
		return "failed"
	}
}

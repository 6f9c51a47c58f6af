package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/kontext-processor/internal/config"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
	"github.com/kirillkom/kontext-processor/internal/observability/metrics"
)

const (
	maxRequestBodyBytes = 1 << 20
	maxInFlightRequests = 64
	saturationWait      = 100 * time.Millisecond
)

type Router struct {
	cfg       config.Config
	submitter ports.RequestSubmitter
	attempts  ports.AttemptReader
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	submitter ports.RequestSubmitter,
	attempts ports.AttemptReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		submitter: submitter,
		attempts:  attempts,
		metrics:   httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/process-requests", rt.submitRequest)
	mux.HandleFunc("/v1/attempts/", rt.getAttempts)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, maxInFlightRequests, saturationWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.recordSubmission(http.StatusRequestEntityTooLarge)
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		rt.recordSubmission(http.StatusBadRequest)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read request body"})
		return
	}

	req, err := rt.submitter.Submit(r.Context(), raw)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.recordSubmission(status)
		if status >= 500 {
			slog.Error("submit_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	rt.recordSubmission(http.StatusAccepted)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"eventId":     req.EventID,
		"contentId":   req.ContentID,
		"contentType": string(req.ContentType),
	})
}

func (rt *Router) getAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.attempts == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "attempt store is not configured"})
		return
	}

	eventID := strings.TrimPrefix(r.URL.Path, "/v1/attempts/")
	if eventID == "" || strings.Contains(eventID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event id is required"})
		return
	}

	count, err := rt.attempts.AttemptCount(r.Context(), eventID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventId": eventID, "attempts": count})
}

func (rt *Router) recordSubmission(status int) {
	if rt.metrics != nil {
		rt.metrics.RecordSubmission(submissionResult(status))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

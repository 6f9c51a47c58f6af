package bootstrap

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/kontext-processor/internal/config"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), config.Defaults(), "worker")
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestNewWiresLocalBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.ProcessQueueURL = "http://localhost:4566/000000000000/process"
	cfg.ProcessingQueueURL = "http://localhost:4566/000000000000/processing"
	cfg.S3BucketName = "results"
	cfg.StorageBackend = config.StorageLocalFS
	cfg.StoragePath = t.TempDir()
	cfg.AttemptStore = config.AttemptStoreMemory
	cfg.AWSEndpointURL = "http://localhost:4566"

	app, err := New(context.Background(), cfg, "worker")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	if app.Inbound == nil || app.Processor == nil || app.Consumer == nil || app.Submitter == nil {
		t.Fatalf("expected pipeline components to be wired: %+v", app)
	}
	if app.Attempts == nil {
		t.Fatalf("expected attempt reader for memory store")
	}
	if app.Metrics == nil {
		t.Fatalf("expected worker metrics")
	}
}

func TestResilienceConfigMapping(t *testing.T) {
	cfg := config.Defaults()
	cfg.ResilienceRetryMaxAttempts = 3
	cfg.ResilienceRetryInitialBackoffMS = 50
	cfg.ResilienceBreakerMinRequests = -1

	got := resilienceConfig(cfg)
	if got.RetryMaxAttempts != 3 || got.RetryInitialBackoff.Milliseconds() != 50 {
		t.Fatalf("unexpected retry mapping: %+v", got)
	}
	if got.BreakerMinRequests != 0 {
		t.Fatalf("negative min requests should map to zero, got %d", got.BreakerMinRequests)
	}
}

package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"

	lambdaadapter "github.com/kirillkom/kontext-processor/internal/adapters/lambda"
	"github.com/kirillkom/kontext-processor/internal/bootstrap"
	"github.com/kirillkom/kontext-processor/internal/config"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
	"github.com/kirillkom/kontext-processor/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.NewLogger("lambda", cfg.LogLevel, cfg.LogFormat))

	app, err := bootstrap.New(context.Background(), cfg, "lambda")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	handler := lambdaadapter.NewHandler(func(ack ports.Acknowledger) ports.EnvelopeProcessor {
		return app.Processor.WithAcknowledger(ack)
	}, app.Inbound)
	lambda.Start(handler.Handle)
}

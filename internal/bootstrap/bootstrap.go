package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/kontext-processor/internal/codec"
	"github.com/kirillkom/kontext-processor/internal/config"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
	"github.com/kirillkom/kontext-processor/internal/core/usecase"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/awsutil"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
	natsqueue "github.com/kirillkom/kontext-processor/internal/infrastructure/queue/nats"
	sqsqueue "github.com/kirillkom/kontext-processor/internal/infrastructure/queue/sqs"
	dynamorepo "github.com/kirillkom/kontext-processor/internal/infrastructure/repository/dynamodb"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/repository/memory"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/repository/postgres"
	redisrepo "github.com/kirillkom/kontext-processor/internal/infrastructure/repository/redis"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/resilience"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/storage/localfs"
	miniostorage "github.com/kirillkom/kontext-processor/internal/infrastructure/storage/minio"
	s3storage "github.com/kirillkom/kontext-processor/internal/infrastructure/storage/s3"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/transform"
	"github.com/kirillkom/kontext-processor/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Inbound   ports.InboundChannel
	Processor *usecase.ProcessMessageUseCase
	Consumer  *usecase.ConsumeUseCase
	Submitter ports.RequestSubmitter
	Attempts  ports.AttemptReader
	Metrics   *metrics.WorkerMetrics

	closeFns []func()
}

type transport struct {
	inbound  ports.InboundChannel
	outbound ports.OutboundChannel
	requests ports.OutboundChannel
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	app.Metrics = metrics.NewWorkerMetrics(service)
	executor := resilience.NewExecutor(resilienceConfig(cfg),
		resilience.WithStateObserver(func(operation string, _, to gobreaker.State) {
			app.Metrics.SetBreakerState(operation, int(to))
		}),
	)

	var awsConfig *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsConfig != nil {
			return *awsConfig, nil
		}
		loaded, err := awsutil.Load(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
		if err != nil {
			return aws.Config{}, err
		}
		awsConfig = &loaded
		return loaded, nil
	}

	msgCodec, err := codec.New()
	if err != nil {
		return nil, fmt.Errorf("init codec: %w", err)
	}

	tr, err := app.buildTransport(cfg, executor, loadAWS)
	if err != nil {
		return nil, fmt.Errorf("init transport: %w", err)
	}

	storage, err := buildStorage(ctx, cfg, executor, loadAWS)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	tracker, err := app.buildAttemptTracker(ctx, cfg, loadAWS)
	if err != nil {
		return nil, fmt.Errorf("init attempt store: %w", err)
	}

	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	reporter := usecase.NewOutcomeReporter(msgCodec, tr.outbound)

	opts := []usecase.ProcessorOption{usecase.WithMetrics(app.Metrics)}
	if tracker != nil {
		opts = append(opts, usecase.WithAttemptTracker(tracker))
		app.Attempts = tracker
	}

	app.Inbound = tr.inbound
	app.Processor = usecase.NewProcessMessageUseCase(
		usecase.ProcessorConfig{
			ResultBucket:      cfg.S3BucketName,
			ResultKeyPrefix:   cfg.ResultKeyPrefix,
			TransformTimeout:  cfg.TransformTimeout(),
			VisibilityTimeout: cfg.VisibilityTimeout(),
			HeartbeatInterval: cfg.HeartbeatInterval(),
			MaxWorkers:        cfg.MaxWorkers,
			IncludeStackTrace: cfg.IncludeStackTrace,
		},
		tr.inbound,
		msgCodec,
		storage,
		transform.NewRouter(splitter),
		reporter,
		opts...,
	)
	var consumeOpts []usecase.ConsumeOption
	if cfg.Transport != config.TransportNATS && cfg.SQSWaitTimeSeconds == 0 {
		consumeOpts = append(consumeOpts, usecase.WithIdleWait(time.Second))
	}
	app.Consumer = usecase.NewConsumeUseCase(tr.inbound, app.Processor, consumeOpts...)
	app.Submitter = usecase.NewSubmitRequestUseCase(msgCodec, tr.requests)

	ok = true
	return app, nil
}

func (a *App) buildTransport(
	cfg config.Config,
	executor *resilience.Executor,
	loadAWS func() (aws.Config, error),
) (transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		conn, js, err := natsqueue.Connect(cfg.NATSURL, natsqueue.Options{})
		if err != nil {
			return transport{}, err
		}
		a.closeFns = append(a.closeFns, conn.Close)

		subjects := []string{cfg.NATSRequestSubject, cfg.NATSOutcomeSubject}
		if err := natsqueue.EnsureStream(js, cfg.NATSStream, subjects); err != nil {
			return transport{}, err
		}
		queue, err := natsqueue.NewQueue(conn, js, cfg.NATSRequestSubject, natsqueue.Options{
			Stream:             cfg.NATSStream,
			Durable:            cfg.NATSDurable,
			AckWait:            cfg.VisibilityTimeout(),
			FetchBatch:         cfg.SQSMaxMessages,
			FetchWait:          time.Duration(cfg.SQSWaitTimeSeconds) * time.Second,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return transport{}, err
		}
		a.closeFns = append(a.closeFns, queue.Close)

		return transport{
			inbound:  queue,
			outbound: natsqueue.NewPublisher(js, cfg.NATSOutcomeSubject, executor),
			requests: natsqueue.NewPublisher(js, cfg.NATSRequestSubject, executor),
		}, nil
	default:
		awsCfg, err := loadAWS()
		if err != nil {
			return transport{}, err
		}
		client := awssqs.NewFromConfig(awsCfg)
		publisherOpts := sqsqueue.PublisherOptions{
			MessageGroupID:     cfg.MessageGroupID,
			ResilienceExecutor: executor,
		}
		return transport{
			inbound: sqsqueue.NewChannel(client, cfg.ProcessQueueURL, sqsqueue.Options{
				MaxMessages:        int32(cfg.SQSMaxMessages),
				WaitTime:           time.Duration(cfg.SQSWaitTimeSeconds) * time.Second,
				VisibilityTimeout:  cfg.VisibilityTimeout(),
				ResilienceExecutor: executor,
			}),
			outbound: sqsqueue.NewPublisher(client, cfg.ProcessingQueueURL, publisherOpts),
			requests: sqsqueue.NewPublisher(client, cfg.ProcessQueueURL, publisherOpts),
		}, nil
	}
}

func buildStorage(
	ctx context.Context,
	cfg config.Config,
	executor *resilience.Executor,
	loadAWS func() (aws.Config, error),
) (ports.StorageGateway, error) {
	switch cfg.StorageBackend {
	case config.StorageMinIO:
		storage, err := miniostorage.New(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL, executor)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureBucket(ctx, cfg.S3BucketName); err != nil {
			return nil, err
		}
		return storage, nil
	case config.StorageLocalFS:
		return localfs.New(cfg.StoragePath)
	default:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return s3storage.NewFromConfig(awsCfg, cfg.S3UsePathStyle, executor), nil
	}
}

func (a *App) buildAttemptTracker(
	ctx context.Context,
	cfg config.Config,
	loadAWS func() (aws.Config, error),
) (ports.AttemptTracker, error) {
	switch cfg.AttemptStore {
	case config.AttemptStoreMemory:
		return memory.NewAttemptRepository(), nil
	case config.AttemptStorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		repo := postgres.NewAttemptRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case config.AttemptStoreDynamoDB:
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return dynamorepo.NewAttemptRepository(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.AttemptTTL()), nil
	case config.AttemptStoreRedis:
		client, err := redisrepo.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		a.closeFns = append(a.closeFns, func() { _ = client.Close() })
		return redisrepo.NewAttemptRepository(client, cfg.AttemptTTL()), nil
	default:
		return nil, nil
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.ResilienceBreakerOpenTimeoutSecs) * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

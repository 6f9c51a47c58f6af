package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
)

const (
	deleteTimeout          = 10 * time.Second
	defaultRedeliveryDelay = 30 * time.Second
)

type ProcessorConfig struct {
	ResultBucket      string
	ResultKeyPrefix   string
	TransformTimeout  time.Duration
	VisibilityTimeout time.Duration
	HeartbeatInterval time.Duration
	MaxWorkers        int
	IncludeStackTrace bool
	// RedeliveryDelay is passed to transports implementing ports.Releaser
	// for envelopes that end in the retry disposition.
	RedeliveryDelay time.Duration
}

// ProcessMessageUseCase drives one envelope through
// decode -> fetch -> transform -> store -> report -> delete.
// Terminal failures are reported and deleted; transient failures leave the
// envelope for the transport to redeliver.
type ProcessMessageUseCase struct {
	cfg         ProcessorConfig
	ack         ports.Acknowledger
	codec       ports.MessageCodec
	storage     ports.StorageGateway
	transformer ports.Transformer
	reporter    ports.OutcomeReporter
	attempts    ports.AttemptTracker
	metrics     ports.ProcessingMetrics
	now         func() time.Time
}

type ProcessorOption func(*ProcessMessageUseCase)

func WithAttemptTracker(tracker ports.AttemptTracker) ProcessorOption {
	return func(uc *ProcessMessageUseCase) { uc.attempts = tracker }
}

func WithMetrics(metrics ports.ProcessingMetrics) ProcessorOption {
	return func(uc *ProcessMessageUseCase) {
		if metrics != nil {
			uc.metrics = metrics
		}
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(uc *ProcessMessageUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewProcessMessageUseCase(
	cfg ProcessorConfig,
	ack ports.Acknowledger,
	codec ports.MessageCodec,
	storage ports.StorageGateway,
	transformer ports.Transformer,
	reporter ports.OutcomeReporter,
	opts ...ProcessorOption,
) *ProcessMessageUseCase {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.RedeliveryDelay <= 0 {
		cfg.RedeliveryDelay = defaultRedeliveryDelay
	}
	uc := &ProcessMessageUseCase{
		cfg:         cfg,
		ack:         ack,
		codec:       codec,
		storage:     storage,
		transformer: transformer,
		reporter:    reporter,
		metrics:     noopMetrics{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// WithAcknowledger returns a copy that deletes and extends envelopes through ack.
func (uc *ProcessMessageUseCase) WithAcknowledger(ack ports.Acknowledger) *ProcessMessageUseCase {
	cp := *uc
	cp.ack = ack
	return &cp
}

// ProcessBatch processes envs concurrently, at most MaxWorkers at a time.
// Results are returned in input order; processing order is unspecified.
func (uc *ProcessMessageUseCase) ProcessBatch(ctx context.Context, envs []domain.Envelope) []ports.ProcessResult {
	results := make([]ports.ProcessResult, len(envs))
	var g errgroup.Group
	g.SetLimit(uc.cfg.MaxWorkers)
	for i, env := range envs {
		g.Go(func() error {
			results[i] = uc.Process(ctx, env)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (uc *ProcessMessageUseCase) Process(ctx context.Context, env domain.Envelope) ports.ProcessResult {
	start := uc.now()
	uc.metrics.StartMessage()

	hb := uc.startHeartbeat(ctx, env)
	defer hb.Stop()

	result := uc.run(ctx, env, start, hb)
	if result.Disposition == domain.DispositionRetry {
		hb.Stop()
		uc.release(ctx, env)
	}

	var code domain.ErrorCode
	if result.Outcome != nil && result.Outcome.Failure != nil {
		code = result.Outcome.Failure.ErrorCode
	} else if result.Err != nil {
		code = domain.Classify(result.Err).Code
	}
	duration := uc.now().Sub(start)
	uc.metrics.FinishMessage(result.Disposition, code, duration)

	attrs := []any{
		"message_id", env.MessageID,
		"disposition", string(result.Disposition),
		"stage", string(result.Stage),
		"duration_ms", float64(duration.Microseconds()) / 1000.0,
	}
	if result.Outcome != nil {
		attrs = append(attrs, "content_id", result.Outcome.ContentID)
	}
	switch result.Disposition {
	case domain.DispositionCompleted:
		slog.Info("message_processed", attrs...)
	case domain.DispositionFailed:
		slog.Error("terminal_failure", append(attrs, "error_code", string(code), "error", result.Err)...)
	default:
		slog.Warn("transient_failure", append(attrs, "error", result.Err)...)
	}
	return result
}

func (uc *ProcessMessageUseCase) run(ctx context.Context, env domain.Envelope, start time.Time, hb *heartbeat) ports.ProcessResult {
	req, err := uc.codec.Decode(env.Body)
	if err != nil {
		return uc.fail(ctx, env, hb, req, domain.StageDecoding, err, envelopeRetryCount(env))
	}
	retryCount := uc.retryCount(ctx, env, req)
	if !req.Timestamp.IsZero() {
		uc.metrics.ObserveQueueLag(start.Sub(req.Timestamp))
	}

	blob, err := uc.fetch(ctx, req)
	if err != nil {
		return uc.fail(ctx, env, hb, req, domain.StageFetching, err, retryCount)
	}

	chunks, err := uc.transform(ctx, req, blob)
	if err != nil {
		return uc.fail(ctx, env, hb, req, domain.StageTransforming, err, retryCount)
	}

	result, err := uc.store(ctx, req, chunks)
	if err != nil {
		return uc.fail(ctx, env, hb, req, domain.StageStoring, err, retryCount)
	}
	uc.metrics.ObserveChunks(len(chunks))

	outcome := domain.NewSuccessOutcome(req, len(chunks), uc.now().Sub(start), result)
	if err := uc.reporter.Publish(ctx, outcome); err != nil {
		return retryResult(env, domain.StageReporting, err)
	}
	return uc.complete(ctx, env, hb, domain.DispositionCompleted, &outcome, nil)
}

func (uc *ProcessMessageUseCase) fetch(ctx context.Context, req domain.ProcessRequest) ([]byte, error) {
	blob, err := uc.storage.Fetch(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Source, err)
	}
	return blob, nil
}

type transformResult struct {
	chunks []domain.DocumentChunk
	err    error
}

// transform runs the transformer bounded by TransformTimeout. Exceeding the
// timeout is terminal for the attempt and nothing is stored.
func (uc *ProcessMessageUseCase) transform(ctx context.Context, req domain.ProcessRequest, blob []byte) ([]domain.DocumentChunk, error) {
	timeout := uc.cfg.TransformTimeout
	var tctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		tctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	started := uc.now()
	done := make(chan transformResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- transformResult{err: domain.NewTransformationError(
					domain.SubCodeInternalError,
					&panicError{value: r, stack: debug.Stack()},
				)}
			}
		}()
		chunks, err := uc.transformer.Transform(tctx, blob, req.Metadata())
		done <- transformResult{chunks: chunks, err: err}
	}()

	var res transformResult
	select {
	case res = <-done:
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, timeoutError(timeout)
	}

	if res.err != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(timeout)
		}
		if domain.IsKind(res.err, domain.ErrTransformation) {
			return nil, res.err
		}
		return nil, domain.NewTransformationError(domain.SubCodeInternalError, res.err)
	}
	if timeout > 0 && uc.now().Sub(started) > timeout {
		return nil, timeoutError(timeout)
	}
	if len(res.chunks) == 0 {
		return nil, domain.NewTransformationError(domain.SubCodeEmptyDocument, errors.New("transformation produced zero chunks"))
	}
	return res.chunks, nil
}

func (uc *ProcessMessageUseCase) store(ctx context.Context, req domain.ProcessRequest, chunks []domain.DocumentChunk) (domain.ObjectLocation, error) {
	payload, err := uc.codec.EncodeChunks(req, chunks)
	if err != nil {
		return domain.ObjectLocation{}, domain.NewTransformationError(domain.SubCodeInternalError, err)
	}
	loc := domain.ObjectLocation{
		Bucket: uc.cfg.ResultBucket,
		Key:    domain.ResultKey(uc.cfg.ResultKeyPrefix, req.ContentID),
	}
	if err := uc.storage.Store(ctx, loc, payload, domain.ChunkSetContentType); err != nil {
		return domain.ObjectLocation{}, fmt.Errorf("store %s: %w", loc, err)
	}
	return loc, nil
}

// fail reports terminal errors and deletes the envelope. Transient errors,
// and terminal ones whose report could not be published, are left for redelivery.
func (uc *ProcessMessageUseCase) fail(
	ctx context.Context,
	env domain.Envelope,
	hb *heartbeat,
	req domain.ProcessRequest,
	stage domain.Stage,
	cause error,
	retryCount int,
) ports.ProcessResult {
	class := domain.Classify(cause)
	if !class.Terminal {
		return retryResult(env, stage, cause)
	}

	outcome := domain.NewFailureOutcome(req, class, cause.Error(), retryCount, stage, uc.trace(cause))
	if err := uc.reporter.Publish(ctx, outcome); err != nil {
		return retryResult(env, domain.StageReporting, fmt.Errorf("report %s failure: %w", class.Code, err))
	}
	result := uc.complete(ctx, env, hb, domain.DispositionFailed, &outcome, cause)
	result.Stage = stage
	return result
}

func (uc *ProcessMessageUseCase) complete(
	ctx context.Context,
	env domain.Envelope,
	hb *heartbeat,
	disposition domain.Disposition,
	outcome *domain.Outcome,
	cause error,
) ports.ProcessResult {
	hb.Stop()

	// The outcome is already published; finish the delete even during shutdown.
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if uc.ack != nil {
		if err := uc.ack.Delete(deleteCtx, env); err != nil {
			slog.Warn("envelope_delete_failed",
				"message_id", env.MessageID,
				"content_id", outcome.ContentID,
				"error", err,
			)
		}
	}
	return ports.ProcessResult{
		Envelope:    env,
		Disposition: disposition,
		Stage:       domain.StageComplete,
		Outcome:     outcome,
		Err:         cause,
	}
}

func (uc *ProcessMessageUseCase) retryCount(ctx context.Context, env domain.Envelope, req domain.ProcessRequest) int {
	if env.ReceiveCount > 0 {
		return env.ReceiveCount - 1
	}
	if uc.attempts == nil || req.EventID == "" {
		return 0
	}
	attempt, err := uc.attempts.IncrementAttempt(ctx, req.EventID)
	if err != nil {
		slog.Warn("attempt_increment_failed", "event_id", req.EventID, "error", err)
		return 0
	}
	if attempt < 1 {
		return 0
	}
	return attempt - 1
}

func (uc *ProcessMessageUseCase) trace(err error) string {
	if !uc.cfg.IncludeStackTrace || err == nil {
		return ""
	}
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %v", e, e))
	}
	var pe *panicError
	if errors.As(err, &pe) {
		lines = append(lines, string(pe.stack))
	}
	return strings.Join(lines, "\n")
}

func (uc *ProcessMessageUseCase) release(ctx context.Context, env domain.Envelope) {
	releaser, ok := uc.ack.(ports.Releaser)
	if !ok {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if err := releaser.Release(releaseCtx, env, uc.cfg.RedeliveryDelay); err != nil {
		slog.Warn("envelope_release_failed", "message_id", env.MessageID, "error", err)
	}
}

func envelopeRetryCount(env domain.Envelope) int {
	if env.ReceiveCount > 1 {
		return env.ReceiveCount - 1
	}
	return 0
}

func retryResult(env domain.Envelope, stage domain.Stage, err error) ports.ProcessResult {
	return ports.ProcessResult{
		Envelope:    env,
		Disposition: domain.DispositionRetry,
		Stage:       stage,
		Err:         err,
	}
}

func timeoutError(timeout time.Duration) error {
	return domain.WrapError(domain.ErrTransformationTimeout, "transform", fmt.Errorf("exceeded %s", timeout))
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("transformer panic: %v", e.value)
}

type heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// startHeartbeat extends the envelope's visibility every HeartbeatInterval
// until stopped, so long transformations are not redelivered mid-flight.
func (uc *ProcessMessageUseCase) startHeartbeat(ctx context.Context, env domain.Envelope) *heartbeat {
	hb := &heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	interval := uc.cfg.HeartbeatInterval
	if uc.ack == nil || interval <= 0 || uc.cfg.VisibilityTimeout <= 0 || env.ReceiptHandle == "" {
		close(hb.done)
		return hb
	}

	go func() {
		defer close(hb.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.stop:
				return
			case <-ticker.C:
				if err := uc.ack.ExtendVisibility(ctx, env, uc.cfg.VisibilityTimeout); err != nil {
					slog.Warn("visibility_extend_failed", "message_id", env.MessageID, "error", err)
				}
			}
		}
	}()
	return hb
}

func (hb *heartbeat) Stop() {
	hb.once.Do(func() { close(hb.stop) })
	<-hb.done
}

type noopMetrics struct{}

func (noopMetrics) StartMessage() {}
func (noopMetrics) FinishMessage(domain.Disposition, domain.ErrorCode, time.Duration) {}
func (noopMetrics) ObserveChunks(int) {}
func (noopMetrics) ObserveQueueLag(time.Duration) {}

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/resilience"
)

// Queue is a JetStream-backed inbound channel. Fetched messages stay pending
// until Delete acks them; unacked messages are redelivered after AckWait.
type Queue struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	sub      *nats.Subscription
	subject  string
	executor *resilience.Executor

	batch     int
	fetchWait time.Duration

	mu      sync.Mutex
	pending map[string]*nats.Msg
}

type Options struct {
	Stream   string
	Subjects []string
	Durable  string
	AckWait  time.Duration

	FetchBatch int
	FetchWait  time.Duration

	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

// Connect dials NATS with reconnect handling and returns a JetStream context.
func Connect(url string, options Options) (*nats.Conn, nats.JetStreamContext, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("kontext-processor"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	return conn, js, nil
}

// EnsureStream creates the stream when it does not exist yet.
func EnsureStream(js nats.JetStreamContext, name string, subjects []string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	}); err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	return nil
}

func NewQueue(conn *nats.Conn, js nats.JetStreamContext, subject string, options Options) (*Queue, error) {
	durable := options.Durable
	if durable == "" {
		durable = "kontext-processor"
	}
	ackWait := options.AckWait
	if ackWait <= 0 {
		ackWait = 5 * time.Minute
	}
	batch := options.FetchBatch
	if batch <= 0 {
		batch = 10
	}
	fetchWait := options.FetchWait
	if fetchWait <= 0 {
		fetchWait = 5 * time.Second
	}

	subOpts := []nats.SubOpt{nats.AckExplicit(), nats.AckWait(ackWait)}
	if options.Stream != "" {
		subOpts = append(subOpts, nats.BindStream(options.Stream))
	}
	sub, err := js.PullSubscribe(subject, durable, subOpts...)
	if err != nil {
		return nil, fmt.Errorf("nats pull subscribe: %w", err)
	}
	return &Queue{
		conn:      conn,
		js:        js,
		sub:       sub,
		subject:   subject,
		executor:  options.ResilienceExecutor,
		batch:     batch,
		fetchWait: fetchWait,
		pending:   make(map[string]*nats.Msg),
	}, nil
}

func (q *Queue) Close() {
	if q.sub != nil {
		if err := q.sub.Drain(); err != nil {
			slog.Warn("nats_drain_failed", "error", err)
		}
	}
	if q.conn != nil {
		if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
			slog.Warn("nats_flush_failed", "error", err)
		}
		q.conn.Close()
	}
}

func (q *Queue) Receive(ctx context.Context) ([]domain.Envelope, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, q.fetchWait)
	defer cancel()

	msgs, err := q.sub.Fetch(q.batch, nats.Context(fetchCtx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, wrapTemporaryIfNeeded("nats fetch", err)
	}

	envs := make([]domain.Envelope, 0, len(msgs))
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, msg := range msgs {
		meta, err := msg.Metadata()
		if err != nil {
			slog.Warn("nats_message_without_metadata", "subject", msg.Subject, "error", err)
			continue
		}
		env := envelopeFromMsg(msg, meta)
		q.pending[env.ReceiptHandle] = msg
		envs = append(envs, env)
	}
	return envs, nil
}

func (q *Queue) Delete(ctx context.Context, env domain.Envelope) error {
	msg, err := q.take(env.ReceiptHandle)
	if err != nil {
		return err
	}
	if err := msg.AckSync(nats.Context(ctx)); err != nil {
		return wrapTemporaryIfNeeded("nats ack", err)
	}
	return nil
}

// Release naks the message so JetStream redelivers it after delay and
// forgets the receipt locally, even when the nak itself fails.
func (q *Queue) Release(ctx context.Context, env domain.Envelope, delay time.Duration) error {
	msg, err := q.take(env.ReceiptHandle)
	if err != nil {
		return err
	}
	if err := msg.NakWithDelay(delay, nats.Context(ctx)); err != nil {
		return wrapTemporaryIfNeeded("nats nak", err)
	}
	return nil
}

func (q *Queue) ExtendVisibility(ctx context.Context, env domain.Envelope, _ time.Duration) error {
	q.mu.Lock()
	msg, ok := q.pending[env.ReceiptHandle]
	q.mu.Unlock()
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "nats in progress", fmt.Errorf("unknown receipt %s", env.ReceiptHandle))
	}
	if err := msg.InProgress(nats.Context(ctx)); err != nil {
		return wrapTemporaryIfNeeded("nats in progress", err)
	}
	return nil
}

func (q *Queue) take(receipt string) (*nats.Msg, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.pending[receipt]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "nats ack", fmt.Errorf("unknown receipt %s", receipt))
	}
	delete(q.pending, receipt)
	return msg, nil
}

func envelopeFromMsg(msg *nats.Msg, meta *nats.MsgMetadata) domain.Envelope {
	receipt := strconv.FormatUint(meta.Sequence.Stream, 10)
	id := receipt
	if msg.Header != nil {
		if hdr := msg.Header.Get(nats.MsgIdHdr); hdr != "" {
			id = hdr
		}
	}
	return domain.Envelope{
		MessageID:     id,
		ReceiptHandle: receipt,
		Body:          msg.Data,
		ReceiveCount:  int(meta.NumDelivered),
	}
}

// Publisher publishes payloads to a JetStream subject and waits for the stream ack.
type Publisher struct {
	js       nats.JetStreamContext
	subject  string
	executor *resilience.Executor
}

func NewPublisher(js nats.JetStreamContext, subject string, executor *resilience.Executor) *Publisher {
	return &Publisher{js: js, subject: subject, executor: executor}
}

func (p *Publisher) Send(ctx context.Context, payload []byte) error {
	call := func(ctx context.Context) error {
		if _, err := p.js.Publish(p.subject, payload, nats.Context(ctx)); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	err := p.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	if err != nil {
		return domain.WrapError(domain.ErrPublishUnavailable, "nats publish", err)
	}
	return nil
}

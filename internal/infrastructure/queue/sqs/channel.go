package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/resilience"
)

// API is the subset of the SQS client used by Channel and Publisher.
type API interface {
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

type Options struct {
	MaxMessages        int32
	WaitTime           time.Duration
	VisibilityTimeout  time.Duration
	ResilienceExecutor *resilience.Executor
}

// Channel is the inbound SQS queue. Envelopes stay invisible for
// VisibilityTimeout after Receive and reappear unless deleted.
type Channel struct {
	client   API
	queueURL string
	opts     Options
}

func NewChannel(client API, queueURL string, options Options) *Channel {
	if options.MaxMessages <= 0 || options.MaxMessages > 10 {
		options.MaxMessages = 10
	}
	if options.WaitTime < 0 || options.WaitTime > 20*time.Second {
		options.WaitTime = 20 * time.Second
	}
	return &Channel{client: client, queueURL: queueURL, opts: options}
}

func (c *Channel) Receive(ctx context.Context) ([]domain.Envelope, error) {
	input := &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.opts.MaxMessages,
		WaitTimeSeconds:     int32(c.opts.WaitTime / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}
	if c.opts.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(c.opts.VisibilityTimeout / time.Second)
	}

	out, err := resilience.Call(ctx, c.opts.ResilienceExecutor, "sqs.receive",
		func(ctx context.Context) (*awssqs.ReceiveMessageOutput, error) {
			out, err := c.client.ReceiveMessage(ctx, input)
			if err != nil {
				return nil, wrapTransportError(domain.ErrTemporary, "sqs receive", err)
			}
			return out, nil
		}, resilience.ClassifyDomainError)
	if err != nil {
		return nil, err
	}

	envs := make([]domain.Envelope, 0, len(out.Messages))
	for _, msg := range out.Messages {
		envs = append(envs, EnvelopeFromMessage(msg))
	}
	return envs, nil
}

func (c *Channel) Delete(ctx context.Context, env domain.Envelope) error {
	_, err := c.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(env.ReceiptHandle),
	})
	if err != nil {
		return wrapTransportError(domain.ErrTemporary, "sqs delete", err)
	}
	return nil
}

func (c *Channel) ExtendVisibility(ctx context.Context, env domain.Envelope, timeout time.Duration) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(env.ReceiptHandle),
		VisibilityTimeout: int32(timeout / time.Second),
	})
	if err != nil {
		return wrapTransportError(domain.ErrTemporary, "sqs change visibility", err)
	}
	return nil
}

// EnvelopeFromMessage converts an SQS message, carrying over ApproximateReceiveCount when present.
func EnvelopeFromMessage(msg types.Message) domain.Envelope {
	env := domain.Envelope{
		MessageID:     aws.ToString(msg.MessageId),
		ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		Body:          []byte(aws.ToString(msg.Body)),
	}
	if raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			env.ReceiveCount = n
		}
	}
	return env
}

// Publisher sends payloads to an SQS queue. It serves both the outcome queue
// and request submission to the inbound queue.
type Publisher struct {
	client         API
	queueURL       string
	messageGroupID string
	executor       *resilience.Executor
}

type PublisherOptions struct {
	// MessageGroupID is required for FIFO queues and ignored otherwise.
	MessageGroupID     string
	ResilienceExecutor *resilience.Executor
}

func NewPublisher(client API, queueURL string, options PublisherOptions) *Publisher {
	return &Publisher{
		client:         client,
		queueURL:       queueURL,
		messageGroupID: options.MessageGroupID,
		executor:       options.ResilienceExecutor,
	}
}

func (p *Publisher) Send(ctx context.Context, payload []byte) error {
	input := &awssqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(payload)),
	}
	if p.messageGroupID != "" {
		input.MessageGroupId = aws.String(p.messageGroupID)
	}
	return p.executor.Execute(ctx, "sqs.send", func(ctx context.Context) error {
		if _, err := p.client.SendMessage(ctx, input); err != nil {
			return wrapTransportError(domain.ErrPublishUnavailable, "sqs send", err)
		}
		return nil
	}, resilience.ClassifyDomainError)
}

func wrapTransportError(kind error, op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return domain.WrapError(kind, op, fmt.Errorf("%s: %w", apiErr.ErrorCode(), err))
	}
	return domain.WrapError(kind, op, err)
}

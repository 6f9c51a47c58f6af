// Package codec converts between wire payloads and domain values for the
// content processing queues. Apart from the injected clock and id source
// every function is pure.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

// requestNamespace seeds deterministic ids for requests that arrive without eventId.
var requestNamespace = uuid.MustParse("6f1c2a8e-3b7d-5e49-9a0c-4d2e8f61b7a3")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	time.RFC1123Z,
	time.RFC1123,
}

type Codec struct {
	now    func() time.Time
	newID  func() string
	schema *jsonschema.Schema
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Codec) {
		if newID != nil {
			c.newID = newID
		}
	}
}

func New(opts ...Option) (*Codec, error) {
	schema, err := compileRequestSchema()
	if err != nil {
		return nil, err
	}
	c := &Codec{
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		schema: schema,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type requestWire struct {
	EventID     string `json:"eventId"`
	EventType   string `json:"eventType"`
	Timestamp   string `json:"timestamp"`
	ContentID   string `json:"contentId"`
	ContentType string `json:"contentType"`
	FileName    string `json:"fileName"`
	S3Key       string `json:"s3Key"`
	S3Bucket    string `json:"s3Bucket"`
	MimeType    string `json:"mimeType"`
	FileSize    int64  `json:"fileSize"`
	ProjectID   string `json:"projectId"`
	UserID      string `json:"userId"`
}

type successWire struct {
	EventID          string `json:"eventId"`
	EventType        string `json:"eventType"`
	Timestamp        string `json:"timestamp"`
	ContentID        string `json:"contentId"`
	ContentType      string `json:"contentType"`
	Message          string `json:"message"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	ChunkCount       int    `json:"chunkCount"`
	S3BucketName     string `json:"s3BucketName"`
	S3Key            string `json:"s3Key"`
}

type failureWire struct {
	EventID      string `json:"eventId"`
	EventType    string `json:"eventType"`
	Timestamp    string `json:"timestamp"`
	ContentID    string `json:"contentId"`
	ContentType  string `json:"contentType"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
	ErrorSubCode string `json:"errorSubCode,omitempty"`
	StackTrace   string `json:"stackTrace,omitempty"`
	RetryCount   int    `json:"retryCount"`
	FailedStep   string `json:"failedStep"`
}

// Decode validates raw and returns the typed request. On failure the error
// matches domain.ErrDecode and the returned request holds whatever
// identifying fields could be recovered, for the failure report.
func (c *Codec) Decode(raw []byte) (domain.ProcessRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return partialRequest(nil), domain.WrapError(domain.ErrDecode, "decode request", fmt.Errorf("malformed json: %w", err))
	}
	fields, _ := doc.(map[string]any)

	if err := c.schema.Validate(doc); err != nil {
		return partialRequest(fields), domain.WrapError(domain.ErrDecode, "validate request", describeValidation(err))
	}

	var wire requestWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return partialRequest(fields), domain.WrapError(domain.ErrDecode, "decode request", err)
	}

	ts, err := parseTimestamp(wire.Timestamp)
	if err != nil {
		slog.Warn("request_timestamp_unparsed", "content_id", wire.ContentID, "timestamp", wire.Timestamp, "error", err)
	}

	eventID := strings.TrimSpace(wire.EventID)
	if eventID == "" {
		eventID = uuid.NewSHA1(requestNamespace, raw).String()
	}

	return domain.ProcessRequest{
		EventID:     eventID,
		ContentID:   wire.ContentID,
		ContentType: domain.ContentType(wire.ContentType),
		FileName:    wire.FileName,
		Source:      domain.ObjectLocation{Bucket: wire.S3Bucket, Key: wire.S3Key},
		MimeType:    wire.MimeType,
		FileSize:    wire.FileSize,
		ProjectID:   wire.ProjectID,
		UserID:      wire.UserID,
		Timestamp:   ts,
	}, nil
}

// EncodeRequest serializes req as a content.process.request payload.
func (c *Codec) EncodeRequest(req domain.ProcessRequest) ([]byte, error) {
	eventID := req.EventID
	if eventID == "" {
		eventID = c.newID()
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	return json.Marshal(requestWire{
		EventID:     eventID,
		EventType:   domain.EventTypeProcessRequest,
		Timestamp:   formatTimestamp(ts),
		ContentID:   req.ContentID,
		ContentType: string(req.ContentType),
		FileName:    req.FileName,
		S3Key:       req.Source.Key,
		S3Bucket:    req.Source.Bucket,
		MimeType:    req.MimeType,
		FileSize:    req.FileSize,
		ProjectID:   req.ProjectID,
		UserID:      req.UserID,
	})
}

// EncodeSuccess builds and serializes a success outcome for req.
func (c *Codec) EncodeSuccess(req domain.ProcessRequest, chunkCount int, processingTime time.Duration, result domain.ObjectLocation) ([]byte, error) {
	return c.EncodeOutcome(domain.NewSuccessOutcome(req, chunkCount, processingTime, result))
}

// EncodeFailure builds and serializes a failure outcome for req.
func (c *Codec) EncodeFailure(req domain.ProcessRequest, class domain.Classification, message string, retryCount int, step domain.Stage, trace string) ([]byte, error) {
	return c.EncodeOutcome(domain.NewFailureOutcome(req, class, message, retryCount, step, trace))
}

// EncodeOutcome serializes either variant of outcome. A fresh eventId and the
// current time are assigned when the outcome carries none.
func (c *Codec) EncodeOutcome(outcome domain.Outcome) ([]byte, error) {
	eventID := outcome.EventID
	if eventID == "" {
		eventID = c.newID()
	}
	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	contentType := string(outcome.ContentType)
	if contentType == "" {
		contentType = string(domain.ContentTypeDocument)
	}

	switch outcome.Kind {
	case domain.OutcomeSuccess:
		if outcome.Success == nil {
			return nil, errors.New("encode outcome: success variant without details")
		}
		s := outcome.Success
		return json.Marshal(successWire{
			EventID:          eventID,
			EventType:        domain.EventTypeProcessSuccess,
			Timestamp:        formatTimestamp(ts),
			ContentID:        outcome.ContentID,
			ContentType:      contentType,
			Message:          s.Message,
			ProcessingTimeMs: s.ProcessingTimeMs,
			ChunkCount:       s.ChunkCount,
			S3BucketName:     s.Result.Bucket,
			S3Key:            s.Result.Key,
		})
	case domain.OutcomeFailure:
		if outcome.Failure == nil {
			return nil, errors.New("encode outcome: failure variant without details")
		}
		f := outcome.Failure
		return json.Marshal(failureWire{
			EventID:      eventID,
			EventType:    domain.EventTypeProcessFailed,
			Timestamp:    formatTimestamp(ts),
			ContentID:    outcome.ContentID,
			ContentType:  contentType,
			ErrorMessage: f.ErrorMessage,
			ErrorCode:    string(f.ErrorCode),
			ErrorSubCode: f.ErrorSubCode,
			StackTrace:   f.StackTrace,
			RetryCount:   f.RetryCount,
			FailedStep:   string(f.FailedStep),
		})
	default:
		return nil, fmt.Errorf("encode outcome: unknown kind %q", outcome.Kind)
	}
}

func partialRequest(fields map[string]any) domain.ProcessRequest {
	req := domain.ProcessRequest{
		ContentID:   "unknown",
		ContentType: domain.ContentTypeDocument,
	}
	if fields == nil {
		return req
	}
	if v, ok := fields["eventId"].(string); ok {
		req.EventID = v
	}
	if v, ok := fields["contentId"].(string); ok && strings.TrimSpace(v) != "" {
		req.ContentID = v
	}
	if v, ok := fields["contentType"].(string); ok {
		for _, known := range domain.KnownContentTypes() {
			if v == string(known) {
				req.ContentType = known
			}
		}
	}
	return req
}

func describeValidation(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	leaves := collectLeaves(ve, nil)
	if len(leaves) == 0 {
		return err
	}
	return errors.New(strings.Join(leaves, "; "))
}

func collectLeaves(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, loc+": "+ve.Message)
	}
	for _, cause := range ve.Causes {
		out = collectLeaves(cause, out)
	}
	return out
}

// parseTimestamp returns the zero time for an empty value. Decode keeps the
// zero time on error as well.
func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

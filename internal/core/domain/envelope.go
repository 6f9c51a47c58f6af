package domain

// Stage names a step of the per-envelope pipeline. Failure outcomes report it as failedStep.
type Stage string

const (
	StageReceived     Stage = "received"
	StageDecoding     Stage = "decode"
	StageFetching     Stage = "fetch"
	StageTransforming Stage = "transformation"
	StageStoring      Stage = "store"
	StageReporting    Stage = "report"
	StageComplete     Stage = "complete"
)

// Envelope is an inbound transport message. ReceiptHandle is valid until the
// envelope is deleted or its visibility window expires.
type Envelope struct {
	MessageID     string
	ReceiptHandle string
	Body          []byte
	// ReceiveCount is the transport's delivery counter, zero when the transport has none.
	ReceiveCount int
}

// Disposition is what the processor did with an envelope.
type Disposition string

const (
	// DispositionCompleted: success reported and envelope deleted.
	DispositionCompleted Disposition = "completed"
	// DispositionFailed: failure reported and envelope deleted.
	DispositionFailed Disposition = "failed"
	// DispositionRetry: envelope left on the channel for redelivery.
	DispositionRetry Disposition = "retry"
)

package domain

import "time"

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is a tagged union: exactly one of Success or Failure is set,
// matching Kind. EventID and Timestamp are assigned by the codec when empty.
type Outcome struct {
	Kind        OutcomeKind
	EventID     string
	Timestamp   time.Time
	ContentID   string
	ContentType ContentType

	Success *SuccessDetails
	Failure *FailureDetails
}

type SuccessDetails struct {
	Message          string
	ProcessingTimeMs int64
	ChunkCount       int
	Result           ObjectLocation
}

type FailureDetails struct {
	ErrorMessage string
	ErrorCode    ErrorCode
	ErrorSubCode string
	StackTrace   string
	RetryCount   int
	FailedStep   Stage
}

func NewSuccessOutcome(req ProcessRequest, chunkCount int, processingTime time.Duration, result ObjectLocation) Outcome {
	return Outcome{
		Kind:        OutcomeSuccess,
		ContentID:   req.ContentID,
		ContentType: req.ContentType,
		Success: &SuccessDetails{
			Message:          "Document processed successfully",
			ProcessingTimeMs: processingTime.Milliseconds(),
			ChunkCount:       chunkCount,
			Result:           result,
		},
	}
}

func NewFailureOutcome(req ProcessRequest, class Classification, message string, retryCount int, step Stage, trace string) Outcome {
	return Outcome{
		Kind:        OutcomeFailure,
		ContentID:   req.ContentID,
		ContentType: req.ContentType,
		Failure: &FailureDetails{
			ErrorMessage: message,
			ErrorCode:    class.Code,
			ErrorSubCode: class.SubCode,
			StackTrace:   trace,
			RetryCount:   retryCount,
			FailedStep:   step,
		},
	}
}

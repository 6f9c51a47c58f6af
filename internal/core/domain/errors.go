package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
	ErrNotFound     = errors.New("not found")

	ErrDecode                = errors.New("decode error")
	ErrSourceNotFound        = errors.New("source object not found")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrStorageQuotaExceeded  = errors.New("storage quota exceeded")
	ErrTransformation        = errors.New("transformation error")
	ErrTransformationTimeout = errors.New("transformation timeout")
	ErrPublishUnavailable    = errors.New("publish unavailable")
)

// ErrorCode is the closed failure taxonomy reported on the outbound channel.
type ErrorCode string

const (
	CodeDecodeError           ErrorCode = "DECODE_ERROR"
	CodeSourceNotFound        ErrorCode = "SOURCE_NOT_FOUND"
	CodeStorageUnavailable    ErrorCode = "STORAGE_UNAVAILABLE"
	CodeStorageQuotaExceeded  ErrorCode = "STORAGE_QUOTA_EXCEEDED"
	CodeTransformationError   ErrorCode = "TRANSFORMATION_ERROR"
	CodeTransformationTimeout ErrorCode = "TRANSFORMATION_TIMEOUT"
	CodePublishUnavailable    ErrorCode = "PUBLISH_UNAVAILABLE"
)

// Transformation sub-codes.
const (
	SubCodeCorruptedInput    = "CORRUPTED_INPUT"
	SubCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	SubCodeInternalTimeout   = "INTERNAL_TIMEOUT"
	SubCodeEmptyDocument     = "EMPTY_DOCUMENT"
	SubCodeInternalError     = "INTERNAL_ERROR"
)

// TransformationError is returned by transformers. It always matches ErrTransformation.
type TransformationError struct {
	SubCode string
	Err     error
}

func NewTransformationError(subCode string, err error) *TransformationError {
	return &TransformationError{SubCode: subCode, Err: err}
}

func (e *TransformationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transformation error (%s)", e.SubCode)
	}
	return fmt.Sprintf("transformation error (%s): %v", e.SubCode, e.Err)
}

func (e *TransformationError) Unwrap() error { return e.Err }

func (e *TransformationError) Is(target error) bool { return target == ErrTransformation }

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Classification is the pipeline view of an error.
type Classification struct {
	Code     ErrorCode
	SubCode  string
	Terminal bool
}

// Classify maps err onto the failure taxonomy. Errors that match no kind are
// reported as non-terminal so the transport redelivers them.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return Classification{}
	case IsKind(err, ErrDecode):
		return Classification{Code: CodeDecodeError, Terminal: true}
	case IsKind(err, ErrSourceNotFound):
		return Classification{Code: CodeSourceNotFound, Terminal: true}
	case IsKind(err, ErrStorageQuotaExceeded):
		return Classification{Code: CodeStorageQuotaExceeded, Terminal: true}
	case IsKind(err, ErrTransformationTimeout):
		return Classification{Code: CodeTransformationTimeout, Terminal: true}
	case IsKind(err, ErrTransformation):
		subCode := SubCodeInternalError
		var te *TransformationError
		if errors.As(err, &te) && te.SubCode != "" {
			subCode = te.SubCode
		}
		return Classification{Code: CodeTransformationError, SubCode: subCode, Terminal: true}
	case IsKind(err, ErrStorageUnavailable):
		return Classification{Code: CodeStorageUnavailable}
	case IsKind(err, ErrPublishUnavailable):
		return Classification{Code: CodePublishUnavailable}
	default:
		return Classification{}
	}
}

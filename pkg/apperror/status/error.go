package status

import "errors"

// ErrorCode is a numeric code to classify API errors in a stable way
type ErrorCode int

// Reserved ranges by domain:
//   0-99:      Index (client)
//   100-199:   Upload (client)
//   200-299:   Retriever (client)
//   400-499:   lookups that found nothing
//   1000-1999: internal, by domain

const (
	BadRequestBase    ErrorCode = 0
	NotFoundBase      ErrorCode = 400
	InternalErrorBase ErrorCode = 1000
)

// Index client/validation errors
const (
	IndexInvalidParams ErrorCode = BadRequestBase + iota // 0
	IndexInvalidKind                                     // 1
	IndexBusy                                            // 2
)

// Upload client/validation errors
const (
	UploadMissingFile ErrorCode = BadRequestBase + 100 + iota // 100
	UploadInvalidFile                                         // 101
)

// Retriever client/validation errors
const (
	RetrieverMissingQuery  ErrorCode = BadRequestBase + 200 + iota // 200
	RetrieverInvalidParams                                         // 201
)

// Lookups
const (
	BookNotFound    ErrorCode = NotFoundBase + iota // 400
	VersionNotFound                                 // 401
	ContentNotFound                                 // 402
	NoVersion                                       // 403
)

// Internal errors
const (
	IndexInternal     ErrorCode = InternalErrorBase + iota // 1000
	IndexAlignment                                         // 1001
	UploadInternal    ErrorCode = InternalErrorBase + 100  // 1100
	RetrieverInternal ErrorCode = InternalErrorBase + 200  // 1200
)

// Deprecated: prefer domain-specific internal codes above
const (
	ErrorCodeInternal ErrorCode = 9000
)

// CodedError represents an error with an associated ErrorCode
type CodedError interface {
	error
	ErrorCode() ErrorCode
}

type codedError struct {
	code ErrorCode
	err  error
}

func (e codedError) Error() string        { return e.err.Error() }
func (e codedError) Unwrap() error        { return e.err }
func (e codedError) ErrorCode() ErrorCode { return e.code }

// New creates a new CodedError with the given code and underlying error
func New(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	return codedError{code: code, err: err}
}

// Code returns the code of the first CodedError in err's chain.
func Code(err error) (ErrorCode, bool) {
	var ce CodedError
	if errors.As(err, &ce) {
		return ce.ErrorCode(), true
	}
	return 0, false
}

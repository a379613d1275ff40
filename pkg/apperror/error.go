package apperror

import "book-indexer/pkg/apperror/status"

// ErrorResponse is the standardized HTTP error payload
type ErrorResponse struct {
	Error      string `json:"error"`
	ErrorCode  string `json:"error_code"`
	TrackingID string `json:"tracking_id,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// CodeOf returns the code carried by err, or fallback when it has none.
func CodeOf(err error, fallback status.ErrorCode) status.ErrorCode {
	if code, ok := status.Code(err); ok {
		return code
	}
	return fallback
}

package errors

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpInvalidParamsError  = "invalid_params"
	HttpNotFoundError       = "not_found"
	HttpSessionEndedError   = "session_ended"
	HttpUpstreamError       = "upstream_error"
	HttpUnavailableError    = "upstream_unavailable"
	HttpStreamDisabledError = "stream_disabled"
)

// ErrorResponse is the error response body of every gateway endpoint.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

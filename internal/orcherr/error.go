// Package orcherr defines the tagged error taxonomy shared by every
// component in orchestra: providers, the retry engine, workers, and the
// router all classify failures into one of these codes instead of
// propagating raw errors.
package orcherr

import "fmt"

// Code is a classified failure reason.
type Code string

const (
	AuthenticationError    Code = "authentication_error"
	RateLimitError         Code = "rate_limit_error"
	InvalidRequest         Code = "invalid_request"
	ServiceUnavailable     Code = "service_unavailable"
	NetworkError           Code = "network_error"
	ConfigurationError     Code = "configuration_error"
	ModelNotFound          Code = "model_not_found"
	ServerUnreachable      Code = "server_unreachable"
	NoContentInResponse    Code = "no_content_in_response"
	InvalidResponseFormat  Code = "invalid_response_format"
	UnexpectedResponseFmt  Code = "unexpected_response_format"
	UnknownError           Code = "unknown_error"
)

// Error is the single structured error type propagated across package
// boundaries. It carries enough context for the CLI to print a
// one-line reason plus a resolution hint without re-deriving it.
type Error struct {
	Code      Code
	Message   string
	Provider  string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the Code from err, or UnknownError if err is not
// one of ours.
func GetCode(err error) Code {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return UnknownError
}

// As walks err's Unwrap chain and stores the first *Error it finds in
// target; it is kept local so callers only need to import this package
// for the common case.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// FromHTTPStatus pushes a raw HTTP status code through the final
// provider-adapter taxonomy. This is narrower than the retry engine's
// own classification table: most statuses the retry engine
// distinguishes collapse to UnknownError here, since adapters only
// name a final code for the cases a caller acts on differently.
// Provider adapters call this after the retry engine has already made
// its retry/backoff decision.
func FromHTTPStatus(status int) Code {
	switch status {
	case 401:
		return AuthenticationError
	case 429:
		return RateLimitError
	case 400:
		return InvalidRequest
	case 503:
		return ServiceUnavailable
	default:
		return UnknownError
	}
}

// Hint returns a short user-facing resolution hint for credential and
// network-shaped errors, or "" when no hint applies.
func Hint(code Code) string {
	switch code {
	case AuthenticationError:
		return "check API key"
	case ServerUnreachable:
		return "start local server"
	case ConfigurationError:
		return "check provider configuration"
	case NetworkError:
		return "check network connectivity"
	default:
		return ""
	}
}

package batchexecute

import (
	"fmt"
	"net/http"
)

// ErrorType represents different categories of API errors
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeAuthorization
	ErrorTypeRateLimit
	ErrorTypeNotFound
	ErrorTypeInvalidInput
	ErrorTypeServerError
	ErrorTypeNetworkError
	ErrorTypeUnavailable
)

// String returns the string representation of the ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeAuthentication:
		return "Authentication"
	case ErrorTypeAuthorization:
		return "Authorization"
	case ErrorTypeRateLimit:
		return "RateLimit"
	case ErrorTypeNotFound:
		return "NotFound"
	case ErrorTypeInvalidInput:
		return "InvalidInput"
	case ErrorTypeServerError:
		return "ServerError"
	case ErrorTypeNetworkError:
		return "NetworkError"
	case ErrorTypeUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// ErrorTypeForStatus classifies an HTTP status code.
func ErrorTypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case status == http.StatusForbidden:
		return ErrorTypeAuthorization
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusBadRequest:
		return ErrorTypeInvalidInput
	case status == http.StatusServiceUnavailable:
		return ErrorTypeUnavailable
	case status >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// TransportError is returned for a non-success HTTP status or a network
// failure. StatusCode is zero for the latter.
type TransportError struct {
	StatusCode int
	Message    string
	Type       ErrorType
	Err        error
}

func newTransportError(status int) *TransportError {
	return &TransportError{
		StatusCode: status,
		Message:    fmt.Sprintf("RPC call failed: %d", status),
		Type:       ErrorTypeForStatus(status),
	}
}

func (e *TransportError) Error() string {
	return e.Message
}

// Unwrap maps authentication failures to ErrUnauthorized so callers can
// drop cached tokens with errors.Is.
func (e *TransportError) Unwrap() error {
	if e.Type == ErrorTypeAuthentication || e.Type == ErrorTypeAuthorization {
		return ErrUnauthorized
	}
	return e.Err
}

// IsRetryable returns true if the error can be retried
func (e *TransportError) IsRetryable() bool {
	if e.StatusCode == 0 {
		return isRetryableError(e.Err)
	}
	return isRetryableStatus(e.StatusCode)
}

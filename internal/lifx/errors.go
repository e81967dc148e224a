package lifx

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is matched by errors.Is when a call was refused locally
// because the last known rate-limit budget is exhausted.
var ErrRateLimited = errors.New("lifx: user request limit reached")

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindRateLimited ErrorKind = "rate_limited"
	KindTransport   ErrorKind = "transport"
	KindProtocol    ErrorKind = "protocol"
	KindAPI         ErrorKind = "api"
	KindOther       ErrorKind = "other"
)

// RateLimitError is returned when the local gate refuses a call. No request
// was sent.
type RateLimitError struct {
	RateLimit RateLimit
}

func (e *RateLimitError) Error() string {
	if e.RateLimit.Reset > 0 {
		return fmt.Sprintf("%s (resets at %s)", ErrRateLimited.Error(), e.RateLimit.ResetTime().UTC().Format(time.RFC3339))
	}
	return ErrRateLimited.Error()
}

// Is allows errors.Is() to match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// TransportError reports that no response was received.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lifx: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response that could not be understood, most often
// an HTML page where JSON was expected.
type ProtocolError struct {
	StatusCode int
	Body       string // leading bytes of the response
	Err        error  // set when valid JSON did not fit the expected model
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lifx: unexpected response payload (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("lifx: API responded with a non-JSON body (status %d)", e.StatusCode)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// APIError is a structured error reported by the API with a status >= 400.
type APIError struct {
	StatusCode int
	Message    string
	Warnings   json.RawMessage // array or object; "{}" when absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lifx: API error %d: %s", e.StatusCode, e.Message)
}

func newAPIError(status int, payload json.RawMessage) *APIError {
	var envelope struct {
		Error    string          `json:"error"`
		Warnings json.RawMessage `json:"warnings"`
	}
	// A JSON body that is not an object still yields an APIError with the status.
	_ = json.Unmarshal(payload, &envelope)

	apiErr := &APIError{
		StatusCode: status,
		Message:    envelope.Error,
		Warnings:   envelope.Warnings,
	}
	if apiErr.Message == "" {
		apiErr.Message = string(payload)
	}
	if len(apiErr.Warnings) == 0 || string(apiErr.Warnings) == "null" {
		apiErr.Warnings = json.RawMessage("{}")
	}
	return apiErr
}

// KindOf returns the classification of err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		transportErr *TransportError
		protocolErr  *ProtocolError
		apiErr       *APIError
	)
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.As(err, &apiErr):
		return KindAPI
	default:
		return KindOther
	}
}

// IsRateLimited reports whether the call was refused by the local gate.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	return KindOf(err) == KindTransport
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	return KindOf(err) == KindProtocol
}

// IsAPIError reports whether err is an APIError, optionally with one of the given statuses.
func IsAPIError(err error, statuses ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if apiErr.StatusCode == s {
			return true
		}
	}
	return false
}

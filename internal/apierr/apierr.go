// Package apierr normalizes failures from any layer of the gateway into
// the stable set of kinds spec.md §4.9 defines, each with a default HTTP
// status and a public JSON projection. It plays the role the teacher's
// provider adapters currently leave to bare fmt.Errorf/log.Printf calls,
// generalized the way original_source/src/errors.rs's AppError enum maps
// kinds to statuses — but rendered as Go error values with %w chains
// instead of a derive(Error) enum.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is one of the stable error categories a client or operator can
// branch on.
type Kind string

const (
	KindInvalidRequest      Kind = "invalid_request"
	KindModelNotFound       Kind = "model_not_found"
	KindAuthentication      Kind = "authentication"
	KindAuthorization       Kind = "authorization"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamTimeout     Kind = "upstream_timeout"
	KindUpstreamUnreachable Kind = "upstream_unreachable"
	KindUpstreamFormat      Kind = "upstream_format"
	KindUpstreamProtocol    Kind = "upstream_protocol"
	KindInternal            Kind = "internal"
	KindConfiguration       Kind = "configuration"
)

// defaultStatus is the HTTP status the gateway's HTTP adapter should use
// when it has nothing better to go on (spec.md §4.9's table).
var defaultStatus = map[Kind]int{
	KindInvalidRequest:      http.StatusBadRequest,
	KindModelNotFound:       http.StatusNotFound,
	KindAuthentication:      http.StatusUnauthorized,
	KindAuthorization:       http.StatusForbidden,
	KindRateLimited:         http.StatusTooManyRequests,
	KindUpstreamTimeout:     http.StatusRequestTimeout,
	KindUpstreamUnreachable: http.StatusBadGateway,
	KindUpstreamFormat:      http.StatusInternalServerError,
	KindUpstreamProtocol:    http.StatusInternalServerError,
	KindInternal:            http.StatusInternalServerError,
	KindConfiguration:       http.StatusInternalServerError,
}

// retryable marks the kinds a future bounded-retry layer (not implemented
// here — see spec.md §7) could safely retry.
var retryable = map[Kind]bool{
	KindUpstreamTimeout:     true,
	KindUpstreamUnreachable: true,
	KindRateLimited:         true,
}

// Error is a typed gateway error. It always carries a Kind and a
// client-safe Message; Cause, if present, is logged but never
// serialized to the client.
type Error struct {
	Kind         Kind
	Message      string
	ProviderCode int // 0 means "no upstream status to report"
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status a client-facing adapter should surface
// for e.
func (e *Error) Status() int {
	if s, ok := defaultStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Retryable reports whether a future retry layer could safely retry e.
func (e *Error) Retryable() bool { return retryable[e.Kind] }

// New builds a Kind error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Kind error around an underlying cause. The cause's text
// is never placed in Message — only logged via the error chain.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithProviderCode attaches the upstream HTTP status that produced e, for
// the optional provider_code field in the public JSON projection.
func (e *Error) WithProviderCode(code int) *Error {
	e.ProviderCode = code
	return e
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Payload is the public JSON projection described in spec.md §4.9.
type Payload struct {
	Error PayloadBody `json:"error"`
}

type PayloadBody struct {
	Message      string `json:"message"`
	Type         Kind   `json:"type"`
	Code         int    `json:"code"`
	ProviderCode *int   `json:"provider_code,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// ToPayload renders e as the JSON body a client should receive. now is
// threaded in explicitly so callers — and tests — control the timestamp.
func (e *Error) ToPayload(now time.Time) Payload {
	p := Payload{Error: PayloadBody{
		Message:   e.Message,
		Type:      e.Kind,
		Code:      e.Status(),
		Timestamp: now.UTC().Format(time.RFC3339),
	}}
	if e.ProviderCode != 0 {
		pc := e.ProviderCode
		p.Error.ProviderCode = &pc
	}
	return p
}

// Package apierr provides the error envelope handed to every read and write
// caller. Transport failures are translated here exactly once; raw transport
// errors never reach a caller.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is the category of a failure.
type Kind string

const (
	// KindClient is a 4xx response: the request is invalid or unauthorized
	// for its payload. Never retried.
	KindClient Kind = "client"

	// KindServer is a 5xx response.
	KindServer Kind = "server"

	// KindNetwork means no response was received (DNS, refused, timeout, offline).
	KindNetwork Kind = "network"

	// KindCallback is a failure raised inside a caller supplied hook.
	KindCallback Kind = "callback"

	// KindInvalid is a request that could not be built (bad template, unencodable body).
	KindInvalid Kind = "invalid"
)

// DefaultMessage is the last-resort message when nothing better is known.
const DefaultMessage = "An unexpected error occurred"

// Error is the normalized failure envelope.
type Error struct {
	// Message is sourced from the server body, then the transport, then a fallback.
	Message string `json:"message"`

	// Status is the HTTP status code, zero when no response was received.
	Status int `json:"status,omitempty"`

	// StatusText is the HTTP status line text, empty when no response was received.
	StatusText string `json:"statusText,omitempty"`

	// Fields holds per-field validation messages when the server sent them.
	Fields map[string][]string `json:"errors,omitempty"`

	// Cause is the original error.
	Cause error `json:"-"`

	kind Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.Message)
}

// Unwrap exposes the original error.
func (e *Error) Unwrap() error { return e.Cause }

// Kind returns the category of the failure.
func (e *Error) Kind() Kind {
	if e == nil {
		return ""
	}
	return e.kind
}

// IsNetworkError reports whether no response was received.
func (e *Error) IsNetworkError() bool { return e != nil && e.kind == KindNetwork }

// IsServerError reports a status of 500 or above.
func (e *Error) IsServerError() bool { return e != nil && e.Status >= 500 }

// IsClientError reports a status in [400, 500).
func (e *Error) IsClientError() bool { return e != nil && e.Status >= 400 && e.Status < 500 }

// IsUnauthorized reports a 401. The authenticated transport already signalled
// a forced logout for it, so callers usually have nothing left to do.
func (e *Error) IsUnauthorized() bool { return e != nil && e.Status == http.StatusUnauthorized }

// ResponseError is implemented by transport errors that carry an HTTP response.
type ResponseError interface {
	error
	HTTPStatus() int
	HTTPStatusText() string
	ResponseBody() []byte
}

// Normalize converts any error into an envelope. An *Error passes through
// untouched. fallback is used when neither the server nor the transport
// provides a message.
func Normalize(err error, fallback string) *Error {
	if err == nil {
		return nil
	}
	if fallback == "" {
		fallback = DefaultMessage
	}

	var env *Error
	if errors.As(err, &env) {
		return env
	}

	var re ResponseError
	if errors.As(err, &re) {
		return FromResponse(re.HTTPStatus(), re.HTTPStatusText(), re.ResponseBody(), err, fallback)
	}

	return &Error{
		Message: firstNonEmpty(transportMessage(err), fallback),
		Cause:   err,
		kind:    KindNetwork,
	}
}

// FromResponse builds an envelope for a completed HTTP exchange with an error status.
func FromResponse(status int, statusText string, body []byte, cause error, fallback string) *Error {
	kind := KindClient
	if status >= 500 {
		kind = KindServer
	}

	var transportMsg string
	if status != 0 {
		transportMsg = fmt.Sprintf("Request failed with status code %d", status)
	}

	return &Error{
		Message:    firstNonEmpty(BodyMessage(body), transportMsg, fallback),
		Status:     status,
		StatusText: statusText,
		Fields:     bodyFields(body),
		Cause:      cause,
		kind:       kind,
	}
}

// Invalid builds an envelope for a request that never left the process.
func Invalid(err error, fallback string) *Error {
	return &Error{
		Message: firstNonEmpty(err.Error(), fallback, DefaultMessage),
		Cause:   err,
		kind:    KindInvalid,
	}
}

// Callback builds an envelope for a failure inside a caller hook.
func Callback(op string, err error) *Error {
	return &Error{
		Message: fmt.Sprintf("%s callback failed: %v", op, err),
		Cause:   err,
		kind:    KindCallback,
	}
}

// BodyMessage extracts the server supplied message from a JSON error body.
// Checked paths: message, detail (string form), error.message, error (string form).
func BodyMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"message", "detail", "error.message", "error"} {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return r.Str
		}
	}
	return ""
}

func bodyFields(body []byte) map[string][]string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	errs := gjson.GetBytes(body, "errors")
	if !errs.IsObject() {
		return nil
	}
	fields := map[string][]string{}
	errs.ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() {
			for _, v := range value.Array() {
				fields[key.String()] = append(fields[key.String()], v.String())
			}
		} else if value.Type == gjson.String {
			fields[key.String()] = []string{value.Str}
		}
		return true
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func transportMessage(err error) string {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return "Network Error: request timed out"
	}
	msg := err.Error()
	if msg == "" {
		return ""
	}
	return "Network Error: " + msg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Guard runs a caller supplied hook. A returned error or a panic is logged
// and reported as a callback error; it never propagates further.
func Guard(logger *slog.Logger, op string, fn func() error) (cbErr *Error) {
	if fn == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if r := recover(); r != nil {
			cbErr = Callback(op, fmt.Errorf("panic: %v", r))
			logger.Error("callback panicked", slog.String("op", op), slog.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		logger.Error("callback failed", slog.String("op", op), slog.String("error", err.Error()))
		return Callback(op, err)
	}
	return nil
}

// Validation builds an envelope for payloads rejected before dispatch.
func Validation(fields map[string][]string) *Error {
	return &Error{
		Message: "Validation failed",
		Fields:  fields,
		kind:    KindInvalid,
	}
}

// Package apierr defines the error taxonomy for calls against the storefront
// REST backend.
//
// Every gateway failure is an *Error of one of four kinds. Callers match on
// the kind with errors.Is against the sentinel errors, and use errors.As to
// reach the HTTP status, the human-readable detail and any per-field messages.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindNetwork means the request never reached the server (or no response came back).
	KindNetwork Kind = iota + 1
	// KindAuth means the server rejected the credential (HTTP 401).
	KindAuth
	// KindValidation means a 4xx response carrying structured field detail.
	KindValidation
	// KindServer covers 5xx and any 4xx not classified above.
	KindServer
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Sentinel errors for use with errors.Is().
var (
	// ErrNetwork matches every KindNetwork error.
	ErrNetwork = errors.New("network error")
	// ErrAuth matches every KindAuth error.
	ErrAuth = errors.New("authentication failed")
	// ErrValidation matches every KindValidation error.
	ErrValidation = errors.New("validation failed")
	// ErrServer matches every KindServer error.
	ErrServer = errors.New("server error")
)

// FieldError is one per-field validation message.
type FieldError struct {
	// Field is the dotted location of the offending field ("email", "delivery_info.zip_code").
	Field string `json:"field"`
	// Message is the human-readable complaint.
	Message string `json:"message"`
}

// Error is a classified gateway failure.
type Error struct {
	// Kind is the classification.
	Kind Kind
	// Op names the failed operation ("fetch cart", "login").
	Op string
	// Status is the HTTP status code, 0 for network errors.
	Status int
	// Detail is the message shown to the user.
	Detail string
	// Fields holds per-field messages for validation errors.
	Fields []FieldError
	// Err is the underlying cause, if any.
	Err error
}

// Error returns "op: detail".
func (e *Error) Error() string {
	msg := e.Message()
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// Message is the single-string form of the error: the detail, or the field
// messages joined when the detail is empty.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, formatField(f))
		}
		return strings.Join(parts, "; ")
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

// FieldMessages flattens Fields into one message per field. Multiple
// messages for the same field are joined with "; ".
func (e *Error) FieldMessages() map[string]string {
	if len(e.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if prev, ok := out[f.Field]; ok {
			out[f.Field] = prev + "; " + f.Message
			continue
		}
		out[f.Field] = f.Message
	}
	return out
}

func formatField(f FieldError) string {
	if f.Field == "" {
		return f.Message
	}
	return f.Field + ": " + f.Message
}

// Network wraps a transport failure. There is no response body, so the
// detail is the generic fallback; the cause stays reachable through Unwrap.
func Network(op, fallback string, cause error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Detail: fallback, Err: cause}
}

// Validation builds a local validation error that never reached the server.
func Validation(op string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Op: op, Status: http.StatusUnprocessableEntity, Fields: fields}
}

// FromResponse classifies a non-2xx response. The detail field of the body
// is used when present, otherwise fallback.
func FromResponse(op string, status int, body []byte, fallback string) *Error {
	detail, fields := ParseDetail(body)
	e := &Error{Op: op, Status: status, Detail: detail, Fields: fields}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuth
	case status >= 400 && status < 500 && (len(fields) > 0 || status == http.StatusUnprocessableEntity):
		e.Kind = KindValidation
	default:
		e.Kind = KindServer
	}

	if e.Detail == "" && len(e.Fields) == 0 {
		e.Detail = fallback
	}
	return e
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Message returns the user-facing string for any error. Non-apierr errors
// use their Error() text; nil yields fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var e *Error
	if errors.As(err, &e) {
		if m := e.Message(); m != "" {
			return m
		}
		return fallback
	}
	return err.Error()
}

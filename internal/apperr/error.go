// Package apperr – Error
//
// This file defines the concrete taxonomy error and its constructors. An Error
// is immutable once built: every With* helper returns a new instance with
// copied metadata so an error can be annotated while it travels up the call
// stack without mutating values shared by other goroutines.
package apperr

import (
	"fmt"
	"time"
)

// now is the clock used for Error timestamps.
var now = time.Now

// Metadata keys used by this package and the outbound client.
const (
	MetaStatus          = "status"
	MetaOriginalMessage = "originalMessage"
	MetaRemoteCode      = "remoteCode"
	MetaField           = "field"
	MetaDetails         = "details"
	MetaKind            = "kind"
	MetaRequestID       = "requestId"
	MetaAttempts        = "attempts"
)

// Error is the taxonomy error. Construct it with one of the category
// constructors (Validation, NotFound, ...) or New; the zero value is not useful.
type Error struct {
	code        string
	category    Category
	message     string
	severity    Severity
	timestamp   time.Time
	metadata    map[string]any
	operational bool
	cause       error

	status    int
	hasStatus bool
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its category:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
var (
	ErrValidation     = &Error{category: CategoryValidation}
	ErrAuthentication = &Error{category: CategoryAuthentication}
	ErrAuthorization  = &Error{category: CategoryAuthorization}
	ErrNotFound       = &Error{category: CategoryNotFound}
	ErrConflict       = &Error{category: CategoryConflict}
	ErrBusinessRule   = &Error{category: CategoryBusinessRule}
	ErrExternal       = &Error{category: CategoryExternal}
	ErrInternal       = &Error{category: CategoryInternal}
)

// New builds an Error of category c with the category's default code,
// severity, and operational flag. Unknown categories are treated as internal.
// The metadata map is copied.
func New(c Category, message string, md map[string]any) *Error {
	if !c.Valid() {
		c = CategoryInternal
	}
	s := c.lookup()
	return &Error{
		code:        s.code,
		category:    c,
		message:     message,
		severity:    s.severity,
		timestamp:   now(),
		metadata:    cloneMap(md),
		operational: s.operational,
	}
}

// Validation reports malformed or rejected input (400).
func Validation(message string, md map[string]any) *Error {
	return New(CategoryValidation, message, md)
}

// Authentication reports missing or bad credentials (401).
func Authentication(message string, md map[string]any) *Error {
	return New(CategoryAuthentication, message, md)
}

// Authorization reports an authenticated caller lacking permission (403).
func Authorization(message string, md map[string]any) *Error {
	return New(CategoryAuthorization, message, md)
}

// NotFound reports a missing resource (404).
func NotFound(message string, md map[string]any) *Error {
	return New(CategoryNotFound, message, md)
}

// Conflict reports a state clash such as a duplicate key (409).
func Conflict(message string, md map[string]any) *Error {
	return New(CategoryConflict, message, md)
}

// BusinessRule reports a well-formed request that violates a domain rule (422).
func BusinessRule(message string, md map[string]any) *Error {
	return New(CategoryBusinessRule, message, md)
}

// External reports a failing upstream dependency (502).
func External(message string, md map[string]any) *Error {
	return New(CategoryExternal, message, md)
}

// Internal reports an unexpected defect (500). Its message never leaves the
// server; see Public.
func Internal(message string, md map[string]any) *Error {
	return New(CategoryInternal, message, md)
}

// Error implements the error interface as "[CODE] message" with the cause
// appended when present.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap returns the lower-level cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same category, which makes the category
// sentinels usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.category == t.category
}

// Code returns the stable machine-readable code.
func (e *Error) Code() string { return e.code }

// Category returns the taxonomy category.
func (e *Error) Category() Category { return e.category }

// Message returns the raw message. Use Public for anything leaving the process.
func (e *Error) Message() string { return e.message }

// Severity returns the severity grade.
func (e *Error) Severity() Severity { return e.severity }

// Timestamp returns the creation instant.
func (e *Error) Timestamp() time.Time { return e.timestamp }

// Operational reports whether the message is safe to surface to end users.
func (e *Error) Operational() bool { return e.operational }

// Cause returns the underlying error, if any.
func (e *Error) Cause() error { return e.cause }

// HTTPStatus returns the category's fixed HTTP status.
func (e *Error) HTTPStatus() int { return e.category.HTTPStatus() }

// TransportStatus returns the wire status observed for this error, when the
// error was produced from an HTTP response.
func (e *Error) TransportStatus() (int, bool) { return e.status, e.hasStatus }

// Metadata returns a copy of the metadata bag.
func (e *Error) Metadata() map[string]any { return cloneMap(e.metadata) }

// Meta returns one metadata value.
func (e *Error) Meta(key string) (any, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

// WithMetadata returns a copy of e with md merged over its metadata.
// Keys in md win on conflict. The receiver is not modified.
func (e *Error) WithMetadata(md map[string]any) *Error {
	if len(md) == 0 {
		return e
	}
	cp := *e
	m := make(map[string]any, len(e.metadata)+len(md))
	for k, v := range e.metadata {
		m[k] = v
	}
	for k, v := range md {
		m[k] = v
	}
	cp.metadata = m
	return &cp
}

// WithField returns a copy of e with one extra metadata entry.
func (e *Error) WithField(key string, value any) *Error {
	return e.WithMetadata(map[string]any{key: value})
}

// WithCause returns a copy of e wrapping err. A nil err returns e unchanged.
func (e *Error) WithCause(err error) *Error {
	if err == nil {
		return e
	}
	cp := *e
	cp.cause = err
	return &cp
}

// WithStatus returns a copy of e tagged with the observed transport status.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.status = status
	cp.hasStatus = true
	cp.metadata = cloneMap(e.metadata)
	if cp.metadata == nil {
		cp.metadata = make(map[string]any, 1)
	}
	cp.metadata[MetaStatus] = status
	return &cp
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if mv, ok := v.(map[string]any); ok {
			out[k] = cloneMap(mv)
			continue
		}
		out[k] = v
	}
	return out
}

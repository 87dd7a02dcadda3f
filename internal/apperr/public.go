// Package apperr – external rendering
//
// This file is the one place where the "strip unless operational" rule lives.
// Every code path that serializes an error for a client (HTTP handlers, panic
// recovery, the CLI) goes through Public, so the rule holds for every category
// including ones added later.
package apperr

import "github.com/rs/zerolog"

// GenericInternalMessage replaces the message of every non-operational error
// before it leaves the process.
const GenericInternalMessage = "An unexpected error occurred"

// PublicError is the client-safe view of an Error. It matches the "error"
// object of the wire envelope.
type PublicError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Public renders e for external callers. Operational errors keep their code,
// message, field and details. Non-operational errors always render the
// internal code with GenericInternalMessage and nothing else.
func Public(e *Error) PublicError {
	if e == nil || !e.operational {
		return PublicError{
			Code:    CategoryInternal.Code(),
			Message: GenericInternalMessage,
		}
	}
	pe := PublicError{Code: e.code, Message: e.message}
	if f, ok := e.metadata[MetaField].(string); ok {
		pe.Field = f
	}
	if d, ok := e.metadata[MetaDetails].(map[string]any); ok {
		pe.Details = cloneMap(d)
	}
	return pe
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler and writes the
// full diagnostic record, including the raw message, metadata, and cause.
// It is meant for server-side logs only.
func (e *Error) MarshalZerologObject(ev *zerolog.Event) {
	if e == nil {
		return
	}
	ev.Str("code", e.code).
		Str("category", string(e.category)).
		Str("severity", string(e.severity)).
		Bool("operational", e.operational).
		Str("message", e.message).
		Time("timestamp", e.timestamp)
	if e.hasStatus {
		ev.Int("transport_status", e.status)
	}
	if len(e.metadata) > 0 {
		ev.Interface("metadata", e.metadata)
	}
	if e.cause != nil {
		ev.AnErr("cause", e.cause)
	}
}

// LogFields returns the full diagnostic record of e as a flat map, for log
// sinks that take key/value fields instead of a zerolog object.
func LogFields(e *Error) map[string]any {
	if e == nil {
		return map[string]any{}
	}
	out := map[string]any{
		"code":        e.code,
		"category":    string(e.category),
		"severity":    string(e.severity),
		"operational": e.operational,
		"message":     e.message,
		"timestamp":   e.timestamp,
	}
	if e.hasStatus {
		out["transport_status"] = e.status
	}
	if len(e.metadata) > 0 {
		out["metadata"] = cloneMap(e.metadata)
	}
	if e.cause != nil {
		out["cause"] = e.cause.Error()
	}
	return out
}

// LogLevel maps the severity to the zerolog level used when logging e.
func (e *Error) LogLevel() zerolog.Level {
	if e == nil {
		return zerolog.ErrorLevel
	}
	switch e.severity {
	case SeverityLow:
		return zerolog.InfoLevel
	case SeverityMedium:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

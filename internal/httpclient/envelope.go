// Package httpclient – wire envelope
//
// Every response body in this system is wrapped:
//
//	{ "success": true,  "data": <T> }
//	{ "success": false, "error": { "code": "...", "message": "...", "field": "...", "details": {...} } }
//
// A response fails when its status is outside 200–299 or success is false.
// This file turns a raw status/header/body triple into either a Response or
// a taxonomy error.
package httpclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/tbourn/teamhub/internal/apperr"
)

// Envelope is the wire wrapper. It is exported so servers in this module can
// produce exactly what the client consumes.
type Envelope struct {
	Success *bool               `json:"success"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Error   *apperr.PublicError `json:"error,omitempty"`
}

// maxErrorSnippet bounds how much of a non-envelope error body lands in metadata.
const maxErrorSnippet = 512

func isSuccessStatus(status int) bool { return status >= 200 && status <= 299 }

// decodeEnvelope classifies one HTTP exchange.
func decodeEnvelope(status int, header http.Header, body []byte) (*Response, *apperr.Error) {
	body = bytes.TrimSpace(body)
	ok := isSuccessStatus(status)

	if len(body) == 0 {
		if ok {
			return &Response{Status: status, Header: header}, nil
		}
		return nil, apperr.MapStatus(status, statusMessage(status))
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if ok {
			return nil, apperr.Internal("Malformed response envelope", nil).
				WithStatus(status).
				WithCause(err)
		}
		return nil, apperr.MapStatus(status, statusMessage(status)).
			WithField(apperr.MetaDetails, map[string]any{"body": snippet(body)})
	}

	failed := !ok || (env.Success != nil && !*env.Success) || (env.Success == nil && env.Error != nil)
	if !failed {
		return &Response{Status: status, Header: header, Data: env.Data}, nil
	}
	return nil, envelopeError(status, env.Error)
}

// envelopeError maps a failed exchange. Non-2xx statuses decide the category;
// a 2xx carrying success:false falls back to the envelope code, then to the
// status mapper.
func envelopeError(status int, pe *apperr.PublicError) *apperr.Error {
	msg := statusMessage(status)
	if pe != nil && pe.Message != "" {
		msg = pe.Message
	}

	var e *apperr.Error
	if c, known := apperr.CategoryForCode(codeOf(pe)); known && isSuccessStatus(status) {
		e = apperr.New(c, msg, nil).WithStatus(status)
	} else {
		e = apperr.MapStatus(status, msg)
	}
	if pe == nil {
		return e
	}

	md := make(map[string]any, 3)
	if pe.Code != "" {
		md[apperr.MetaRemoteCode] = pe.Code
	}
	if pe.Field != "" {
		md[apperr.MetaField] = pe.Field
	}
	if len(pe.Details) > 0 {
		md[apperr.MetaDetails] = pe.Details
	}
	return e.WithMetadata(md)
}

func codeOf(pe *apperr.PublicError) string {
	if pe == nil {
		return ""
	}
	return pe.Code
}

func statusMessage(status int) string {
	if t := http.StatusText(status); t != "" {
		return t
	}
	return "HTTP error"
}

func snippet(b []byte) string {
	if len(b) <= maxErrorSnippet {
		return string(b)
	}
	n := maxErrorSnippet
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "…"
}

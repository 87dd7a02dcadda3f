package main

import (
	"encoding/json"
	"io"

	"github.com/tbourn/teamhub/internal/apperr"
)

const (
	exitOK           = 0
	exitInternal     = 1
	exitValidation   = 2
	exitAuthn        = 3
	exitAuthz        = 4
	exitNotFound     = 5
	exitConflict     = 6
	exitBusinessRule = 7
	exitExternal     = 8
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch category(apperr.From(err)) {
	case apperr.CategoryValidation:
		return exitValidation
	case apperr.CategoryAuthentication:
		return exitAuthn
	case apperr.CategoryAuthorization:
		return exitAuthz
	case apperr.CategoryNotFound:
		return exitNotFound
	case apperr.CategoryConflict:
		return exitConflict
	case apperr.CategoryBusinessRule:
		return exitBusinessRule
	case apperr.CategoryExternal:
		return exitExternal
	default:
		return exitInternal
	}
}

// category refines an internal error by the server's own code. Statuses
// outside the canonical set (429, 413, 405) decode as internal, but the
// envelope still names what the server meant.
func category(e *apperr.Error) apperr.Category {
	c := e.Category()
	if c != apperr.CategoryInternal {
		return c
	}
	if rc := remoteCode(e); rc != "" {
		if known, ok := apperr.CategoryForCode(rc); ok {
			return known
		}
	}
	return c
}

func remoteCode(e *apperr.Error) string {
	v, _ := e.Meta(apperr.MetaRemoteCode)
	s, _ := v.(string)
	return s
}

type errorOutput struct {
	Error      apperr.PublicError `json:"error"`
	Status     int                `json:"status,omitempty"`
	RemoteCode string             `json:"remoteCode,omitempty"`
	RequestID  string             `json:"requestId,omitempty"`
}

// report prints the public rendering of err. Internal details stay out of
// the output; they are logged by the client when --debug is set.
func report(w io.Writer, err error) {
	e := apperr.From(err)
	out := errorOutput{Error: apperr.Public(e), RemoteCode: remoteCode(e)}
	if st, ok := e.TransportStatus(); ok {
		out.Status = st
	}
	if rid, ok := e.Meta(apperr.MetaRequestID); ok {
		out.RequestID, _ = rid.(string)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

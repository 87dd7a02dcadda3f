// Package services defines the business logic for teams, users, and sessions.
//
// Every predictable failure leaves this package as an *apperr.Error of the
// matching category. Unexpected storage failures are wrapped as internal
// errors with the original error kept as the cause, so handlers only ever
// render through apperr.Public and never craft messages themselves.
package services

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/repo"
)

// Messages for the predictable failures shared by handlers and tests.
const (
	msgTeamNotFound       = "team not found"
	msgUserNotFound       = "user not found"
	msgTeamNameTaken      = "a team with this name already exists"
	msgEmailTaken         = "a user with this email already exists"
	msgTeamHasMembers     = "team still has members"
	msgInvalidCredentials = "invalid email or password"
	msgInvalidToken       = "session is invalid or expired"
)

// storageError wraps an unexpected repository failure. The op name ends up in
// server logs only.
func storageError(op string, err error) *apperr.Error {
	return apperr.Internal(op+" failed", map[string]any{"op": op}).WithCause(err)
}

// notFoundOr maps repo.ErrNotFound to a not_found error with msg and anything
// else to an internal storage error.
func notFoundOr(op, msg string, err error) *apperr.Error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(msg, nil)
	}
	return storageError(op, err)
}

// invalid builds a validation error bound to a request field.
func invalid(field, msg string) *apperr.Error {
	return apperr.Validation(msg, map[string]any{apperr.MetaField: field})
}

// normalizeText trims whitespace and collapses inner runs to one space.
func normalizeText(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

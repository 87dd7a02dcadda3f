// Package apperr – status mapping
//
// This file maps wire-level facts (HTTP status codes, envelope error codes,
// arbitrary Go errors) onto taxonomy errors. Every function here is total:
// any input produces a non-nil *Error.
package apperr

import (
	"errors"
	"fmt"
)

// statusCategories is the inverse of the category table for the eight
// canonical statuses.
var statusCategories = func() map[int]Category {
	m := make(map[int]Category, len(categories))
	for c, s := range categories {
		m[s.status] = c
	}
	return m
}()

// codeCategories resolves envelope codes ("NOT_FOUND_ERROR") to categories.
var codeCategories = func() map[string]Category {
	m := make(map[string]Category, len(categories))
	for c, s := range categories {
		m[s.code] = c
	}
	return m
}()

// CategoryForStatus returns the category mapped to status and true, or
// internal and false for any status outside the table.
func CategoryForStatus(status int) (Category, bool) {
	c, ok := statusCategories[status]
	if !ok {
		return CategoryInternal, false
	}
	return c, true
}

// CategoryForCode returns the category whose stable code equals code.
func CategoryForCode(code string) (Category, bool) {
	c, ok := codeCategories[code]
	return c, ok
}

// MapStatus converts an HTTP status and message into a taxonomy error tagged
// with that status.
//
// The eight canonical statuses map to their category with message kept as-is.
// Any other integer maps to internal; the message is rewritten to embed the
// numeric status and the original text is kept in metadata, so it is never
// dropped but also never rendered externally.
func MapStatus(status int, message string) *Error {
	if c, ok := CategoryForStatus(status); ok {
		return New(c, message, nil).WithStatus(status)
	}
	return Internal(
		fmt.Sprintf("Unexpected HTTP status %d: %s", status, message),
		map[string]any{MetaOriginalMessage: message},
	).WithStatus(status)
}

// From returns the taxonomy error carried in err's chain. Any other non-nil
// error is wrapped as internal with err as its cause. From(nil) returns nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		if ae.code == "" {
			// bare sentinel such as ErrNotFound
			return New(ae.category, string(ae.category), nil)
		}
		return ae
	}
	return Internal(err.Error(), nil).WithCause(err)
}

// Package apperr defines the application error taxonomy shared by the HTTP
// API, the outbound client, and every caller that consumes their results.
//
// The taxonomy is closed: every failure is one of eight categories, each with
// a stable machine-readable code, a fixed HTTP status, a default severity, and
// an operational flag. Operational errors describe expected business failures
// and their message is safe to show to an end user. The single non-operational
// category (internal) always renders a generic message externally; its detail
// is kept in metadata and cause for server-side logs only.
//
// This file holds the category table. The status mapping is part of
// the wire contract and must not change without a version bump.
package apperr

import "net/http"

// Category is one of the closed set of error kinds.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryNotFound       Category = "not_found"
	CategoryConflict       Category = "conflict"
	CategoryBusinessRule   Category = "business_rule"
	CategoryExternal       Category = "external"
	CategoryInternal       Category = "internal"
)

// Severity grades an error for logging and alerting. It never drives control flow.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// attrs carries the fixed attributes of one category.
type attrs struct {
	code        string
	status      int
	severity    Severity
	operational bool
}

// categories is the taxonomy table. Every Category constant has an entry.
var categories = map[Category]attrs{
	CategoryValidation:     {"VALIDATION_ERROR", http.StatusBadRequest, SeverityLow, true},
	CategoryAuthentication: {"AUTHENTICATION_ERROR", http.StatusUnauthorized, SeverityMedium, true},
	CategoryAuthorization:  {"AUTHORIZATION_ERROR", http.StatusForbidden, SeverityMedium, true},
	CategoryNotFound:       {"NOT_FOUND_ERROR", http.StatusNotFound, SeverityLow, true},
	CategoryConflict:       {"CONFLICT_ERROR", http.StatusConflict, SeverityMedium, true},
	CategoryBusinessRule:   {"BUSINESS_RULE_ERROR", http.StatusUnprocessableEntity, SeverityMedium, true},
	CategoryExternal:       {"EXTERNAL_SERVICE_ERROR", http.StatusBadGateway, SeverityHigh, true},
	CategoryInternal:       {"INTERNAL_ERROR", http.StatusInternalServerError, SeverityCritical, false},
}

// Categories returns every category in table order of their HTTP status.
func Categories() []Category {
	return []Category{
		CategoryValidation,
		CategoryAuthentication,
		CategoryAuthorization,
		CategoryNotFound,
		CategoryConflict,
		CategoryBusinessRule,
		CategoryInternal,
		CategoryExternal,
	}
}

// lookup returns the table entry for c, treating unknown values as internal.
func (c Category) lookup() attrs {
	if s, ok := categories[c]; ok {
		return s
	}
	return categories[CategoryInternal]
}

// Code returns the stable machine-readable code, e.g. "NOT_FOUND_ERROR".
func (c Category) Code() string { return c.lookup().code }

// HTTPStatus returns the fixed status for the category.
func (c Category) HTTPStatus() int { return c.lookup().status }

// Severity returns the category's default severity.
func (c Category) Severity() Severity { return c.lookup().severity }

// Operational reports whether messages of this category are safe to expose.
func (c Category) Operational() bool { return c.lookup().operational }

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

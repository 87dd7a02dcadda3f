// Package repo implements the data persistence layer for domain entities,
// backed by GORM.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound (an alias of gorm.ErrRecordNotFound).
//   - Unique-index violations surface as ErrDuplicate.
//   - Any other DB error is propagated unchanged.
package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognizes unique-constraint failures. glebarez/sqlite
// often returns plain-text errors for UNIQUE violations instead of
// gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// create inserts v and maps unique violations to ErrDuplicate.
func create(db *gorm.DB, v any) error {
	if err := db.Create(v).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrDuplicate is returned when a unique pair already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrDailyLimit is returned when the applicant reached the per-day cap.
	ErrDailyLimit = errors.New("daily application limit reached")
	// ErrCapacityReached is returned when a listing has no invitations left.
	ErrCapacityReached = errors.New("invitation capacity reached")
	// ErrCapacityBelowSent is returned when a capacity update would drop below sent invitations.
	ErrCapacityBelowSent = errors.New("capacity below sent invitations")
	// ErrStatusChanged is returned when a listing's status moved since it was read.
	ErrStatusChanged = errors.New("listing status changed")
)

const pgUniqueViolation = "23505"

// isUniqueViolation recognizes a unique index conflict from gorm's error
// translation, the pgx driver, or SQLite's message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// likePattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

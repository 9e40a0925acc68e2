// Package testutil provides shared database fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"billboard/internal/database"
	"billboard/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection serializes access, so concurrent callers queue the
// way they would on row locks.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig(logger.Discard))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user with a unique username.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.test"}
	require.NoError(t, db.Create(u).Error)
	return u
}

// ListingOption customizes a fixture listing before insert.
type ListingOption func(*models.Listing)

// WithStatus sets status and the flags derived from it.
func WithStatus(status models.ListingStatus) ListingOption {
	return func(l *models.Listing) { l.ApplyStatus(status) }
}

// WithMaxInvitations sets the invitation capacity.
func WithMaxInvitations(n int) ListingOption {
	return func(l *models.Listing) { l.MaxInvitations = n }
}

// WithDeadline sets the application deadline.
func WithDeadline(d time.Time) ListingOption {
	return func(l *models.Listing) { l.Deadline = &d }
}

// WithExpiresAt sets the listing expiry.
func WithExpiresAt(e time.Time) ListingOption {
	return func(l *models.Listing) { l.ExpiresAt = &e }
}

// CreateListing inserts an active listing owned by ownerID.
func CreateListing(t testing.TB, db *gorm.DB, ownerID uint, title string, opts ...ListingOption) *models.Listing {
	t.Helper()
	l := &models.Listing{
		UserID:         ownerID,
		Title:          title,
		Category:       models.CategoryOffer,
		Type:           models.TypeApartment,
		City:           "Berlin",
		MaxInvitations: models.DefaultMaxInvitations,
	}
	l.ApplyStatus(models.StatusActive)
	for _, opt := range opts {
		opt(l)
	}
	require.NoError(t, db.Create(l).Error)

	// Zero values are replaced by column defaults on insert; write them back.
	require.NoError(t, db.Model(l).Select("status", "is_active", "is_published", "max_invitations").Updates(l).Error)
	return l
}

// ReloadListing reads the listing row again.
func ReloadListing(t testing.TB, db *gorm.DB, id uint) *models.Listing {
	t.Helper()
	var l models.Listing
	require.NoError(t, db.First(&l, id).Error)
	return &l
}

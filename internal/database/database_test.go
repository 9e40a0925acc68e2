package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"billboard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestMigrate_CreatesTablesAndUniquePairs(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate?mode=memory&cache=shared"), GormConfig(logger.Discard))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "listings", "listing_likes", "applications", "invitations", "comments"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("applications", "idx_application_pair"))
	assert.True(t, db.Migrator().HasIndex("invitations", "idx_invitation_pair"))
}

func TestGormConfig_UsesUTC(t *testing.T) {
	cfg := GormConfig(logger.Discard)
	assert.True(t, cfg.TranslateError)
	assert.Equal(t, time.UTC, cfg.NowFunc().Location())
}

func TestDSN(t *testing.T) {
	dsn := DSN(&config.Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "billboard"})
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "TimeZone=UTC")
}

func TestCustomGormLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), fc, gorm.ErrDuplicatedKey)
	assert.Empty(t, buf.String(), "unique violations stay below Warn")

	l.Trace(ctx, time.Now(), fc, errors.New("boom"))
	assert.True(t, strings.Contains(buf.String(), "GORM query error"))

	buf.Reset()
	l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "GORM slow query")

	buf.Reset()
	l.LogMode(logger.Silent).Trace(ctx, time.Now().Add(-time.Second), fc, errors.New("boom"))
	assert.Empty(t, buf.String())
}

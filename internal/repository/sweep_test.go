package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"billboard/internal/database"
	"billboard/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), database.GormConfig(logger.Discard))
	require.NoError(t, err)

	return gormDB, mock
}

func TestListingRepository_SweepExpiredSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewListingRepository(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "listings"`)).
		WithArgs(models.StatusActive, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "listings" SET`)).
		WithArgs(false, true, models.StatusExpired, sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), models.StatusActive, now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	// Nothing due: no UPDATE is issued.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "listings"`)).
		WithArgs(models.StatusActive, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	n, err := repo.SweepExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.SweepExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepository_MarkExpiredBeforeSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInvitationRepository(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "invitations" SET "status"=$1,"updated_at"=$2 WHERE status = $3 AND expires_at <= $4`)).
		WithArgs(models.InvitationExpired, sqlmock.AnyArg(), models.InvitationPending, now).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := repo.MarkExpiredBefore(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateMapsUniqueViolation(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "users"`)).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key value"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.User{Username: "taken", Email: "taken@example.test"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"billboard/internal/models"
	"billboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApplication(listingID, applicantID uint, at time.Time) *models.Application {
	return &models.Application{
		ListingID:       listingID,
		ApplicantID:     applicantID,
		Status:          models.ApplicationPending,
		ApplicationDate: at,
	}
}

func TestApplicationRepository_CreateCountsAndRejectsDuplicates(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewApplicationRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	dayStart := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	owner := testutil.CreateUser(t, db, "owner")
	seeker := testutil.CreateUser(t, db, "seeker")
	l := testutil.CreateListing(t, db, owner.ID, "Loft")

	require.NoError(t, repo.Create(ctx, newApplication(l.ID, seeker.ID, now), 3, dayStart))
	assert.Equal(t, 1, testutil.ReloadListing(t, db, l.ID).ApplicationCount)

	err := repo.Create(ctx, newApplication(l.ID, seeker.ID, now), 3, dayStart)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, testutil.ReloadListing(t, db, l.ID).ApplicationCount)

	exists, err := repo.Exists(ctx, l.ID, seeker.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestApplicationRepository_DailyLimitRollsOver(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewApplicationRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner")
	seeker := testutil.CreateUser(t, db, "seeker")
	var listings []*models.Listing
	for i := 0; i < 5; i++ {
		listings = append(listings, testutil.CreateListing(t, db, owner.ID, fmt.Sprintf("L%d", i)))
	}

	day1 := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := day1.Add(time.Duration(8+i) * time.Hour)
		require.NoError(t, repo.Create(ctx, newApplication(listings[i].ID, seeker.ID, at), 3, day1))
	}

	err := repo.Create(ctx, newApplication(listings[3].ID, seeker.ID, day1.Add(23*time.Hour)), 3, day1)
	assert.ErrorIs(t, err, ErrDailyLimit)

	day2 := day1.Add(24 * time.Hour)
	require.NoError(t, repo.Create(ctx, newApplication(listings[3].ID, seeker.ID, day2.Add(time.Minute)), 3, day2))

	n, err := repo.CountSince(ctx, seeker.ID, day2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestApplicationRepository_ConcurrentDuplicateHasOneWinner(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewApplicationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	owner := testutil.CreateUser(t, db, "owner")
	seeker := testutil.CreateUser(t, db, "seeker")
	l := testutil.CreateListing(t, db, owner.ID, "Loft")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		dups int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newApplication(l.ID, seeker.ID, now), 0, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, ErrDuplicate):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, dups)
	assert.Equal(t, 1, testutil.ReloadListing(t, db, l.ID).ApplicationCount)
}

func TestApplicationRepository_UpdateStatusIsConditional(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewApplicationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	owner := testutil.CreateUser(t, db, "owner")
	seeker := testutil.CreateUser(t, db, "seeker")
	l := testutil.CreateListing(t, db, owner.ID, "Loft")
	app := newApplication(l.ID, seeker.ID, now)
	require.NoError(t, repo.Create(ctx, app, 0, now))

	ok, err := repo.UpdateStatus(ctx, app.ID, models.ApplicationPending, models.ApplicationAccepted)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateStatus(ctx, app.ID, models.ApplicationPending, models.ApplicationRejected)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationAccepted, got.Status)
	require.NotNil(t, got.Applicant)
	assert.Equal(t, "seeker", got.Applicant.Username)
}

func TestApplicationRepository_Lists(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewApplicationRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

	owner := testutil.CreateUser(t, db, "owner")
	l := testutil.CreateListing(t, db, owner.ID, "Loft")
	other := testutil.CreateListing(t, db, owner.ID, "Other")
	var seekers []*models.User
	for i := 0; i < 3; i++ {
		s := testutil.CreateUser(t, db, fmt.Sprintf("seeker%d", i))
		seekers = append(seekers, s)
		require.NoError(t, repo.Create(ctx, newApplication(l.ID, s.ID, base.Add(time.Duration(i)*time.Hour)), 0, base))
	}
	require.NoError(t, repo.Create(ctx, newApplication(other.ID, seekers[0].ID, base.Add(5*time.Hour)), 0, base))

	apps, total, err := repo.ListByListing(ctx, l.ID, models.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, apps, 2)
	assert.Equal(t, seekers[2].ID, apps[0].ApplicantID, "newest first")
	require.NotNil(t, apps[0].Applicant)

	mine, total, err := repo.ListByApplicant(ctx, seekers[0].ID, models.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, mine, 2)
	require.NotNil(t, mine[0].Listing)
	assert.Equal(t, "Other", mine[0].Listing.Title)
}

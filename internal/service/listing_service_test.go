package service

import (
	"context"
	"testing"
	"time"

	"billboard/internal/models"
	"billboard/internal/notifications"
	"billboard/internal/repository"
	"billboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestListingService_CreateMergesHashtagsAndSchedulesEmbedding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")

	l, err := f.listings.CreateListing(ctx, CreateListingInput{
		ActorID: owner.ID,
		ListingInput: ListingInput{
			Category:    models.CategoryOffer,
			Type:        models.TypeStudio,
			Title:       "  Bright studio  ",
			Description: "Near the park #Kreuzberg #quiet",
			Hashtags:    []string{"#quiet", "sunny"},
			City:        "Berlin",
			Price:       floatPtr(900),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bright studio", l.Title)
	assert.Equal(t, models.StatusActive, l.Status)
	assert.True(t, l.IsActive)
	assert.True(t, l.IsPublished)
	assert.Equal(t, models.DefaultMaxInvitations, l.MaxInvitations)
	assert.ElementsMatch(t, []string{"quiet", "sunny", "kreuzberg"}, []string(l.Hashtags))
	assert.Equal(t, []uint{l.ID}, f.tasks.embeds)
	require.NotNil(t, l.User)
	assert.Equal(t, "owner", l.User.Username)
}

func TestListingService_CreateValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ListingInput
	}{
		{"missing title", ListingInput{Category: models.CategoryOffer}},
		{"bad category", ListingInput{Title: "x", Category: "lease"}},
		{"bad type", ListingInput{Title: "x", Category: models.CategoryOffer, Type: "castle"}},
		{"negative price", ListingInput{Title: "x", Category: models.CategoryOffer, Price: floatPtr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.listings.CreateListing(ctx, CreateListingInput{ActorID: 1, ListingInput: tt.in})
			assertCode(t, err, models.CodeValidation)
		})
	}
	assert.Empty(t, f.tasks.embeds)
}

func TestListingService_EmbeddingEnqueueFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.tasks.failWith = assert.AnError
	owner := testutil.CreateUser(t, f.db, "owner")

	_, err := f.listings.CreateListing(context.Background(), CreateListingInput{
		ActorID:      owner.ID,
		ListingInput: ListingInput{Title: "Room", Category: models.CategorySearch},
	})
	assert.NoError(t, err)
}

func TestListingService_DraftsAreVisibleToOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	other := testutil.CreateUser(t, f.db, "other")

	draft, err := f.listings.CreateListing(ctx, CreateListingInput{
		ActorID:      owner.ID,
		Draft:        true,
		ListingInput: ListingInput{Title: "Soon", Category: models.CategoryOffer},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, draft.Status)
	assert.False(t, draft.IsPublished)

	_, err = f.listings.GetListing(ctx, GetListingInput{ListingID: draft.ID, ViewerID: other.ID})
	assertCode(t, err, models.CodeNotFound)

	got, err := f.listings.GetListing(ctx, GetListingInput{ListingID: draft.ID, ViewerID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)

	public, err := f.listings.FindListings(ctx, FindListingsInput{ViewerID: other.ID})
	require.NoError(t, err)
	assert.Zero(t, public.Total)

	mine, err := f.listings.FindListings(ctx, FindListingsInput{
		ViewerID: owner.ID,
		Filter:   models.ListingFilter{OwnerID: owner.ID},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, mine.Total)

	spying, err := f.listings.FindListings(ctx, FindListingsInput{
		ViewerID: other.ID,
		Filter:   models.ListingFilter{OwnerID: owner.ID},
	})
	require.NoError(t, err)
	assert.Zero(t, spying.Total)
}

func TestListingService_GetCountsViewsAndMarksLiked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	viewer := testutil.CreateUser(t, f.db, "viewer")
	l := testutil.CreateListing(t, f.db, owner.ID, "Loft")

	_, err := f.listings.ToggleLike(ctx, l.ID, viewer.ID)
	require.NoError(t, err)

	got, err := f.listings.GetListing(ctx, GetListingInput{ListingID: l.ID, ViewerID: viewer.ID, CountView: true})
	require.NoError(t, err)
	assert.True(t, got.Liked)
	assert.Equal(t, 1, got.Views)

	_, err = f.listings.GetListing(ctx, GetListingInput{ListingID: 9999})
	assertCode(t, err, models.CodeNotFound)
}

func TestListingService_ToggleLikeKeepsCountAndEmitsOnLikeOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	l := testutil.CreateListing(t, f.db, owner.ID, "Loft")

	res, err := f.listings.ToggleLike(ctx, l.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: true, LikesCount: 1}, *res)

	res, err = f.listings.ToggleLike(ctx, l.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: true, LikesCount: 2}, *res)

	res, err = f.listings.ToggleLike(ctx, l.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: false, LikesCount: 1}, *res)

	var likeRows int64
	require.NoError(t, f.db.Model(&models.ListingLike{}).Where("listing_id = ?", l.ID).Count(&likeRows).Error)
	assert.EqualValues(t, testutil.ReloadListing(t, f.db, l.ID).LikesCount, likeRows)

	likes := f.event.ofType(notifications.EventNewLike)
	require.Len(t, likes, 2)
	assert.Equal(t, 2, likes[1].Data["likes_count"])
	assert.Equal(t, notifications.ListingChannel(l.ID), likes[0].Channel())
}

func TestListingService_UpdateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	other := testutil.CreateUser(t, f.db, "other")
	l := testutil.CreateListing(t, f.db, owner.ID, "Loft")

	in := ListingInput{Title: "Loft, renovated", Category: models.CategoryOffer, Type: models.TypeApartment, MaxInvitations: 5}

	_, err := f.listings.UpdateListing(ctx, UpdateListingInput{ActorID: other.ID, ListingID: l.ID, ListingInput: in})
	assertCode(t, err, models.CodeForbidden)

	_, err = f.listings.UpdateListing(ctx, UpdateListingInput{ActorID: owner.ID, ListingID: 4242, ListingInput: in})
	assertCode(t, err, models.CodeNotFound)

	updated, err := f.listings.UpdateListing(ctx, UpdateListingInput{
		ActorID: owner.ID, ListingID: l.ID, ListingInput: in, Status: models.StatusRented,
	})
	require.NoError(t, err)
	assert.Equal(t, "Loft, renovated", updated.Title)
	assert.Equal(t, models.StatusRented, updated.Status)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.IsPublished)
	assert.Contains(t, f.tasks.embeds, l.ID)

	_, err = f.listings.UpdateListing(ctx, UpdateListingInput{
		ActorID: owner.ID, ListingID: l.ID, ListingInput: in, Status: models.StatusDraft,
	})
	assertCode(t, err, models.CodeBadRequest)

	require.NoError(t, f.db.Model(&models.Listing{}).Where("id = ?", l.ID).Update("sent_invitations", 3).Error)
	in.MaxInvitations = 2
	_, err = f.listings.UpdateListing(ctx, UpdateListingInput{ActorID: owner.ID, ListingID: l.ID, ListingInput: in})
	assertCode(t, err, models.CodeBadRequest)
	assert.Equal(t, 5, testutil.ReloadListing(t, f.db, l.ID).MaxInvitations)
}

// sweepAfterRead expires due listings right after the service has read its copy.
type sweepAfterRead struct {
	repository.ListingRepository
	now time.Time
}

func (r sweepAfterRead) GetByID(ctx context.Context, id uint) (*models.Listing, error) {
	l, err := r.ListingRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.SweepExpired(ctx, r.now); err != nil {
		return nil, err
	}
	return l, nil
}

func TestListingService_UpdateRacingSweepKeepsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	now := f.clock.Now()
	expired := now.Add(-time.Minute)
	l := testutil.CreateListing(t, f.db, owner.ID, "Loft", testutil.WithExpiresAt(expired))

	svc := NewListingService(sweepAfterRead{ListingRepository: f.listingRepo, now: now}, f.event, f.tasks, f.rules)
	_, err := svc.UpdateListing(ctx, UpdateListingInput{
		ActorID:   owner.ID,
		ListingID: l.ID,
		ListingInput: ListingInput{
			Title: "Loft, new title", Category: models.CategoryOffer, Type: models.TypeApartment, ExpiresAt: &expired,
		},
	})
	assertCode(t, err, models.CodeConflict)

	got := testutil.ReloadListing(t, f.db, l.ID)
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Loft", got.Title)

	n, err := f.listingRepo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListingService_UpdateNewDeadlineRearmsReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	now := f.clock.Now()
	l := testutil.CreateListing(t, f.db, owner.ID, "Loft", testutil.WithDeadline(now.Add(2*time.Hour)))

	sent, err := f.listings.SendDeadlineReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	later := now.Add(5 * time.Hour)
	_, err = f.listings.UpdateListing(ctx, UpdateListingInput{
		ActorID:   owner.ID,
		ListingID: l.ID,
		ListingInput: ListingInput{
			Title: "Loft", Category: models.CategoryOffer, Type: models.TypeApartment, Deadline: &later,
		},
	})
	require.NoError(t, err)

	sent, err = f.listings.SendDeadlineReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Len(t, f.event.ofType(notifications.EventDeadlineReminder), 2)
}

func TestListingService_DeleteCascadesAndUnindexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	seeker := testutil.CreateUser(t, f.db, "seeker")
	l := testutil.CreateListing(t, f.db, owner.ID, "Loft")

	_, err := f.apps.Apply(ctx, ApplyInput{ListingID: l.ID, ApplicantID: seeker.ID})
	require.NoError(t, err)
	_, err = f.comments.CreateComment(ctx, l.ID, seeker.ID, "still free?")
	require.NoError(t, err)

	assertCode(t, f.listings.DeleteListing(ctx, l.ID, seeker.ID), models.CodeForbidden)
	require.NoError(t, f.listings.DeleteListing(ctx, l.ID, owner.ID))
	assert.Equal(t, []uint{l.ID}, f.tasks.unindex)

	_, err = f.listings.GetListing(ctx, GetListingInput{ListingID: l.ID})
	assertCode(t, err, models.CodeNotFound)
	var apps int64
	require.NoError(t, f.db.Model(&models.Application{}).Count(&apps).Error)
	assert.Zero(t, apps)
}

func TestListingService_PublishOnlyDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	draft := testutil.CreateListing(t, f.db, owner.ID, "Soon", testutil.WithStatus(models.StatusDraft))

	_, err := f.listings.PublishListing(ctx, draft.ID, owner.ID+1)
	assertCode(t, err, models.CodeForbidden)

	published, err := f.listings.PublishListing(ctx, draft.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, published.Status)
	assert.True(t, published.IsActive)

	_, err = f.listings.PublishListing(ctx, draft.ID, owner.ID)
	assertCode(t, err, models.CodeBadRequest)
}

func TestListingService_SweepExpiredIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	now := f.clock.Now()
	expired := testutil.CreateListing(t, f.db, owner.ID, "old", testutil.WithExpiresAt(now.Add(-time.Minute)))
	testutil.CreateListing(t, f.db, owner.ID, "fresh", testutil.WithExpiresAt(now.Add(time.Hour)))
	testutil.CreateListing(t, f.db, owner.ID, "forever")

	n, err := f.listings.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = f.listings.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got := testutil.ReloadListing(t, f.db, expired.ID)
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.False(t, got.IsActive)
}

func TestListingService_FindListingsRejectsUnknownEnums(t *testing.T) {
	f := newFixture(t)
	_, err := f.listings.FindListings(context.Background(), FindListingsInput{
		Filter: models.ListingFilter{Status: "archived"},
	})
	assertCode(t, err, models.CodeValidation)

	page, err := f.listings.FindListings(context.Background(), FindListingsInput{Sort: "random"})
	require.NoError(t, err)
	assert.Equal(t, 20, page.Limit)
}

func TestListingService_CreateListingsIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")

	_, err := f.listings.CreateListings(ctx, owner.ID, []ListingInput{
		{Title: "one", Category: models.CategoryOffer},
		{Title: "", Category: models.CategoryOffer},
	})
	assertCode(t, err, models.CodeValidation)

	created, err := f.listings.CreateListings(ctx, owner.ID, []ListingInput{
		{Title: "one", Category: models.CategoryOffer},
		{Title: "two", Category: models.CategorySearch},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "one", created[0].Title)
	assert.Equal(t, "two", created[1].Title)
	assert.Len(t, f.tasks.embeds, 2)
}

package server

import (
	"net/http"
	"strconv"
	"testing"

	"billboard/internal/models"
	"billboard/internal/service"
	"billboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingPath(id uint, suffix string) string {
	return "/api/listings/" + strconv.FormatUint(uint64(id), 10) + suffix
}

func TestListingLifecycle(t *testing.T) {
	env := newTestEnv(t, false)
	owner := testutil.CreateUser(t, env.db, "owner")
	other := testutil.CreateUser(t, env.db, "other")

	var created models.Listing
	status := env.do(t, http.MethodPost, "/api/listings", owner.ID, map[string]any{
		"category":    "offer",
		"type":        "apartment",
		"title":       "  Bright loft near the river  ",
		"description": "Quiet street #Sunny #loft",
		"city":        "Hamburg",
		"price":       950,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Bright loft near the river", created.Title)
	assert.Equal(t, models.StatusActive, created.Status)
	assert.Contains(t, []string(created.Hashtags), "sunny")

	var fetched models.Listing
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(created.ID, ""), 0, nil, &fetched))
	assert.Equal(t, 1, fetched.Views)

	var forbidden models.ErrorResponse
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, listingPath(created.ID, ""), other.ID,
		map[string]any{"category": "offer", "title": "Mine now"}, &forbidden))
	assert.Equal(t, models.CodeForbidden, forbidden.Code)

	var updated models.Listing
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, listingPath(created.ID, ""), owner.ID,
		map[string]any{"category": "offer", "type": "apartment", "title": "Bright loft, river view", "city": "Hamburg", "status": "rented"}, &updated))
	assert.Equal(t, "Bright loft, river view", updated.Title)
	assert.Equal(t, models.StatusRented, updated.Status)

	var page models.PagedListings
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/listings?city=Hamburg&status=rented", 0, nil, &page))
	assert.EqualValues(t, 1, page.Total)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, listingPath(created.ID, ""), owner.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, listingPath(created.ID, ""), 0, nil, nil))
}

func TestCreateListingValidation(t *testing.T) {
	env := newTestEnv(t, false)

	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/listings", 1,
		map[string]any{"category": "rent", "title": "x"}, &errBody))
	assert.Equal(t, models.CodeValidation, errBody.Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/listings/abc", 0, nil, &errBody))
	assert.Equal(t, "Invalid ID", errBody.Error)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/listings?furnished=perhaps", 0, nil, &errBody))
}

func TestDraftListingVisibleToOwnerUntilPublished(t *testing.T) {
	env := newTestEnv(t, false)
	owner := testutil.CreateUser(t, env.db, "owner")

	var draft models.Listing
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/listings", owner.ID,
		map[string]any{"category": "search", "title": "Looking for a room", "draft": true}, &draft))
	assert.Equal(t, models.StatusDraft, draft.Status)
	assert.False(t, draft.IsPublished)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, listingPath(draft.ID, ""), 0, nil, nil))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(draft.ID, ""), owner.ID, nil, nil))

	var mine models.PagedListings
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet,
		"/api/listings?owner_id="+strconv.FormatUint(uint64(owner.ID), 10), owner.ID, nil, &mine))
	assert.EqualValues(t, 1, mine.Total)

	var public models.PagedListings
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/listings", 0, nil, &public))
	assert.EqualValues(t, 0, public.Total)

	var published models.Listing
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, listingPath(draft.ID, "/publish"), owner.ID, nil, &published))
	assert.Equal(t, models.StatusActive, published.Status)
	assert.True(t, published.IsPublished)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(draft.ID, ""), 0, nil, nil))
}

func TestBulkCreateListings(t *testing.T) {
	env := newTestEnv(t, false)
	owner := testutil.CreateUser(t, env.db, "owner")

	var resp struct {
		Listings []models.Listing `json:"listings"`
		Count    int              `json:"count"`
	}
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/listings/bulk", owner.ID, map[string]any{
		"listings": []map[string]any{
			{"category": "offer", "title": "Room one"},
			{"category": "offer", "title": "Room two"},
		},
	}, &resp))
	assert.Equal(t, 2, resp.Count)
	for _, l := range resp.Listings {
		assert.Equal(t, models.StatusActive, l.Status)
	}

	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/listings/bulk", owner.ID, map[string]any{
		"listings": []map[string]any{{"category": "offer", "title": "ok"}, {"category": "offer", "title": ""}},
	}, &errBody))
	assert.Contains(t, errBody.Error, "listing 1")

	var count int64
	require.NoError(t, env.db.Model(&models.Listing{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestToggleLike(t *testing.T) {
	env := newTestEnv(t, false)
	owner := testutil.CreateUser(t, env.db, "owner")
	fan := testutil.CreateUser(t, env.db, "fan")
	listing := testutil.CreateListing(t, env.db, owner.ID, "Garden flat")

	var result service.LikeResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, listingPath(listing.ID, "/like"), fan.ID, nil, &result))
	assert.True(t, result.Liked)
	assert.Equal(t, 1, result.LikesCount)

	var fetched models.Listing
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(listing.ID, ""), fan.ID, nil, &fetched))
	assert.True(t, fetched.Liked)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, listingPath(listing.ID, "/like"), fan.ID, nil, &result))
	assert.False(t, result.Liked)
	assert.Equal(t, 0, result.LikesCount)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, listingPath(listing.ID, "/like"), 0, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, listingPath(9999, "/like"), fan.ID, nil, nil))
}

func TestApplicationAndInvitationFlow(t *testing.T) {
	env := newTestEnv(t, false)
	owner := testutil.CreateUser(t, env.db, "owner")
	seeker := testutil.CreateUser(t, env.db, "seeker")
	stranger := testutil.CreateUser(t, env.db, "stranger")
	listing := testutil.CreateListing(t, env.db, owner.ID, "Two rooms in Leipzig")

	var app models.Application
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, listingPath(listing.ID, "/applications"), seeker.ID,
		map[string]any{"message": "I'd love to see it"}, &app))
	assert.Equal(t, models.ApplicationPending, app.Status)

	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, listingPath(listing.ID, "/applications"), seeker.ID, nil, &errBody))
	assert.Equal(t, "You have already applied to this listing", errBody.Error)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, listingPath(listing.ID, "/applications"), owner.ID, nil, nil))

	var forOwner service.ApplicationPage
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(listing.ID, "/applications"), owner.ID, nil, &forOwner))
	assert.EqualValues(t, 1, forOwner.Total)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, listingPath(listing.ID, "/applications"), stranger.ID, nil, nil))

	var mine service.ApplicationPage
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/applications/me", seeker.ID, nil, &mine))
	assert.EqualValues(t, 1, mine.Total)

	// Invitations only go to prior applicants.
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, listingPath(listing.ID, "/invitations"), owner.ID,
		map[string]any{"invitee_id": stranger.ID}, nil))
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, listingPath(listing.ID, "/invitations"), seeker.ID,
		map[string]any{"invitee_id": stranger.ID}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, listingPath(listing.ID, "/invitations"), owner.ID,
		map[string]any{}, nil))

	var inv models.Invitation
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, listingPath(listing.ID, "/invitations"), owner.ID,
		map[string]any{"invitee_id": seeker.ID, "message": "Come by on Friday"}, &inv))
	assert.Equal(t, models.InvitationPending, inv.Status)
	assert.Equal(t, 1, testutil.ReloadListing(t, env.db, listing.ID).SentInvitations)

	var invited service.InvitationPage
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/invitations/me", seeker.ID, nil, &invited))
	require.Len(t, invited.Invitations, 1)

	invPath := "/api/invitations/" + strconv.FormatUint(uint64(inv.ID), 10) + "/status"
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, invPath, stranger.ID, map[string]any{"status": "accepted"}, nil))

	var answered models.Invitation
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, invPath, seeker.ID, map[string]any{"status": "accepted"}, &answered))
	assert.Equal(t, models.InvitationAccepted, answered.Status)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, invPath, seeker.ID, map[string]any{"status": "rejected"}, nil))

	appPath := "/api/applications/" + strconv.FormatUint(uint64(app.ID), 10)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPut, appPath+"/status", seeker.ID, map[string]any{"status": "accepted"}, nil))

	var decided models.Application
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, appPath+"/status", owner.ID, map[string]any{"status": "accepted"}, &decided))
	assert.Equal(t, models.ApplicationAccepted, decided.Status)

	var viewed models.Application
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, appPath, seeker.ID, nil, &viewed))
	assert.Equal(t, models.ApplicationAccepted, viewed.Status)
}

func TestCommentHandlers(t *testing.T) {
	env := newTestEnv(t, false)
	owner := testutil.CreateUser(t, env.db, "owner")
	author := testutil.CreateUser(t, env.db, "author")
	stranger := testutil.CreateUser(t, env.db, "stranger")
	listing := testutil.CreateListing(t, env.db, owner.ID, "Studio in Bremen")

	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, listingPath(listing.ID, "/comments"), author.ID,
		map[string]any{"content": "   "}, &errBody))
	assert.Equal(t, models.CodeValidation, errBody.Code)

	var comment models.Comment
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, listingPath(listing.ID, "/comments"), author.ID,
		map[string]any{"content": "Is the kitchen furnished?"}, &comment))

	var comments []models.Comment
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(listing.ID, "/comments"), 0, nil, &comments))
	require.Len(t, comments, 1)
	assert.Equal(t, "Is the kitchen furnished?", comments[0].Content)

	commentPath := listingPath(listing.ID, "/comments/"+strconv.FormatUint(uint64(comment.ID), 10))
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, commentPath, stranger.ID, nil, nil))
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, commentPath, owner.ID, nil, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, listingPath(listing.ID, "/comments/x"), owner.ID, nil, &errBody))
	assert.Equal(t, "Invalid comment ID", errBody.Error)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(listing.ID, "/comments"), 0, nil, &comments))
	assert.Empty(t, comments)
}

func TestSimilarListingsFallBackToText(t *testing.T) {
	env := newTestEnv(t, false)
	owner := testutil.CreateUser(t, env.db, "owner")
	balcony := testutil.CreateListing(t, env.db, owner.ID, "Flat with balcony")
	testutil.CreateListing(t, env.db, owner.ID, "Basement room")
	testutil.CreateListing(t, env.db, owner.ID, "Another flat with balcony")

	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/listings/similar", 0, nil, &errBody))
	assert.Equal(t, models.CodeValidation, errBody.Code)

	var result service.SimilarResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/listings/similar?q=balcony&k=5", 0, nil, &result))
	assert.Equal(t, service.SourceText, result.Source)
	assert.Len(t, result.Listings, 2)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, listingPath(balcony.ID, "/similar"), 0, nil, &result))
	for _, l := range result.Listings {
		assert.NotEqual(t, balcony.ID, l.ID)
	}
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, listingPath(9999, "/similar"), 0, nil, nil))
}

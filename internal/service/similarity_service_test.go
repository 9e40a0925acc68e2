package service

import (
	"context"
	"errors"
	"testing"

	"billboard/internal/embedding"
	"billboard/internal/models"
	"billboard/internal/testutil"
	"billboard/internal/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenIndex struct{}

func (brokenIndex) Upsert(context.Context, string, []float32, map[string]any) error {
	return errors.New("connection refused")
}

func (brokenIndex) Query(context.Context, []float32, int, vectorindex.Filter) ([]vectorindex.Match, error) {
	return nil, errors.New("connection refused")
}

func (brokenIndex) Delete(context.Context, string) error { return errors.New("connection refused") }

type panickyEmbedder struct{}

func (panickyEmbedder) Embed(context.Context, string) ([]float32, error) { panic("model crashed") }

func listingIDs(ls []*models.Listing) []uint {
	out := make([]uint, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func seedSearchListings(t *testing.T, f *fixture) []*models.Listing {
	t.Helper()
	owner := testutil.CreateUser(t, f.db, "owner")
	ctx := context.Background()
	var out []*models.Listing
	for _, in := range []ListingInput{
		{Title: "Sunny loft in Kreuzberg", Description: "quiet courtyard, balcony", Category: models.CategoryOffer, City: "Berlin"},
		{Title: "Room in shared flat", Description: "sunny room near the park", Category: models.CategoryOffer, Type: models.TypeRoom, City: "Hamburg"},
		{Title: "Looking for a studio", Description: "student needs place", Category: models.CategorySearch, City: "Berlin"},
	} {
		l, err := f.listings.CreateListing(ctx, CreateListingInput{ActorID: owner.ID, ListingInput: in})
		require.NoError(t, err)
		out = append(out, l)
	}
	return out
}

func TestSimilarityService_FallbackMatchesTextSearch(t *testing.T) {
	tests := []struct {
		name     string
		embedder embedding.Embedder
		index    vectorindex.Index
	}{
		{"index down", embedding.NewHashEmbedder(64), brokenIndex{}},
		{"embedder panics", panickyEmbedder{}, vectorindex.NewMemoryIndex()},
		{"empty index", embedding.NewHashEmbedder(64), vectorindex.NewMemoryIndex()},
		{"nothing configured", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			seedSearchListings(t, f)

			sim := NewSimilarityService(embedding.NewGateway(tt.embedder), vectorindex.NewAdapter(tt.index, 0), f.listingRepo)
			got, err := sim.FindSimilar(ctx, "sunny", 5, models.ListingFilter{})
			require.NoError(t, err)
			assert.Equal(t, SourceText, got.Source)

			direct, err := f.listings.FindListings(ctx, FindListingsInput{
				Filter: models.ListingFilter{Query: "sunny"},
				Page:   models.Page{Limit: 5},
			})
			require.NoError(t, err)
			require.Len(t, direct.Listings, 2)
			assert.Equal(t, listingIDs(direct.Listings), listingIDs(got.Listings))
		})
	}
}

func TestSimilarityService_VectorPathHydratesActiveHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := seedSearchListings(t, f)

	index := vectorindex.NewMemoryIndex()
	sim := NewSimilarityService(embedding.NewGateway(embedding.NewHashEmbedder(128)), vectorindex.NewAdapter(index, 0), f.listingRepo)
	for _, l := range seeded {
		require.NoError(t, sim.IndexListing(ctx, l.ID))
	}
	assert.Equal(t, 3, index.Len())

	// A point whose listing is gone is dropped, not an error.
	stale, err := embedding.NewHashEmbedder(128).Embed(ctx, "sunny loft kreuzberg")
	require.NoError(t, err)
	require.NoError(t, index.Upsert(ctx, "9999", stale, map[string]any{"status": "active", "category": "offer"}))

	got, err := sim.FindSimilar(ctx, "sunny loft kreuzberg", 10, models.ListingFilter{Category: models.CategoryOffer})
	require.NoError(t, err)
	assert.Equal(t, SourceVector, got.Source)
	require.NotEmpty(t, got.Listings)
	assert.Equal(t, seeded[0].ID, got.Listings[0].ID)
	for _, l := range got.Listings {
		assert.Equal(t, models.CategoryOffer, l.Category)
	}

	similar, err := sim.SimilarToListing(ctx, seeded[0].ID, 5)
	require.NoError(t, err)
	assert.NotContains(t, listingIDs(similar.Listings), seeded[0].ID)
}

func TestSimilarityService_IndexDropsInactiveListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	l := testutil.CreateListing(t, f.db, owner.ID, "Loft")

	index := vectorindex.NewMemoryIndex()
	sim := NewSimilarityService(embedding.NewGateway(embedding.NewHashEmbedder(32)), vectorindex.NewAdapter(index, 0), f.listingRepo)
	require.NoError(t, sim.IndexListing(ctx, l.ID))
	assert.Equal(t, 1, index.Len())

	require.NoError(t, f.db.Model(&models.Listing{}).Where("id = ?", l.ID).Updates(models.StatusColumns(models.StatusRented)).Error)
	require.NoError(t, sim.IndexListing(ctx, l.ID))
	assert.Zero(t, index.Len())

	require.NoError(t, sim.IndexListing(ctx, 4321))
}

func TestSimilarityService_RejectsEmptyQuery(t *testing.T) {
	f := newFixture(t)
	sim := NewSimilarityService(nil, nil, f.listingRepo)
	_, err := sim.FindSimilar(context.Background(), "  ", 5, models.ListingFilter{})
	assertCode(t, err, models.CodeValidation)
	assert.Equal(t, defaultSimilarK, clampK(0))
	assert.Equal(t, maxSimilarK, clampK(1000))
}

func TestMatchesFilterAgreesWithListingQuery(t *testing.T) {
	active := &models.Listing{
		Status: models.StatusActive, IsActive: true, IsPublished: true,
		Category: models.CategoryOffer, City: "Berlin", Hashtags: models.StringList{"sunny", "loft"},
	}
	rented := &models.Listing{Status: models.StatusRented, IsPublished: true, Category: models.CategoryOffer}
	draft := &models.Listing{Status: models.StatusDraft, Category: models.CategoryOffer}

	tests := []struct {
		name    string
		listing *models.Listing
		filter  models.ListingFilter
		want    bool
	}{
		{"active by default", active, models.ListingFilter{}, true},
		{"inactive hidden by default", rented, models.ListingFilter{}, false},
		{"status filter selects rented", rented, models.ListingFilter{Status: models.StatusRented}, true},
		{"status filter excludes active", active, models.ListingFilter{Status: models.StatusRented}, false},
		{"drafts never match", draft, models.ListingFilter{Status: models.StatusDraft}, false},
		{"hashtag present", active, models.ListingFilter{Hashtag: "sunny"}, true},
		{"hashtag case-insensitive", active, models.ListingFilter{Hashtag: "Loft"}, true},
		{"hashtag is an exact tag", active, models.ListingFilter{Hashtag: "sun"}, false},
		{"hashtag absent", active, models.ListingFilter{Hashtag: "garden"}, false},
		{"city substring", active, models.ListingFilter{City: "berl"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesFilter(tt.listing, tt.filter))
		})
	}
}

func TestSimilarityService_VectorPathHonorsHashtagFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")

	var ids []uint
	for _, in := range []ListingInput{
		{Title: "Sunny loft", Description: "top floor #sunny", Category: models.CategoryOffer},
		{Title: "Sunny room", Description: "garden side #garden", Category: models.CategoryOffer},
	} {
		l, err := f.listings.CreateListing(ctx, CreateListingInput{ActorID: owner.ID, ListingInput: in})
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}

	sim := NewSimilarityService(embedding.NewGateway(embedding.NewHashEmbedder(64)),
		vectorindex.NewAdapter(vectorindex.NewMemoryIndex(), 0), f.listingRepo)
	for _, id := range ids {
		require.NoError(t, sim.IndexListing(ctx, id))
	}

	got, err := sim.FindSimilar(ctx, "sunny", 10, models.ListingFilter{Hashtag: "garden"})
	require.NoError(t, err)
	assert.Equal(t, SourceVector, got.Source)
	assert.Equal(t, []uint{ids[1]}, listingIDs(got.Listings))
}

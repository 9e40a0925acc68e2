package service

import (
	"context"
	"strconv"
	"strings"

	"billboard/internal/embedding"
	"billboard/internal/middleware"
	"billboard/internal/models"
	"billboard/internal/observability"
	"billboard/internal/repository"
	"billboard/internal/vectorindex"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultSimilarK = 10
	maxSimilarK     = 50

	SourceVector = "vector"
	SourceText   = "text"
)

// SimilarResult is the best available result set of a similarity search.
// Source tells whether it came from the vector index or the text fallback.
type SimilarResult struct {
	Listings []*models.Listing `json:"listings"`
	Source   string            `json:"source"`
}

type SimilarityService struct {
	gateway  *embedding.Gateway
	index    *vectorindex.Adapter
	listings repository.ListingRepository
}

func NewSimilarityService(gateway *embedding.Gateway, index *vectorindex.Adapter, listings repository.ListingRepository) *SimilarityService {
	return &SimilarityService{gateway: gateway, index: index, listings: listings}
}

// IndexListing refreshes the vector index entry of a listing. Listings that
// are gone or not active are removed from the index instead.
func (s *SimilarityService) IndexListing(ctx context.Context, listingID uint) error {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.UnindexListing(ctx, listingID)
			return nil
		}
		return err
	}
	if listing.Status != models.StatusActive {
		s.UnindexListing(ctx, listingID)
		return nil
	}

	record, err := s.gateway.EmbedListing(ctx, listing)
	if err != nil {
		return err
	}
	s.index.Upsert(ctx, embedding.PointID(record.ListingID), record.Vector, record.Metadata)
	return nil
}

// UnindexListing drops a listing from the vector index.
func (s *SimilarityService) UnindexListing(ctx context.Context, listingID uint) {
	s.index.Delete(ctx, embedding.PointID(listingID))
}

func clampK(k int) int {
	if k <= 0 {
		return defaultSimilarK
	}
	if k > maxSimilarK {
		return maxSimilarK
	}
	return k
}

// FindSimilar ranks active listings by similarity to query. When the vector
// path yields nothing, for any reason, it answers with the free-text listing
// query instead. Embedder and index failures never surface.
func (s *SimilarityService) FindSimilar(ctx context.Context, query string, k int, filter models.ListingFilter) (*SimilarResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Query is required")
	}
	k = clampK(k)

	ctx, span := observability.StartSpan(ctx, "similarity.FindSimilar", attribute.Int("k", k))
	defer span.End()

	hits, err := s.vectorSearch(ctx, query, k, filter, 0)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(hits) > 0 {
		observability.SimilarSearches.WithLabelValues(SourceVector).Inc()
		return &SimilarResult{Listings: hits, Source: SourceVector}, nil
	}

	textFilter := filter
	textFilter.Query = query
	page, err := s.textSearch(ctx, textFilter, k)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	observability.SimilarSearches.WithLabelValues(SourceText).Inc()
	return &SimilarResult{Listings: page, Source: SourceText}, nil
}

// SimilarToListing finds listings like the given one, never including it.
func (s *SimilarityService) SimilarToListing(ctx context.Context, listingID uint, k int) (*SimilarResult, error) {
	k = clampK(k)
	seed, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "Listing", listingID)
	}
	if seed.Status == models.StatusDraft {
		return nil, models.NewNotFoundError("Listing", listingID)
	}

	ctx, span := observability.StartSpan(ctx, "similarity.SimilarToListing",
		attribute.Int64("listing.id", int64(listingID)), attribute.Int("k", k))
	defer span.End()

	filter := models.ListingFilter{Category: seed.Category, Type: seed.Type}
	hits, err := s.vectorSearch(ctx, embedding.GenerateText(seed), k, filter, seed.ID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(hits) > 0 {
		observability.SimilarSearches.WithLabelValues(SourceVector).Inc()
		return &SimilarResult{Listings: hits, Source: SourceVector}, nil
	}

	filter.City = seed.City
	page, err := s.textSearch(ctx, filter, k+1)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	out := make([]*models.Listing, 0, k)
	for _, l := range page {
		if l.ID != seed.ID && len(out) < k {
			out = append(out, l)
		}
	}
	observability.SimilarSearches.WithLabelValues(SourceText).Inc()
	return &SimilarResult{Listings: out, Source: SourceText}, nil
}

// vectorSearch returns hydrated vector hits in rank order. Embedding and
// index failures yield an empty result; only store errors are returned.
func (s *SimilarityService) vectorSearch(ctx context.Context, text string, k int, filter models.ListingFilter, exclude uint) ([]*models.Listing, error) {
	if s.gateway == nil || s.index == nil {
		return nil, nil
	}
	vec, err := s.gateway.Embed(ctx, text)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "similarity search falling back to text", "error", err)
		return nil, nil
	}

	vf := vectorindex.Filter{}
	if filter.Status == "" || filter.Status == models.StatusActive {
		vf["status"] = string(models.StatusActive)
	}
	if filter.Category != "" {
		vf["category"] = string(filter.Category)
	}
	if filter.Type != "" {
		vf["type"] = string(filter.Type)
	}

	want := k
	if exclude != 0 {
		want++
	}
	matches := s.index.Query(ctx, vec, want, vf)
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.ParseUint(m.ID, 10, 64)
		if err != nil || uint(id) == exclude {
			continue
		}
		ids = append(ids, uint(id))
	}
	found, err := s.listings.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Listing, 0, len(found))
	for _, l := range found {
		if len(out) == k {
			break
		}
		// The index is a derived projection and may lag the store.
		if !matchesFilter(l, filter) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *SimilarityService) textSearch(ctx context.Context, filter models.ListingFilter, limit int) ([]*models.Listing, error) {
	filter.OwnerID = 0
	filter.PublishedOnly = true
	page, err := s.listings.FindPaged(ctx, filter, models.Page{Limit: limit}, models.SortNewest)
	if err != nil {
		return nil, err
	}
	return page.Listings, nil
}

// matchesFilter applies to a hydrated listing the predicates textSearch
// hands to the store, so both search paths agree.
func matchesFilter(l *models.Listing, f models.ListingFilter) bool {
	if f.Status != "" {
		if l.Status != f.Status {
			return false
		}
	} else if !l.IsActive {
		return false
	}
	if !l.IsPublished {
		return false
	}
	if f.Hashtag != "" && !hasHashtag(l.Hashtags, f.Hashtag) {
		return false
	}
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.Type != "" && l.Type != f.Type {
		return false
	}
	if f.City != "" && !containsFold(l.City, f.City) {
		return false
	}
	if f.Location != "" && !containsFold(l.Location, f.Location) {
		return false
	}
	features := []struct {
		want *bool
		got  bool
	}{
		{f.Furnished, l.Furnished}, {f.Balcony, l.Balcony}, {f.Garden, l.Garden}, {f.Parking, l.Parking},
		{f.Elevator, l.Elevator}, {f.PetsAllowed, l.PetsAllowed}, {f.SmokingAllowed, l.SmokingAllowed},
		{f.Accessible, l.Accessible},
	}
	for _, ft := range features {
		if ft.want != nil && *ft.want != ft.got {
			return false
		}
	}
	return inRange(l.Price, f.MinPrice, f.MaxPrice) &&
		inRange(l.Size, f.MinSize, f.MaxSize) &&
		inRange(l.Rooms, f.MinRooms, f.MaxRooms)
}

func hasHashtag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

func inRange[T int | float64](v, lo, hi *T) bool {
	if lo == nil && hi == nil {
		return true
	}
	if v == nil {
		return false
	}
	if lo != nil && *v < *lo {
		return false
	}
	if hi != nil && (*v < 0 || *v > *hi) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"billboard/internal/content"
	"billboard/internal/middleware"
	"billboard/internal/models"
	"billboard/internal/notifications"
	"billboard/internal/observability"
	"billboard/internal/repository"
)

const (
	maxTitleLen        = 200
	maxDescriptionLen  = 10000
	maxListingImages   = 20
	maxBulkListings    = 50
	deadlineBatchLimit = 200
)

type ListingService struct {
	listings repository.ListingRepository
	events   EventPublisher
	tasks    TaskEnqueuer
	rules    Rules
}

// ListingInput holds the owner-editable fields of a listing.
type ListingInput struct {
	Category    models.ListingCategory `json:"category"`
	Type        models.ListingType     `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Content     string                 `json:"content"`

	Location string `json:"location"`
	City     string `json:"city"`
	District string `json:"district"`
	Address  string `json:"address"`

	Price         *float64   `json:"price"`
	Currency      string     `json:"currency"`
	PricePeriod   string     `json:"price_period"`
	Size          *float64   `json:"size"`
	Rooms         *int       `json:"rooms"`
	Bedrooms      *int       `json:"bedrooms"`
	Bathrooms     *int       `json:"bathrooms"`
	AvailableFrom *time.Time `json:"available_from"`

	Furnished      bool     `json:"furnished"`
	Balcony        bool     `json:"balcony"`
	Garden         bool     `json:"garden"`
	Parking        bool     `json:"parking"`
	Elevator       bool     `json:"elevator"`
	PetsAllowed    bool     `json:"pets_allowed"`
	SmokingAllowed bool     `json:"smoking_allowed"`
	Accessible     bool     `json:"accessible"`
	Amenities      []string `json:"amenities"`
	Hashtags       []string `json:"hashtags"`
	Images         []string `json:"images"`

	MaxInvitations int        `json:"max_invitations"`
	Deadline       *time.Time `json:"deadline"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

type CreateListingInput struct {
	ActorID uint
	// Draft creates the listing unpublished; it goes live through PublishListing.
	Draft bool
	ListingInput
}

type UpdateListingInput struct {
	ActorID   uint
	ListingID uint
	// Status optionally moves a published listing between active, inactive and rented.
	Status models.ListingStatus
	ListingInput
}

type GetListingInput struct {
	ListingID uint
	ViewerID  uint
	CountView bool
}

type FindListingsInput struct {
	Filter   models.ListingFilter
	Page     models.Page
	Sort     string
	ViewerID uint
}

// LikeResult is the state after a like toggle.
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

func NewListingService(
	listings repository.ListingRepository,
	events EventPublisher,
	tasks TaskEnqueuer,
	rules Rules,
) *ListingService {
	return &ListingService{
		listings: listings,
		events:   events,
		tasks:    tasks,
		rules:    rules,
	}
}

func (s *ListingService) validate(in *ListingInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return models.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLen {
		return models.NewValidationError(fmt.Sprintf("Title too long (max %d characters)", maxTitleLen))
	}
	if utf8.RuneCountInString(in.Description)+utf8.RuneCountInString(in.Content) > maxDescriptionLen {
		return models.NewValidationError(fmt.Sprintf("Description too long (max %d characters)", maxDescriptionLen))
	}
	if !in.Category.Valid() {
		return models.NewValidationError("Invalid category")
	}
	if in.Type == "" {
		in.Type = models.TypeOther
	}
	if !in.Type.Valid() {
		return models.NewValidationError("Invalid type")
	}
	if in.Price != nil && *in.Price < 0 {
		return models.NewValidationError("Price cannot be negative")
	}
	if in.Size != nil && *in.Size < 0 {
		return models.NewValidationError("Size cannot be negative")
	}
	for _, n := range []*int{in.Rooms, in.Bedrooms, in.Bathrooms} {
		if n != nil && *n < 0 {
			return models.NewValidationError("Room counts cannot be negative")
		}
	}
	if len(in.Images) > maxListingImages {
		return models.NewValidationError(fmt.Sprintf("Too many images (max %d)", maxListingImages))
	}
	if in.MaxInvitations < 0 {
		return models.NewValidationError("max_invitations cannot be negative")
	}
	if in.MaxInvitations == 0 {
		in.MaxInvitations = s.rules.DefaultMaxInvitations
	}
	return nil
}

// apply copies the input onto l. Hashtags are the cleaned union of the given
// tags and those written in the text.
func (in *ListingInput) apply(l *models.Listing) {
	l.Category = in.Category
	l.Type = in.Type
	l.Title = in.Title
	l.Description = strings.TrimSpace(in.Description)
	l.Content = strings.TrimSpace(in.Content)
	l.Location = strings.TrimSpace(in.Location)
	l.City = strings.TrimSpace(in.City)
	l.District = strings.TrimSpace(in.District)
	l.Address = strings.TrimSpace(in.Address)
	l.Price = in.Price
	l.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	l.PricePeriod = strings.TrimSpace(in.PricePeriod)
	l.Size = in.Size
	l.Rooms = in.Rooms
	l.Bedrooms = in.Bedrooms
	l.Bathrooms = in.Bathrooms
	l.AvailableFrom = utcPtr(in.AvailableFrom)
	l.Furnished = in.Furnished
	l.Balcony = in.Balcony
	l.Garden = in.Garden
	l.Parking = in.Parking
	l.Elevator = in.Elevator
	l.PetsAllowed = in.PetsAllowed
	l.SmokingAllowed = in.SmokingAllowed
	l.Accessible = in.Accessible
	l.Amenities = models.StringList(trimAll(in.Amenities))
	l.Images = models.StringList(trimAll(in.Images))
	l.Hashtags = models.StringList(content.MergeHashtags(
		in.Hashtags,
		content.ExtractHashtags(in.Title),
		content.ExtractHashtags(in.Description),
		content.ExtractHashtags(in.Content),
	))
	l.MaxInvitations = in.MaxInvitations
	l.Deadline = utcPtr(in.Deadline)
	l.ExpiresAt = utcPtr(in.ExpiresAt)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CreateListing stores a listing as a draft or directly active, then
// schedules its embedding. Embedding failures never fail the create.
func (s *ListingService) CreateListing(ctx context.Context, in CreateListingInput) (*models.Listing, error) {
	if err := s.validate(&in.ListingInput); err != nil {
		return nil, err
	}

	listing := &models.Listing{UserID: in.ActorID}
	in.apply(listing)
	if in.Draft {
		listing.ApplyStatus(models.StatusDraft)
	} else {
		listing.ApplyStatus(models.StatusActive)
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, err
	}
	enqueueEmbed(ctx, s.tasks, listing.ID)

	return s.listings.GetByID(ctx, listing.ID)
}

// CreateListings creates several active listings for one owner in a single
// transaction. Any invalid entry rejects the whole batch.
func (s *ListingService) CreateListings(ctx context.Context, actorID uint, inputs []ListingInput) ([]*models.Listing, error) {
	if len(inputs) == 0 {
		return nil, models.NewValidationError("At least one listing is required")
	}
	if len(inputs) > maxBulkListings {
		return nil, models.NewValidationError(fmt.Sprintf("Too many listings (max %d)", maxBulkListings))
	}

	listings := make([]*models.Listing, 0, len(inputs))
	for i := range inputs {
		if err := s.validate(&inputs[i]); err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				return nil, models.NewValidationError(fmt.Sprintf("listing %d: %s", i, appErr.Message))
			}
			return nil, err
		}
		l := &models.Listing{UserID: actorID}
		inputs[i].apply(l)
		l.ApplyStatus(models.StatusActive)
		listings = append(listings, l)
	}

	if err := s.listings.CreateBatch(ctx, listings); err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
		enqueueEmbed(ctx, s.tasks, l.ID)
	}
	return s.listings.GetByIDs(ctx, ids)
}

// GetListing returns a listing. Drafts are visible to their owner only.
func (s *ListingService) GetListing(ctx context.Context, in GetListingInput) (*models.Listing, error) {
	listing, err := s.listings.GetCached(ctx, in.ListingID)
	if err != nil {
		return nil, notFound(err, "Listing", in.ListingID)
	}
	if listing.Status == models.StatusDraft && listing.UserID != in.ViewerID {
		return nil, models.NewNotFoundError("Listing", in.ListingID)
	}

	if in.CountView {
		if err := s.listings.IncrementViews(ctx, listing.ID); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to count listing view", "listing_id", listing.ID, "error", err)
		} else {
			listing.Views++
		}
	}

	if in.ViewerID != 0 {
		liked, err := s.listings.IsLiked(ctx, listing.ID, in.ViewerID)
		if err != nil {
			return nil, err
		}
		listing.Liked = liked
	}
	return listing, nil
}

// IncrementView counts one view of a listing.
func (s *ListingService) IncrementView(ctx context.Context, listingID uint) error {
	return s.listings.IncrementViews(ctx, listingID)
}

func (s *ListingService) ownedListing(ctx context.Context, listingID, actorID uint, action string) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "Listing", listingID)
	}
	if listing.UserID != actorID {
		return nil, models.NewForbiddenError("You can only " + action + " your own listings")
	}
	return listing, nil
}

// UpdateListing replaces the editable fields of a listing.
func (s *ListingService) UpdateListing(ctx context.Context, in UpdateListingInput) (*models.Listing, error) {
	listing, err := s.ownedListing(ctx, in.ListingID, in.ActorID, "update")
	if err != nil {
		return nil, err
	}
	if err := s.validate(&in.ListingInput); err != nil {
		return nil, err
	}
	if in.MaxInvitations < listing.SentInvitations {
		return nil, models.NewBadRequestError(fmt.Sprintf(
			"max_invitations cannot be lower than the %d invitations already sent", listing.SentInvitations))
	}

	readStatus := listing.Status
	if in.Status != "" && in.Status != listing.Status {
		switch {
		case listing.Status == models.StatusDraft:
			return nil, models.NewBadRequestError("Draft listings must be published first")
		case in.Status == models.StatusActive, in.Status == models.StatusInactive, in.Status == models.StatusRented:
			listing.ApplyStatus(in.Status)
		default:
			return nil, models.NewBadRequestError("Invalid status transition")
		}
	}

	oldDeadline := listing.Deadline
	in.apply(listing)
	if !sameTime(oldDeadline, listing.Deadline) {
		listing.DeadlineRemindedAt = nil
	}
	if err := s.listings.Update(ctx, listing, readStatus); err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusChanged):
			return nil, models.NewConflictError("Listing status changed, reload and try again")
		case errors.Is(err, repository.ErrCapacityBelowSent):
			return nil, models.NewBadRequestError("max_invitations cannot be lower than invitations already sent")
		case repository.IsNotFound(err):
			return nil, models.NewNotFoundError("Listing", in.ListingID)
		}
		return nil, err
	}
	enqueueEmbed(ctx, s.tasks, listing.ID)

	return s.listings.GetByID(ctx, listing.ID)
}

// DeleteListing removes a listing with its likes, comments, invitations and
// applications, then drops it from the vector index.
func (s *ListingService) DeleteListing(ctx context.Context, listingID, actorID uint) error {
	if _, err := s.ownedListing(ctx, listingID, actorID, "delete"); err != nil {
		return err
	}
	if err := s.listings.Delete(ctx, listingID); err != nil {
		return notFound(err, "Listing", listingID)
	}
	if s.tasks != nil {
		if err := s.tasks.EnqueueListingUnindex(ctx, listingID); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to enqueue listing unindex", "listing_id", listingID, "error", err)
		}
	}
	return nil
}

var validSorts = map[string]struct{}{
	models.SortNewest: {}, models.SortOldest: {}, models.SortPriceAsc: {}, models.SortPriceDesc: {},
	models.SortPopular: {}, models.SortMostLiked: {}, models.SortDeadline: {},
}

// FindListings runs a filtered, sorted, paged listing query. Drafts only
// show up when owners list their own listings.
func (s *ListingService) FindListings(ctx context.Context, in FindListingsInput) (*models.PagedListings, error) {
	filter := in.Filter
	if filter.OwnerID == 0 || filter.OwnerID != in.ViewerID {
		filter.PublishedOnly = true
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, models.NewValidationError("Invalid status")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, models.NewValidationError("Invalid category")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, models.NewValidationError("Invalid type")
	}
	filter.Hashtag = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(filter.Hashtag)), "#")
	filter.Query = strings.TrimSpace(filter.Query)

	sort := in.Sort
	if _, ok := validSorts[sort]; !ok {
		sort = models.SortNewest
	}

	page, err := s.listings.FindPaged(ctx, filter, normalizePage(in.Page), sort)
	if err != nil {
		return nil, err
	}
	if err := s.markLiked(ctx, in.ViewerID, page.Listings); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *ListingService) markLiked(ctx context.Context, viewerID uint, listings []*models.Listing) error {
	if viewerID == 0 || len(listings) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	liked, err := s.listings.LikedIDs(ctx, viewerID, ids)
	if err != nil {
		return err
	}
	set := make(map[uint]struct{}, len(liked))
	for _, id := range liked {
		set[id] = struct{}{}
	}
	for _, l := range listings {
		_, l.Liked = set[l.ID]
	}
	return nil
}

// ToggleLike likes the listing, or unlikes it if the actor already liked it.
// Only a like emits new_like.
func (s *ListingService) ToggleLike(ctx context.Context, listingID, actorID uint) (*LikeResult, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "Listing", listingID)
	}
	if listing.Status == models.StatusDraft && listing.UserID != actorID {
		return nil, models.NewNotFoundError("Listing", listingID)
	}

	already, err := s.listings.IsLiked(ctx, listingID, actorID)
	if err != nil {
		return nil, err
	}

	added := false
	if already {
		if _, err := s.listings.Unlike(ctx, listingID, actorID); err != nil {
			return nil, err
		}
	} else {
		if added, err = s.listings.Like(ctx, listingID, actorID); err != nil {
			return nil, err
		}
	}

	fresh, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "Listing", listingID)
	}
	result := &LikeResult{Liked: !already, LikesCount: fresh.LikesCount}

	if added {
		publish(ctx, s.events, notifications.NewLikeEvent(listingID, actorID, fresh.LikesCount, s.rules.now()))
	}
	return result, nil
}

// PublishListing moves the owner's draft to active.
func (s *ListingService) PublishListing(ctx context.Context, listingID, actorID uint) (*models.Listing, error) {
	listing, err := s.ownedListing(ctx, listingID, actorID, "publish")
	if err != nil {
		return nil, err
	}
	if listing.Status != models.StatusDraft {
		return nil, models.NewBadRequestError("Only draft listings can be published")
	}

	ok, err := s.listings.Publish(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewBadRequestError("Only draft listings can be published")
	}
	enqueueEmbed(ctx, s.tasks, listingID)

	return s.listings.GetByID(ctx, listingID)
}

// SweepExpired expires active listings past expires_at and returns how many
// changed. Running it again, or concurrently, does not double count.
func (s *ListingService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.listings.SweepExpired(ctx, s.rules.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.SweepAffected.WithLabelValues("listings_expired").Add(float64(n))
		middleware.Logger.InfoContext(ctx, "expired listings swept", "count", n)
	}
	return n, nil
}

// SendDeadlineReminders emits deadline_reminder to owners whose application
// deadline falls within the reminder window. Each listing is reminded once.
func (s *ListingService) SendDeadlineReminders(ctx context.Context) (int, error) {
	now := s.rules.now()
	candidates, err := s.listings.DeadlineCandidates(ctx, now, s.rules.DeadlineWindow, deadlineBatchLimit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, l := range candidates {
		claimed, err := s.listings.MarkDeadlineReminded(ctx, l.ID, now)
		if err != nil {
			return sent, err
		}
		if !claimed {
			continue
		}
		publish(ctx, s.events, notifications.DeadlineReminderEvent(l, now))
		sent++
	}
	if sent > 0 {
		observability.SweepAffected.WithLabelValues("deadline_reminders").Add(float64(sent))
	}
	return sent, nil
}

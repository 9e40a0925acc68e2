package repository

import (
	"context"
	"time"

	"billboard/internal/cache"
	"billboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListingRepository defines the interface for listing data operations
type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) error
	CreateBatch(ctx context.Context, listings []*models.Listing) error
	GetByID(ctx context.Context, id uint) (*models.Listing, error)
	GetCached(ctx context.Context, id uint) (*models.Listing, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*models.Listing, error)
	Update(ctx context.Context, listing *models.Listing, readStatus models.ListingStatus) error
	Delete(ctx context.Context, id uint) error
	FindPaged(ctx context.Context, filter models.ListingFilter, page models.Page, sort string) (*models.PagedListings, error)
	IncrementViews(ctx context.Context, id uint) error
	Like(ctx context.Context, listingID, userID uint) (bool, error)
	Unlike(ctx context.Context, listingID, userID uint) (bool, error)
	IsLiked(ctx context.Context, listingID, userID uint) (bool, error)
	LikedIDs(ctx context.Context, userID uint, listingIDs []uint) ([]uint, error)
	Publish(ctx context.Context, id uint) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	DeadlineCandidates(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*models.Listing, error)
	MarkDeadlineReminded(ctx context.Context, id uint, now time.Time) (bool, error)
}

// editableColumns are the columns an owner update may write. Counters and
// the status columns are never part of a whole-row write.
var editableColumns = []string{
	"category", "type",
	"title", "description", "content",
	"location", "city", "district", "address",
	"price", "currency", "price_period", "size", "rooms", "bedrooms", "bathrooms", "available_from",
	"furnished", "balcony", "garden", "parking", "elevator", "pets_allowed", "smoking_allowed", "accessible",
	"amenities", "hashtags", "images",
	"max_invitations", "deadline", "expires_at", "deadline_reminded_at",
	"updated_at",
}

type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new listing repository
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *listingRepository) CreateBatch(ctx context.Context, listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(listings, 100).Error
	})
}

func (r *listingRepository) GetByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Preload("User").First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetCached is GetByID behind the listing cache. Counters in the cached copy
// may lag by up to cache.ListingTTL.
func (r *listingRepository) GetCached(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	err := cache.Aside(ctx, cache.ListingKey(id), &listing, cache.ListingTTL, func() error {
		return r.db.WithContext(ctx).Preload("User").First(&listing, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetByIDs returns the listings in ids order. Missing ids are skipped.
func (r *listingRepository) GetByIDs(ctx context.Context, ids []uint) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return []*models.Listing{}, nil
	}
	var found []*models.Listing
	if err := r.db.WithContext(ctx).Preload("User").Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]*models.Listing, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}
	ordered := make([]*models.Listing, 0, len(found))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			ordered = append(ordered, l)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// Update writes the editable columns. The capacity guard keeps
// max_invitations from dropping below invitations already sent.
// Update writes the owner-editable columns of listing, provided the row is
// still in readStatus. The status columns are written only when
// listing.Status differs from readStatus.
func (r *listingRepository) Update(ctx context.Context, listing *models.Listing, readStatus models.ListingStatus) error {
	columns := editableColumns
	if listing.Status != readStatus {
		columns = append(append([]string{}, editableColumns...), "status", "is_active", "is_published")
	}

	res := r.db.WithContext(ctx).
		Model(listing).
		Select(columns).
		Where("status = ? AND sent_invitations <= ?", readStatus, listing.MaxInvitations).
		Updates(listing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var current models.Listing
		err := r.db.WithContext(ctx).
			Select("id", "status", "sent_invitations").
			First(&current, listing.ID).Error
		if err != nil {
			return err
		}
		if current.Status != readStatus {
			return ErrStatusChanged
		}
		return ErrCapacityBelowSent
	}
	cache.InvalidateListing(ctx, listing.ID)
	return nil
}

// Delete removes the listing together with its likes, comments, invitations
// and applications.
func (r *listingRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dep := range []interface{}{
			&models.ListingLike{},
			&models.Comment{},
			&models.Invitation{},
			&models.Application{},
		} {
			if err := tx.Where("listing_id = ?", id).Delete(dep).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.Listing{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	cache.InvalidateListing(ctx, id)
	return nil
}

func (r *listingRepository) FindPaged(ctx context.Context, filter models.ListingFilter, page models.Page, sort string) (*models.PagedListings, error) {
	base := applyListingFilter(r.db.WithContext(ctx).Model(&models.Listing{}), filter).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	listings := make([]*models.Listing, 0, page.Limit)
	err := applyListingSort(base.Preload("User"), sort).
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&listings).Error
	if err != nil {
		return nil, err
	}

	return &models.PagedListings{
		Listings: listings,
		Total:    total,
		Limit:    page.Limit,
		Offset:   page.Offset,
	}, nil
}

func applyListingFilter(db *gorm.DB, f models.ListingFilter) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	} else if f.OwnerID == 0 {
		db = db.Where("is_active = ?", true)
	}
	if f.PublishedOnly {
		db = db.Where("is_published = ?", true)
	}
	if f.OwnerID != 0 {
		db = db.Where("user_id = ?", f.OwnerID)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	if f.Type != "" {
		db = db.Where("type = ?", f.Type)
	}
	if f.City != "" {
		db = db.Where(`LOWER(city) LIKE ? ESCAPE '\'`, likePattern(f.City))
	}
	if f.Location != "" {
		db = db.Where(`LOWER(location) LIKE ? ESCAPE '\'`, likePattern(f.Location))
	}
	if f.Hashtag != "" {
		db = db.Where(`hashtags LIKE ? ESCAPE '\'`, likePattern(`"`+f.Hashtag+`"`))
	}
	if f.Query != "" {
		q := likePattern(f.Query)
		db = db.Where(
			`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(location) LIKE ? ESCAPE '\' OR LOWER(city) LIKE ? ESCAPE '\')`,
			q, q, q, q,
		)
	}

	for col, v := range map[string]*bool{
		"furnished":       f.Furnished,
		"balcony":         f.Balcony,
		"garden":          f.Garden,
		"parking":         f.Parking,
		"elevator":        f.Elevator,
		"pets_allowed":    f.PetsAllowed,
		"smoking_allowed": f.SmokingAllowed,
		"accessible":      f.Accessible,
	} {
		if v != nil {
			db = db.Where(col+" = ?", *v)
		}
	}

	db = applyRange(db, "price", f.MinPrice, f.MaxPrice)
	db = applyRange(db, "size", f.MinSize, f.MaxSize)
	db = applyRange(db, "rooms", f.MinRooms, f.MaxRooms)
	return db
}

// applyRange adds [min, max] on col. A lone max is read as [0, max].
func applyRange[T int | float64](db *gorm.DB, col string, lo, hi *T) *gorm.DB {
	switch {
	case lo != nil && hi != nil:
		return db.Where(col+" >= ? AND "+col+" <= ?", *lo, *hi)
	case lo != nil:
		return db.Where(col+" >= ?", *lo)
	case hi != nil:
		return db.Where(col+" >= 0 AND "+col+" <= ?", *hi)
	}
	return db
}

func applyListingSort(db *gorm.DB, sort string) *gorm.DB {
	switch sort {
	case models.SortOldest:
		return db.Order("created_at ASC").Order("id ASC")
	case models.SortPriceAsc:
		return db.Order("CASE WHEN price IS NULL THEN 1 ELSE 0 END").Order("price ASC").Order("id DESC")
	case models.SortPriceDesc:
		return db.Order("CASE WHEN price IS NULL THEN 1 ELSE 0 END").Order("price DESC").Order("id DESC")
	case models.SortPopular:
		return db.Order("views DESC").Order("id DESC")
	case models.SortMostLiked:
		return db.Order("likes_count DESC").Order("id DESC")
	case models.SortDeadline:
		return db.Order("CASE WHEN deadline IS NULL THEN 1 ELSE 0 END").Order("deadline ASC").Order("id DESC")
	default:
		return db.Order("created_at DESC").Order("id DESC")
	}
}

func (r *listingRepository) IncrementViews(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}

// Like records the like and bumps likes_count in one transaction. It reports
// false when the user had already liked the listing.
func (r *listingRepository) Like(ctx context.Context, listingID, userID uint) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ListingLike{ListingID: listingID, UserID: userID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		added = true
		return tx.Model(&models.Listing{}).
			Where("id = ?", listingID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + 1")).Error
	})
	if err != nil {
		return false, err
	}
	if added {
		cache.InvalidateListing(ctx, listingID)
	}
	return added, nil
}

// Unlike removes the like and decrements likes_count, reporting false when
// there was nothing to remove.
func (r *listingRepository) Unlike(ctx context.Context, listingID, userID uint) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("listing_id = ? AND user_id = ?", listingID, userID).Delete(&models.ListingLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&models.Listing{}).
			Where("id = ?", listingID).
			UpdateColumn("likes_count", gorm.Expr("CASE WHEN likes_count > 0 THEN likes_count - 1 ELSE 0 END")).Error
	})
	if err != nil {
		return false, err
	}
	if removed {
		cache.InvalidateListing(ctx, listingID)
	}
	return removed, nil
}

func (r *listingRepository) IsLiked(ctx context.Context, listingID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ListingLike{}).
		Where("listing_id = ? AND user_id = ?", listingID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *listingRepository) LikedIDs(ctx context.Context, userID uint, listingIDs []uint) ([]uint, error) {
	if userID == 0 || len(listingIDs) == 0 {
		return nil, nil
	}
	var liked []uint
	err := r.db.WithContext(ctx).
		Model(&models.ListingLike{}).
		Where("user_id = ? AND listing_id IN ?", userID, listingIDs).
		Pluck("listing_id", &liked).Error
	return liked, err
}

// Publish moves a draft to active. It reports false when the listing was
// not a draft.
func (r *listingRepository) Publish(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, models.StatusDraft).
		Updates(models.StatusColumns(models.StatusActive))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	cache.InvalidateListing(ctx, id)
	return true, nil
}

// SweepExpired expires active listings whose expires_at has passed. Rows
// already flipped by a concurrent sweep no longer match and are not counted.
func (r *listingRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.StatusActive, now).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id IN ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?", ids, models.StatusActive, now).
		Updates(models.StatusColumns(models.StatusExpired))
	if res.Error != nil {
		return 0, res.Error
	}
	for _, id := range ids {
		cache.InvalidateListing(ctx, id)
	}
	return res.RowsAffected, nil
}

// DeadlineCandidates returns active listings whose deadline falls in
// (now, now+window] and that have not been reminded yet.
func (r *listingRepository) DeadlineCandidates(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := r.db.WithContext(ctx).
		Where("status = ? AND deadline > ? AND deadline <= ? AND deadline_reminded_at IS NULL",
			models.StatusActive, now, now.Add(window)).
		Order("deadline ASC").
		Limit(limit).
		Find(&listings).Error
	return listings, err
}

// MarkDeadlineReminded claims the reminder for a listing. Only the first
// caller gets true.
func (r *listingRepository) MarkDeadlineReminded(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND deadline_reminded_at IS NULL", id).
		UpdateColumn("deadline_reminded_at", now)
	return res.RowsAffected == 1, res.Error
}

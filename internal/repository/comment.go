package repository

import (
	"context"

	"billboard/internal/cache"
	"billboard/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	Deactivate(ctx context.Context, id uint) (bool, error)
	ListActive(ctx context.Context, listingID uint, page models.Page) ([]*models.Comment, error)
	CountActive(ctx context.Context, listingID uint) (int64, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	comment.IsActive = true
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Listing{}).
			Where("id = ?", comment.ListingID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error
	})
	if err != nil {
		return err
	}
	cache.InvalidateListing(ctx, comment.ListingID)
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("User").First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// Deactivate soft-deletes a comment. The listing's comment_count drops only
// for the call that flipped the row, so repeated deletes are no-ops.
func (r *commentRepository) Deactivate(ctx context.Context, id uint) (bool, error) {
	var listingID uint
	flipped := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Select("id", "listing_id").First(&comment, id).Error; err != nil {
			return err
		}
		listingID = comment.ListingID

		res := tx.Model(&models.Comment{}).
			Where("id = ? AND is_active = ?", id, true).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		flipped = true
		return tx.Model(&models.Listing{}).
			Where("id = ?", listingID).
			UpdateColumn("comment_count", gorm.Expr("CASE WHEN comment_count > 0 THEN comment_count - 1 ELSE 0 END")).Error
	})
	if err != nil {
		return false, err
	}
	if flipped {
		cache.InvalidateListing(ctx, listingID)
	}
	return flipped, nil
}

// ListActive returns active comments, newest first.
func (r *commentRepository) ListActive(ctx context.Context, listingID uint, page models.Page) ([]*models.Comment, error) {
	comments := make([]*models.Comment, 0, page.Limit)
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("listing_id = ? AND is_active = ?", listingID, true).
		Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) CountActive(ctx context.Context, listingID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("listing_id = ? AND is_active = ?", listingID, true).
		Count(&count).Error
	return count, err
}

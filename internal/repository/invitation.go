package repository

import (
	"context"
	"time"

	"billboard/internal/cache"
	"billboard/internal/models"

	"gorm.io/gorm"
)

// InvitationRepository defines the interface for invitation data operations
type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	GetByID(ctx context.Context, id uint) (*models.Invitation, error)
	Exists(ctx context.Context, listingID, inviteeID uint) (bool, error)
	Respond(ctx context.Context, id uint, to models.InvitationStatus, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uint, now time.Time) (bool, error)
	MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error)
	ListByListing(ctx context.Context, listingID uint, page models.Page) ([]*models.Invitation, int64, error)
	ListByInvitee(ctx context.Context, inviteeID uint, page models.Page) ([]*models.Invitation, int64, error)
}

type invitationRepository struct {
	db *gorm.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

// Create claims one unit of the listing's invitation capacity and inserts the
// invitation in the same transaction. The claim is a conditional increment,
// so two racing inviters cannot both take the last slot.
func (r *invitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Listing{}).
			Where("id = ? AND sent_invitations < max_invitations", inv.ListingID).
			UpdateColumn("sent_invitations", gorm.Expr("sent_invitations + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCapacityReached
		}

		if err := tx.Create(inv).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	cache.InvalidateListing(ctx, inv.ListingID)
	return nil
}

func (r *invitationRepository) GetByID(ctx context.Context, id uint) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.db.WithContext(ctx).Preload("Listing").First(&inv, id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepository) Exists(ctx context.Context, listingID, inviteeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("listing_id = ? AND invitee_id = ?", listingID, inviteeID).
		Count(&count).Error
	return count > 0, err
}

// Respond records the invitee's answer. Only a pending, unexpired invitation
// changes; false means it had already been answered or expired.
func (r *invitationRepository) Respond(ctx context.Context, id uint, to models.InvitationStatus, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, models.InvitationPending, now).
		Updates(map[string]interface{}{
			"status":       to,
			"responded_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkExpired flips a single pending invitation past its expiry.
func (r *invitationRepository) MarkExpired(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, models.InvitationPending, now).
		Update("status", models.InvitationExpired)
	return res.RowsAffected == 1, res.Error
}

// MarkExpiredBefore expires every pending invitation whose expiry has passed.
func (r *invitationRepository) MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, now).
		Update("status", models.InvitationExpired)
	return res.RowsAffected, res.Error
}

func (r *invitationRepository) ListByListing(ctx context.Context, listingID uint, page models.Page) ([]*models.Invitation, int64, error) {
	return r.list(r.db.WithContext(ctx).Where("listing_id = ?", listingID), "Invitee", page)
}

func (r *invitationRepository) ListByInvitee(ctx context.Context, inviteeID uint, page models.Page) ([]*models.Invitation, int64, error) {
	return r.list(r.db.WithContext(ctx).Where("invitee_id = ?", inviteeID), "Listing", page)
}

func (r *invitationRepository) list(q *gorm.DB, preload string, page models.Page) ([]*models.Invitation, int64, error) {
	q = q.Model(&models.Invitation{}).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	invs := make([]*models.Invitation, 0, page.Limit)
	err := q.Preload(preload).Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&invs).Error
	return invs, total, err
}

package repository

import (
	"context"
	"time"

	"billboard/internal/cache"
	"billboard/internal/models"

	"gorm.io/gorm"
)

// ApplicationRepository defines the interface for application data operations
type ApplicationRepository interface {
	Create(ctx context.Context, app *models.Application, dailyLimit int, dayStart time.Time) error
	GetByID(ctx context.Context, id uint) (*models.Application, error)
	Exists(ctx context.Context, listingID, applicantID uint) (bool, error)
	CountSince(ctx context.Context, applicantID uint, since time.Time) (int64, error)
	UpdateStatus(ctx context.Context, id uint, from, to models.ApplicationStatus) (bool, error)
	ListByListing(ctx context.Context, listingID uint, page models.Page) ([]*models.Application, int64, error)
	ListByApplicant(ctx context.Context, applicantID uint, page models.Page) ([]*models.Application, int64, error)
}

type applicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

// Create inserts the application and bumps the listing's application_count.
// The daily quota is counted inside the same transaction, over
// [dayStart, dayStart+24h).
func (r *applicationRepository) Create(ctx context.Context, app *models.Application, dailyLimit int, dayStart time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if dailyLimit > 0 {
			var today int64
			err := tx.Model(&models.Application{}).
				Where("applicant_id = ? AND application_date >= ? AND application_date < ?",
					app.ApplicantID, dayStart, dayStart.Add(24*time.Hour)).
				Count(&today).Error
			if err != nil {
				return err
			}
			if today >= int64(dailyLimit) {
				return ErrDailyLimit
			}
		}

		if err := tx.Create(app).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}

		return tx.Model(&models.Listing{}).
			Where("id = ?", app.ListingID).
			UpdateColumn("application_count", gorm.Expr("application_count + 1")).Error
	})
	if err != nil {
		return err
	}
	cache.InvalidateListing(ctx, app.ListingID)
	return nil
}

func (r *applicationRepository) GetByID(ctx context.Context, id uint) (*models.Application, error) {
	var app models.Application
	if err := r.db.WithContext(ctx).Preload("Applicant").First(&app, id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) Exists(ctx context.Context, listingID, applicantID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("listing_id = ? AND applicant_id = ?", listingID, applicantID).
		Count(&count).Error
	return count > 0, err
}

func (r *applicationRepository) CountSince(ctx context.Context, applicantID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("applicant_id = ? AND application_date >= ?", applicantID, since).
		Count(&count).Error
	return count, err
}

// UpdateStatus moves an application from one status to another. It reports
// false when the row was no longer in the from status.
func (r *applicationRepository) UpdateStatus(ctx context.Context, id uint, from, to models.ApplicationStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *applicationRepository) ListByListing(ctx context.Context, listingID uint, page models.Page) ([]*models.Application, int64, error) {
	return r.list(r.db.WithContext(ctx).Where("listing_id = ?", listingID), "Applicant", page)
}

func (r *applicationRepository) ListByApplicant(ctx context.Context, applicantID uint, page models.Page) ([]*models.Application, int64, error) {
	return r.list(r.db.WithContext(ctx).Where("applicant_id = ?", applicantID), "Listing", page)
}

func (r *applicationRepository) list(q *gorm.DB, preload string, page models.Page) ([]*models.Application, int64, error) {
	q = q.Model(&models.Application{}).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	apps := make([]*models.Application, 0, page.Limit)
	err := q.Preload(preload).Order("application_date DESC").Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&apps).Error
	return apps, total, err
}

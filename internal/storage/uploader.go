package storage

import (
	"context"
	"fmt"

	"billboard/internal/config"
	"billboard/internal/middleware"
	"billboard/internal/models"

	"github.com/google/uuid"
)

// ObjectStore persists an object and returns the URL it is served from.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Uploader turns raw listing image uploads into stored WebP objects.
type Uploader struct {
	store  ObjectStore
	limits ImageLimits
}

func NewUploader(store ObjectStore, cfg *config.Config) *Uploader {
	var limits ImageLimits
	if cfg != nil {
		limits.MaxDimension = cfg.ImageMaxDimension
		limits.MaxBytes = int64(cfg.ImageMaxUploadSizeMB) * 1024 * 1024
	}
	return &Uploader{store: store, limits: limits.withDefaults()}
}

// MaxBytes is the largest accepted upload.
func (u *Uploader) MaxBytes() int64 { return u.limits.MaxBytes }

// Upload normalizes content and stores it under the user's prefix. Store
// failures are reported as an unavailable upstream.
func (u *Uploader) Upload(ctx context.Context, userID uint, content []byte, contentType string) (string, error) {
	if userID == 0 {
		return "", models.NewUnauthorizedError("Authentication required")
	}
	normalized, err := NormalizeImage(content, contentType, u.limits)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("listings/%d/%s.webp", userID, uuid.NewString())
	url, err := u.store.Put(ctx, key, normalized, WebPContentType)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "image upload failed", "key", key, "error", err)
		return "", models.NewUpstreamError("Image storage", err)
	}
	middleware.Logger.InfoContext(ctx, "image uploaded", "key", key, "bytes", len(normalized))
	return url, nil
}

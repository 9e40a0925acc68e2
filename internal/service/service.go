// Package service implements the marketplace operations on top of the repositories.
package service

import (
	"context"
	"time"

	"billboard/internal/config"
	"billboard/internal/middleware"
	"billboard/internal/models"
	"billboard/internal/notifications"
	"billboard/internal/repository"
)

// EventPublisher hands a committed change to the realtime fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, e notifications.Event)
}

// TaskEnqueuer schedules background work that must not block a request.
type TaskEnqueuer interface {
	EnqueueListingEmbed(ctx context.Context, listingID uint) error
	EnqueueListingUnindex(ctx context.Context, listingID uint) error
	EnqueueEmail(ctx context.Context, to, template string, data map[string]any) error
}

// Rules are the marketplace limits shared by the services.
type Rules struct {
	DailyApplicationLimit int
	InvitationTTL         time.Duration
	DefaultMaxInvitations int
	DeadlineWindow        time.Duration

	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time
}

// DefaultRules returns the production limits.
func DefaultRules() Rules {
	return Rules{
		DailyApplicationLimit: 3,
		InvitationTTL:         models.InvitationTTL,
		DefaultMaxInvitations: models.DefaultMaxInvitations,
		DeadlineWindow:        24 * time.Hour,
	}
}

// RulesFromConfig reads the limits from configuration, falling back to the defaults.
func RulesFromConfig(cfg *config.Config) Rules {
	r := DefaultRules()
	if cfg == nil {
		return r
	}
	if cfg.DailyApplicationLimit > 0 {
		r.DailyApplicationLimit = cfg.DailyApplicationLimit
	}
	if cfg.InvitationTTLHours > 0 {
		r.InvitationTTL = time.Duration(cfg.InvitationTTLHours) * time.Hour
	}
	if cfg.DefaultMaxInvitations > 0 {
		r.DefaultMaxInvitations = cfg.DefaultMaxInvitations
	}
	if cfg.DeadlineReminderWindowHours > 0 {
		r.DeadlineWindow = time.Duration(cfg.DeadlineReminderWindowHours) * time.Hour
	}
	return r
}

func (r Rules) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// utcDayStart is midnight UTC of t's calendar day.
func utcDayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func normalizePage(p models.Page) models.Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// notFound converts a missing-record error into a NOT_FOUND AppError.
func notFound(err error, resource string, id uint) error {
	if repository.IsNotFound(err) {
		return models.NewNotFoundError(resource, id)
	}
	return err
}

func publish(ctx context.Context, events EventPublisher, e notifications.Event) {
	if events == nil {
		return
	}
	events.Publish(ctx, e)
}

func enqueueEmbed(ctx context.Context, tasks TaskEnqueuer, listingID uint) {
	if tasks == nil {
		return
	}
	if err := tasks.EnqueueListingEmbed(ctx, listingID); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to enqueue listing embedding", "listing_id", listingID, "error", err)
	}
}

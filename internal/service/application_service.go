package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"billboard/internal/middleware"
	"billboard/internal/models"
	"billboard/internal/notifications"
	"billboard/internal/repository"
)

const (
	msgAlreadyApplied         = "You have already applied to this listing"
	applicationStatusTemplate = "application_status"
)

type ApplicationService struct {
	apps     repository.ApplicationRepository
	listings repository.ListingRepository
	users    repository.UserRepository
	events   EventPublisher
	tasks    TaskEnqueuer
	rules    Rules
}

type ApplyInput struct {
	ListingID   uint
	ApplicantID uint
	Message     string
}

type UpdateApplicationStatusInput struct {
	ApplicationID uint
	ActorID       uint
	Status        models.ApplicationStatus
}

// ApplicationPage is one page of applications.
type ApplicationPage struct {
	Applications []*models.Application `json:"applications"`
	Total        int64                 `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func NewApplicationService(
	apps repository.ApplicationRepository,
	listings repository.ListingRepository,
	users repository.UserRepository,
	events EventPublisher,
	tasks TaskEnqueuer,
	rules Rules,
) *ApplicationService {
	return &ApplicationService{
		apps:     apps,
		listings: listings,
		users:    users,
		events:   events,
		tasks:    tasks,
		rules:    rules,
	}
}

// Apply records an application and notifies the listing owner. Checks run in
// a fixed order so a request failing several of them always gets the same
// error.
func (s *ApplicationService) Apply(ctx context.Context, in ApplyInput) (*models.Application, error) {
	message := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(message) > models.MaxApplicationMessageLength {
		return nil, models.NewValidationError(fmt.Sprintf("Message too long (max %d characters)", models.MaxApplicationMessageLength))
	}

	listing, err := s.listings.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, notFound(err, "Listing", in.ListingID)
	}
	if listing.UserID == in.ApplicantID {
		return nil, models.NewBadRequestError("You cannot apply to your own listing")
	}
	if listing.Status != models.StatusActive || !listing.IsActive {
		return nil, models.NewBadRequestError("Listing is not accepting applications")
	}

	now := s.rules.now()
	if !listing.AcceptsApplications(now) {
		return nil, models.NewBadRequestError("The application deadline has passed")
	}

	exists, err := s.apps.Exists(ctx, in.ListingID, in.ApplicantID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewBadRequestError(msgAlreadyApplied)
	}

	app := &models.Application{
		ListingID:       in.ListingID,
		ApplicantID:     in.ApplicantID,
		Status:          models.ApplicationPending,
		Message:         message,
		ApplicationDate: now,
	}
	if err := s.apps.Create(ctx, app, s.rules.DailyApplicationLimit, utcDayStart(now)); err != nil {
		switch {
		case errors.Is(err, repository.ErrDailyLimit):
			return nil, models.NewBadRequestError(fmt.Sprintf(
				"Daily application limit reached (%d per day)", s.rules.DailyApplicationLimit))
		case errors.Is(err, repository.ErrDuplicate):
			return nil, models.NewDuplicateError(msgAlreadyApplied, models.ErrConflict)
		}
		return nil, err
	}

	applicant, err := s.users.GetByID(ctx, in.ApplicantID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "applicant profile unavailable for event", "user_id", in.ApplicantID, "error", err)
		applicant = &models.User{ID: in.ApplicantID}
	}
	app.Applicant = applicant
	publish(ctx, s.events, notifications.NewApplicationEvent(listing, app, applicant, now))

	return app, nil
}

// UpdateStatus lets the listing owner accept or reject a pending application.
func (s *ApplicationService) UpdateStatus(ctx context.Context, in UpdateApplicationStatusInput) (*models.Application, error) {
	if in.Status != models.ApplicationAccepted && in.Status != models.ApplicationRejected {
		return nil, models.NewValidationError("Status must be accepted or rejected")
	}

	app, err := s.apps.GetByID(ctx, in.ApplicationID)
	if err != nil {
		return nil, notFound(err, "Application", in.ApplicationID)
	}
	listing, err := s.listings.GetByID(ctx, app.ListingID)
	if err != nil {
		return nil, notFound(err, "Listing", app.ListingID)
	}
	if listing.UserID != in.ActorID {
		return nil, models.NewForbiddenError("Only the listing owner can update applications")
	}
	if app.Status != models.ApplicationPending {
		return nil, models.NewBadRequestError("Application has already been " + string(app.Status))
	}

	ok, err := s.apps.UpdateStatus(ctx, app.ID, models.ApplicationPending, in.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewBadRequestError("Application has already been decided")
	}

	app.Status = in.Status
	publish(ctx, s.events, notifications.ApplicationStatusEvent(listing, app, s.rules.now()))
	s.emailApplicant(ctx, listing, app)
	return app, nil
}

func (s *ApplicationService) emailApplicant(ctx context.Context, listing *models.Listing, app *models.Application) {
	if s.tasks == nil {
		return
	}
	applicant := app.Applicant
	if applicant == nil || applicant.Email == "" {
		return
	}
	data := map[string]any{
		"applicant_name": applicant.Username,
		"listing_id":     listing.ID,
		"listing_title":  listing.Title,
		"status":         string(app.Status),
	}
	if err := s.tasks.EnqueueEmail(ctx, applicant.Email, applicationStatusTemplate, data); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to enqueue application status email", "application_id", app.ID, "error", err)
	}
}

// GetApplication returns an application to its applicant or the listing owner.
func (s *ApplicationService) GetApplication(ctx context.Context, applicationID, actorID uint) (*models.Application, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, notFound(err, "Application", applicationID)
	}
	if app.ApplicantID == actorID {
		return app, nil
	}
	listing, err := s.listings.GetByID(ctx, app.ListingID)
	if err != nil {
		return nil, notFound(err, "Listing", app.ListingID)
	}
	if listing.UserID != actorID {
		return nil, models.NewForbiddenError("You cannot view this application")
	}
	return app, nil
}

// ListForListing returns the applications of a listing to its owner.
func (s *ApplicationService) ListForListing(ctx context.Context, listingID, actorID uint, page models.Page) (*ApplicationPage, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "Listing", listingID)
	}
	if listing.UserID != actorID {
		return nil, models.NewForbiddenError("Only the listing owner can view applications")
	}
	page = normalizePage(page)
	apps, total, err := s.apps.ListByListing(ctx, listingID, page)
	if err != nil {
		return nil, err
	}
	return &ApplicationPage{Applications: apps, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// ListMine returns the actor's own applications, newest first.
func (s *ApplicationService) ListMine(ctx context.Context, actorID uint, page models.Page) (*ApplicationPage, error) {
	page = normalizePage(page)
	apps, total, err := s.apps.ListByApplicant(ctx, actorID, page)
	if err != nil {
		return nil, err
	}
	return &ApplicationPage{Applications: apps, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

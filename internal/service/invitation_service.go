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
	"billboard/internal/observability"
	"billboard/internal/repository"
)

const (
	msgAlreadyInvited       = "User has already been invited to this listing"
	invitationEmailTemplate = "invitation_received"
	maxInvitationMessageLen = 1000
)

type InvitationService struct {
	invitations repository.InvitationRepository
	apps        repository.ApplicationRepository
	listings    repository.ListingRepository
	users       repository.UserRepository
	events      EventPublisher
	tasks       TaskEnqueuer
	rules       Rules
}

type InviteInput struct {
	ListingID uint
	ActorID   uint
	InviteeID uint
	Message   string
}

type RespondInvitationInput struct {
	InvitationID uint
	ActorID      uint
	Status       models.InvitationStatus
}

// InvitationPage is one page of invitations.
type InvitationPage struct {
	Invitations []*models.Invitation `json:"invitations"`
	Total       int64                `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

func NewInvitationService(
	invitations repository.InvitationRepository,
	apps repository.ApplicationRepository,
	listings repository.ListingRepository,
	users repository.UserRepository,
	events EventPublisher,
	tasks TaskEnqueuer,
	rules Rules,
) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		apps:        apps,
		listings:    listings,
		users:       users,
		events:      events,
		tasks:       tasks,
		rules:       rules,
	}
}

// Invite lets a listing owner invite someone who applied. Capacity is
// claimed in the same transaction as the insert, so concurrent invites never
// exceed max_invitations.
func (s *InvitationService) Invite(ctx context.Context, in InviteInput) (*models.Invitation, error) {
	message := strings.TrimSpace(in.Message)
	if utf8.RuneCountInString(message) > maxInvitationMessageLen {
		return nil, models.NewValidationError(fmt.Sprintf("Message too long (max %d characters)", maxInvitationMessageLen))
	}

	listing, err := s.listings.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, notFound(err, "Listing", in.ListingID)
	}
	if listing.UserID != in.ActorID {
		return nil, models.NewForbiddenError("Only the listing owner can send invitations")
	}
	if in.InviteeID == listing.UserID {
		return nil, models.NewBadRequestError("You cannot invite yourself")
	}
	if listing.SentInvitations >= listing.MaxInvitations {
		return nil, models.NewBadRequestError("Invitation limit reached for this listing")
	}

	exists, err := s.invitations.Exists(ctx, in.ListingID, in.InviteeID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewBadRequestError(msgAlreadyInvited)
	}
	applied, err := s.apps.Exists(ctx, in.ListingID, in.InviteeID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, models.NewBadRequestError("Only users who applied can be invited")
	}

	now := s.rules.now()
	inv := &models.Invitation{
		ListingID: in.ListingID,
		InviterID: in.ActorID,
		InviteeID: in.InviteeID,
		Status:    models.InvitationPending,
		Message:   message,
		ExpiresAt: now.Add(s.rules.InvitationTTL),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		switch {
		case errors.Is(err, repository.ErrCapacityReached):
			return nil, models.NewBadRequestError("Invitation limit reached for this listing")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, models.NewDuplicateError(msgAlreadyInvited, models.ErrConflict)
		}
		return nil, err
	}

	publish(ctx, s.events, notifications.InvitationReceivedEvent(listing, inv, now))
	s.emailInvitee(ctx, listing, inv)

	return inv, nil
}

func (s *InvitationService) emailInvitee(ctx context.Context, listing *models.Listing, inv *models.Invitation) {
	if s.tasks == nil || s.users == nil {
		return
	}
	invitee, err := s.users.GetByID(ctx, inv.InviteeID)
	if err != nil || invitee.Email == "" {
		return
	}
	data := map[string]any{
		"invitee_name":  invitee.Username,
		"listing_id":    listing.ID,
		"listing_title": listing.Title,
		"message":       inv.Message,
		"expires_at":    inv.ExpiresAt,
	}
	if err := s.tasks.EnqueueEmail(ctx, invitee.Email, invitationEmailTemplate, data); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to enqueue invitation email", "invitation_id", inv.ID, "error", err)
	}
}

// Respond lets the invitee accept or reject a pending invitation. An
// invitation past its expiry is marked expired instead.
func (s *InvitationService) Respond(ctx context.Context, in RespondInvitationInput) (*models.Invitation, error) {
	if in.Status != models.InvitationAccepted && in.Status != models.InvitationRejected {
		return nil, models.NewValidationError("Status must be accepted or rejected")
	}

	inv, err := s.invitations.GetByID(ctx, in.InvitationID)
	if err != nil {
		return nil, notFound(err, "Invitation", in.InvitationID)
	}
	if inv.InviteeID != in.ActorID {
		return nil, models.NewForbiddenError("Only the invitee can respond to this invitation")
	}
	if inv.Status != models.InvitationPending {
		return nil, models.NewBadRequestError("Invitation has already been " + string(inv.Status))
	}

	now := s.rules.now()
	if inv.ExpiredAt(now) {
		if _, err := s.invitations.MarkExpired(ctx, inv.ID, now); err != nil {
			return nil, err
		}
		return nil, models.NewBadRequestError("Invitation has expired")
	}

	ok, err := s.invitations.Respond(ctx, inv.ID, in.Status, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewBadRequestError("Invitation is no longer pending")
	}
	inv.Status = in.Status
	inv.RespondedAt = &now
	return inv, nil
}

// MarkExpiredInvitations expires every pending invitation past its expiry.
func (s *InvitationService) MarkExpiredInvitations(ctx context.Context) (int64, error) {
	n, err := s.invitations.MarkExpiredBefore(ctx, s.rules.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.SweepAffected.WithLabelValues("invitations_expired").Add(float64(n))
		middleware.Logger.InfoContext(ctx, "expired invitations swept", "count", n)
	}
	return n, nil
}

// ListForListing returns the invitations of a listing to its owner.
func (s *InvitationService) ListForListing(ctx context.Context, listingID, actorID uint, page models.Page) (*InvitationPage, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "Listing", listingID)
	}
	if listing.UserID != actorID {
		return nil, models.NewForbiddenError("Only the listing owner can view invitations")
	}
	page = normalizePage(page)
	invs, total, err := s.invitations.ListByListing(ctx, listingID, page)
	if err != nil {
		return nil, err
	}
	return &InvitationPage{Invitations: invs, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// ListMine returns invitations addressed to the actor.
func (s *InvitationService) ListMine(ctx context.Context, actorID uint, page models.Page) (*InvitationPage, error) {
	page = normalizePage(page)
	invs, total, err := s.invitations.ListByInvitee(ctx, actorID, page)
	if err != nil {
		return nil, err
	}
	return &InvitationPage{Invitations: invs, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

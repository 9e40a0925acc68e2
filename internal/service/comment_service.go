package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"billboard/internal/models"
	"billboard/internal/notifications"
	"billboard/internal/repository"
)

type CommentService struct {
	comments repository.CommentRepository
	listings repository.ListingRepository
	events   EventPublisher
	rules    Rules
}

func NewCommentService(
	comments repository.CommentRepository,
	listings repository.ListingRepository,
	events EventPublisher,
	rules Rules,
) *CommentService {
	return &CommentService{comments: comments, listings: listings, events: events, rules: rules}
}

func (s *CommentService) visibleListing(ctx context.Context, listingID, viewerID uint) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, notFound(err, "Listing", listingID)
	}
	if listing.Status == models.StatusDraft && listing.UserID != viewerID {
		return nil, models.NewNotFoundError("Listing", listingID)
	}
	return listing, nil
}

// CreateComment adds a comment and broadcasts it to the listing room.
func (s *CommentService) CreateComment(ctx context.Context, listingID, actorID uint, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("Comment content is required")
	}
	if utf8.RuneCountInString(text) > models.MaxCommentLength {
		return nil, models.NewValidationError(fmt.Sprintf("Comment too long (max %d characters)", models.MaxCommentLength))
	}
	if _, err := s.visibleListing(ctx, listingID, actorID); err != nil {
		return nil, err
	}

	comment := &models.Comment{ListingID: listingID, UserID: actorID, Content: text}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	created, err := s.comments.GetByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, notifications.NewCommentEvent(created, s.rules.now()))
	return created, nil
}

// DeleteComment soft-deletes a comment. The author and the listing owner may
// delete; deleting twice is a no-op.
func (s *CommentService) DeleteComment(ctx context.Context, listingID, commentID, actorID uint) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return notFound(err, "Comment", commentID)
	}
	if comment.ListingID != listingID {
		return models.NewNotFoundError("Comment", commentID)
	}
	if comment.UserID != actorID {
		listing, err := s.listings.GetByID(ctx, listingID)
		if err != nil {
			return notFound(err, "Listing", listingID)
		}
		if listing.UserID != actorID {
			return models.NewForbiddenError("You can only delete your own comments")
		}
	}
	if _, err := s.comments.Deactivate(ctx, commentID); err != nil {
		return notFound(err, "Comment", commentID)
	}
	return nil
}

// ListComments returns the active comments of a listing, newest first.
func (s *CommentService) ListComments(ctx context.Context, listingID, viewerID uint, page models.Page) ([]*models.Comment, error) {
	if _, err := s.visibleListing(ctx, listingID, viewerID); err != nil {
		return nil, err
	}
	return s.comments.ListActive(ctx, listingID, normalizePage(page))
}

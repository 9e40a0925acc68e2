package notifications

import (
	"time"

	"billboard/internal/models"
)

// EventType names a marketplace event.
type EventType string

// Each event type has a single, fixed audience.
const (
	EventNewApplication     EventType = "new_application"     // listing owner
	EventApplicationStatus  EventType = "application_status"  // applicant
	EventNewComment         EventType = "new_comment"         // listing room
	EventNewLike            EventType = "new_like"            // listing room
	EventInvitationReceived EventType = "invitation_received" // invitee
	EventDeadlineReminder   EventType = "deadline_reminder"   // listing owner
)

type audienceKind uint8

const (
	audienceNone audienceKind = iota
	audienceUser
	audienceRoom
)

type audience struct {
	kind audienceKind
	id   uint
}

// Event is the payload pushed to realtime clients. The audience is chosen by
// the constructor for the event type and cannot be set by callers.
type Event struct {
	Type      EventType      `json:"type"`
	ListingID uint           `json:"listingId"`
	ActorID   uint           `json:"actorId"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`

	to audience
}

// Channel returns the pub/sub channel for the event's audience, or "" if the
// event was not built by one of the constructors.
func (e Event) Channel() string {
	switch e.to.kind {
	case audienceUser:
		return UserChannel(e.to.id)
	case audienceRoom:
		return ListingChannel(e.to.id)
	}
	return ""
}

// UserRecipient returns the user the event is addressed to.
func (e Event) UserRecipient() (uint, bool) {
	return e.to.id, e.to.kind == audienceUser
}

// RoomRecipient returns the listing room the event is addressed to.
func (e Event) RoomRecipient() (uint, bool) {
	return e.to.id, e.to.kind == audienceRoom
}

func userSummary(u *models.User) map[string]any {
	if u == nil {
		return nil
	}
	return map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"avatar":   u.Avatar,
	}
}

// NewApplicationEvent tells the listing owner about a new application.
func NewApplicationEvent(listing *models.Listing, app *models.Application, applicant *models.User, at time.Time) Event {
	data := map[string]any{
		"application_id": app.ID,
		"listing_title":  listing.Title,
		"message":        app.Message,
		"applicant":      userSummary(applicant),
	}
	if applicant != nil {
		data["applicant_name"] = applicant.Username
		data["applicant_avatar"] = applicant.Avatar
	}
	return Event{
		Type:      EventNewApplication,
		ListingID: listing.ID,
		ActorID:   app.ApplicantID,
		Data:      data,
		Timestamp: at,
		to:        audience{kind: audienceUser, id: listing.UserID},
	}
}

// ApplicationStatusEvent tells the applicant their application was decided.
func ApplicationStatusEvent(listing *models.Listing, app *models.Application, at time.Time) Event {
	return Event{
		Type:      EventApplicationStatus,
		ListingID: listing.ID,
		ActorID:   listing.UserID,
		Data: map[string]any{
			"application_id": app.ID,
			"listing_title":  listing.Title,
			"status":         app.Status,
		},
		Timestamp: at,
		to:        audience{kind: audienceUser, id: app.ApplicantID},
	}
}

// NewCommentEvent is broadcast to everyone watching the listing.
func NewCommentEvent(comment *models.Comment, at time.Time) Event {
	return Event{
		Type:      EventNewComment,
		ListingID: comment.ListingID,
		ActorID:   comment.UserID,
		Data: map[string]any{
			"comment_id": comment.ID,
			"content":    comment.Content,
			"author":     userSummary(comment.User),
			"created_at": comment.CreatedAt,
		},
		Timestamp: at,
		to:        audience{kind: audienceRoom, id: comment.ListingID},
	}
}

// NewLikeEvent is broadcast to everyone watching the listing.
func NewLikeEvent(listingID, actorID uint, likesCount int, at time.Time) Event {
	return Event{
		Type:      EventNewLike,
		ListingID: listingID,
		ActorID:   actorID,
		Data: map[string]any{
			"likes_count": likesCount,
		},
		Timestamp: at,
		to:        audience{kind: audienceRoom, id: listingID},
	}
}

// InvitationReceivedEvent tells the invitee about a new invitation.
func InvitationReceivedEvent(listing *models.Listing, inv *models.Invitation, at time.Time) Event {
	return Event{
		Type:      EventInvitationReceived,
		ListingID: listing.ID,
		ActorID:   inv.InviterID,
		Data: map[string]any{
			"invitation_id": inv.ID,
			"listing_title": listing.Title,
			"message":       inv.Message,
			"expires_at":    inv.ExpiresAt,
		},
		Timestamp: at,
		to:        audience{kind: audienceUser, id: inv.InviteeID},
	}
}

// DeadlineReminderEvent reminds the owner that the application deadline is near.
func DeadlineReminderEvent(listing *models.Listing, at time.Time) Event {
	data := map[string]any{
		"listing_title":     listing.Title,
		"application_count": listing.ApplicationCount,
	}
	if listing.Deadline != nil {
		data["deadline"] = *listing.Deadline
	}
	return Event{
		Type:      EventDeadlineReminder,
		ListingID: listing.ID,
		ActorID:   0,
		Data:      data,
		Timestamp: at,
		to:        audience{kind: audienceUser, id: listing.UserID},
	}
}

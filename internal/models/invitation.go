package models

import "time"

// InvitationStatus is the state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// InvitationTTL is the fixed lifetime of an invitation from creation.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation is an owner-issued offer to a prior applicant.
// One per (listing, invitee), enforced by idx_invitation_pair.
type Invitation struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	ListingID   uint             `gorm:"not null;uniqueIndex:idx_invitation_pair" json:"listing_id"`
	Listing     *Listing         `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	InviterID   uint             `gorm:"not null;index" json:"inviter_id"`
	InviteeID   uint             `gorm:"not null;uniqueIndex:idx_invitation_pair;index" json:"invitee_id"`
	Invitee     *User            `gorm:"foreignKey:InviteeID" json:"invitee,omitempty"`
	Status      InvitationStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	Message     string           `gorm:"size:1000" json:"message"`
	ExpiresAt   time.Time        `gorm:"not null;index" json:"expires_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ExpiredAt reports whether a pending invitation is past its expiry at now.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return i.Status == InvitationPending && !now.Before(i.ExpiresAt)
}

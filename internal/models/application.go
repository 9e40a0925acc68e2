package models

import "time"

// ApplicationStatus is the state of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// MaxApplicationMessageLength bounds the optional application message.
const MaxApplicationMessageLength = 1000

// Application is a seeker's request to be considered for a listing.
// One per (listing, applicant), enforced by idx_application_pair.
type Application struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	ListingID       uint              `gorm:"not null;uniqueIndex:idx_application_pair" json:"listing_id"`
	Listing         *Listing          `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	ApplicantID     uint              `gorm:"not null;uniqueIndex:idx_application_pair;index" json:"applicant_id"`
	Applicant       *User             `gorm:"foreignKey:ApplicantID" json:"applicant,omitempty"`
	Status          ApplicationStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	Message         string            `gorm:"size:1000" json:"message"`
	ApplicationDate time.Time         `gorm:"not null;index" json:"application_date"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Terminal reports whether the status can no longer change.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationAccepted || s == ApplicationRejected
}

package models

import "time"

// MaxCommentLength bounds comment content.
const MaxCommentLength = 2000

// Comment is a message on a listing. Deleting sets IsActive to false.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ListingID uint      `gorm:"not null;index:idx_comments_listing_active" json:"listing_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsActive  bool      `gorm:"not null;default:true;index:idx_comments_listing_active" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

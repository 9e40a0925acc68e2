package models

import "time"

// User is the public profile of an account. Credentials are issued elsewhere;
// this service only reads profiles to enrich events and emails.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"-"`
	Avatar    string    `gorm:"size:512" json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// ListingCategory distinguishes offers from search requests.
type ListingCategory string

const (
	CategoryOffer  ListingCategory = "offer"
	CategorySearch ListingCategory = "search"
)

// ListingType is the kind of housing a listing is about.
type ListingType string

const (
	TypeApartment ListingType = "apartment"
	TypeRoom      ListingType = "room"
	TypeHouse     ListingType = "house"
	TypeStudio    ListingType = "studio"
	TypeShared    ListingType = "shared"
	TypeOther     ListingType = "other"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	StatusDraft    ListingStatus = "draft"
	StatusActive   ListingStatus = "active"
	StatusInactive ListingStatus = "inactive"
	StatusRented   ListingStatus = "rented"
	StatusExpired  ListingStatus = "expired"
)

// DefaultMaxInvitations is the invitation capacity of a listing unless configured otherwise.
const DefaultMaxInvitations = 10

func (c ListingCategory) Valid() bool {
	return c == CategoryOffer || c == CategorySearch
}

func (t ListingType) Valid() bool {
	switch t {
	case TypeApartment, TypeRoom, TypeHouse, TypeStudio, TypeShared, TypeOther:
		return true
	}
	return false
}

func (s ListingStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusInactive, StatusRented, StatusExpired:
		return true
	}
	return false
}

// Listing is a billboard posted by a user.
type Listing struct {
	ID     uint  `gorm:"primaryKey" json:"id"`
	UserID uint  `gorm:"not null;index" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Category ListingCategory `gorm:"size:16;not null;index" json:"category"`
	Type     ListingType     `gorm:"size:16;not null;index" json:"type"`

	// Status, IsActive and IsPublished are written together through ApplyStatus
	// or StatusColumns only.
	Status      ListingStatus `gorm:"size:16;not null;index;default:draft" json:"status"`
	IsActive    bool          `gorm:"not null;default:false;index" json:"is_active"`
	IsPublished bool          `gorm:"not null;default:false" json:"is_published"`

	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Content     string `gorm:"type:text" json:"content"`

	Location string `gorm:"size:200" json:"location"`
	City     string `gorm:"size:120;index" json:"city"`
	District string `gorm:"size:120" json:"district"`
	Address  string `gorm:"size:255" json:"address"`

	Price         *float64   `json:"price,omitempty"`
	Currency      string     `gorm:"size:8" json:"currency,omitempty"`
	PricePeriod   string     `gorm:"size:16" json:"price_period,omitempty"`
	Size          *float64   `json:"size,omitempty"`
	Rooms         *int       `json:"rooms,omitempty"`
	Bedrooms      *int       `json:"bedrooms,omitempty"`
	Bathrooms     *int       `json:"bathrooms,omitempty"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`

	Furnished      bool       `gorm:"not null;default:false" json:"furnished"`
	Balcony        bool       `gorm:"not null;default:false" json:"balcony"`
	Garden         bool       `gorm:"not null;default:false" json:"garden"`
	Parking        bool       `gorm:"not null;default:false" json:"parking"`
	Elevator       bool       `gorm:"not null;default:false" json:"elevator"`
	PetsAllowed    bool       `gorm:"not null;default:false" json:"pets_allowed"`
	SmokingAllowed bool       `gorm:"not null;default:false" json:"smoking_allowed"`
	Accessible     bool       `gorm:"not null;default:false" json:"accessible"`
	Amenities      StringList `gorm:"type:text" json:"amenities"`

	Hashtags StringList `gorm:"type:text" json:"hashtags"`
	Images   StringList `gorm:"type:text" json:"images"`

	Views            int `gorm:"not null;default:0" json:"views"`
	LikesCount       int `gorm:"not null;default:0" json:"likes_count"`
	ApplicationCount int `gorm:"not null;default:0" json:"application_count"`
	CommentCount     int `gorm:"not null;default:0" json:"comment_count"`
	SentInvitations  int `gorm:"not null;default:0" json:"sent_invitations"`
	MaxInvitations   int `gorm:"not null;default:10" json:"max_invitations"`

	Deadline           *time.Time `gorm:"index" json:"deadline,omitempty"`
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at,omitempty"`
	DeadlineRemindedAt *time.Time `json:"-"`

	// Liked reports whether the requesting user liked this listing (computed)
	Liked bool `gorm:"-" json:"liked"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListingLike records that a user liked a listing. The composite key makes a
// second like by the same user a no-op at the store level.
type ListingLike struct {
	ListingID uint      `gorm:"primaryKey;autoIncrement:false" json:"listing_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusFlags returns the IsActive/IsPublished pair implied by a status.
func StatusFlags(status ListingStatus) (isActive, isPublished bool) {
	switch status {
	case StatusActive:
		return true, true
	case StatusInactive, StatusRented, StatusExpired:
		return false, true
	default:
		return false, false
	}
}

// ApplyStatus sets the status and the flags derived from it.
func (l *Listing) ApplyStatus(status ListingStatus) {
	l.Status = status
	l.IsActive, l.IsPublished = StatusFlags(status)
}

// StatusColumns is the column set for a conditional status update.
func StatusColumns(status ListingStatus) map[string]interface{} {
	isActive, isPublished := StatusFlags(status)
	return map[string]interface{}{
		"status":       status,
		"is_active":    isActive,
		"is_published": isPublished,
	}
}

// AcceptsApplications reports whether the listing is open at the given time.
func (l *Listing) AcceptsApplications(now time.Time) bool {
	if l.Status != StatusActive || !l.IsActive {
		return false
	}
	return l.Deadline == nil || !now.After(*l.Deadline)
}

// ListingFilter holds the optional predicates of a listing query. All set
// predicates are combined with AND, including the free-text Query.
type ListingFilter struct {
	Category ListingCategory
	Type     ListingType
	Status   ListingStatus
	OwnerID  uint
	City     string
	Location string
	Hashtag  string
	Query    string

	// PublishedOnly hides drafts, for listings viewed by someone other than the owner.
	PublishedOnly bool

	Furnished      *bool
	Balcony        *bool
	Garden         *bool
	Parking        *bool
	Elevator       *bool
	PetsAllowed    *bool
	SmokingAllowed *bool
	Accessible     *bool

	MinPrice *float64
	MaxPrice *float64
	MinSize  *float64
	MaxSize  *float64
	MinRooms *int
	MaxRooms *int
}

// Listing sort keys.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortPopular   = "popular"
	SortMostLiked = "most_liked"
	SortDeadline  = "deadline"
)

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// PagedListings is one page of a listing query.
type PagedListings struct {
	Listings []*Listing `json:"listings"`
	Total    int64      `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

package seed

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"billboard/internal/content"
	"billboard/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yml
var defaultFixtures []byte

// Fixtures are hand-written users and listings loaded before generated data.
type Fixtures struct {
	Users    []UserFixture    `yaml:"users"`
	Listings []ListingFixture `yaml:"listings"`
}

type UserFixture struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

type ListingFixture struct {
	Owner       string   `yaml:"owner"`
	Category    string   `yaml:"category"`
	Type        string   `yaml:"type"`
	Status      string   `yaml:"status"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	City        string   `yaml:"city"`
	District    string   `yaml:"district"`
	Price       *float64 `yaml:"price"`
	Currency    string   `yaml:"currency"`
	Size        *float64 `yaml:"size"`
	Rooms       *int     `yaml:"rooms"`
	Furnished   bool     `yaml:"furnished"`
	Balcony     bool     `yaml:"balcony"`
	PetsAllowed bool     `yaml:"pets_allowed"`
	Hashtags    []string `yaml:"hashtags"`
}

// DefaultFixtures returns the fixtures bundled with the binary.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(defaultFixtures)
}

// LoadFixtures reads a YAML fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(raw)
}

// ParseFixtures decodes and checks fixtures. Every listing owner must be one
// of the fixture users.
func ParseFixtures(raw []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	users := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if strings.TrimSpace(u.Username) == "" || strings.TrimSpace(u.Email) == "" {
			return nil, fmt.Errorf("user %d: username and email are required", i)
		}
		users[u.Username] = true
	}
	for i, l := range f.Listings {
		if !users[l.Owner] {
			return nil, fmt.Errorf("listing %d: unknown owner %q", i, l.Owner)
		}
		if !models.ListingCategory(l.Category).Valid() {
			return nil, fmt.Errorf("listing %d: invalid category %q", i, l.Category)
		}
		if l.Type != "" && !models.ListingType(l.Type).Valid() {
			return nil, fmt.Errorf("listing %d: invalid type %q", i, l.Type)
		}
		if l.Status != "" && !models.ListingStatus(l.Status).Valid() {
			return nil, fmt.Errorf("listing %d: invalid status %q", i, l.Status)
		}
	}
	return &f, nil
}

func (lf ListingFixture) toListing(ownerID uint) *models.Listing {
	l := &models.Listing{
		UserID:      ownerID,
		Category:    models.ListingCategory(lf.Category),
		Type:        models.ListingType(lf.Type),
		Title:       lf.Title,
		Description: lf.Description,
		City:        lf.City,
		District:    lf.District,
		Location:    strings.Trim(lf.District+", "+lf.City, ", "),
		Price:       lf.Price,
		Currency:    lf.Currency,
		Size:        lf.Size,
		Rooms:       lf.Rooms,
		Furnished:   lf.Furnished,
		Balcony:     lf.Balcony,
		PetsAllowed: lf.PetsAllowed,
		Hashtags:    content.MergeHashtags(lf.Hashtags, content.ExtractHashtags(lf.Description)),
	}
	if l.Type == "" {
		l.Type = models.TypeOther
	}
	status := models.StatusActive
	if lf.Status != "" {
		status = models.ListingStatus(lf.Status)
	}
	l.ApplyStatus(status)
	return l
}

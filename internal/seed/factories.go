package seed

import (
	"fmt"
	"strings"
	"time"

	"billboard/internal/content"
	"billboard/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	cities = []string{"Berlin", "Hamburg", "Munich", "Cologne", "Leipzig", "Dresden", "Frankfurt", "Bremen"}

	listingTypes = []models.ListingType{
		models.TypeApartment, models.TypeRoom, models.TypeHouse,
		models.TypeStudio, models.TypeShared,
	}

	tagPool = []string{
		"sunny", "quiet", "central", "balcony", "garden", "furnished", "students",
		"family", "petfriendly", "shortterm", "longterm", "renovated", "oldbuilding",
	}
)

// Factory builds listings and users with plausible fake data. A fixed seed
// yields the same data on every run.
type Factory struct {
	faker *gofakeit.Faker
	now   time.Time
}

func NewFactory(seed int64, now time.Time) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{faker: gofakeit.New(seed), now: now.UTC()}
}

// BuildUser returns an unsaved user. The numeric suffix keeps usernames
// unique across a run.
func (f *Factory) BuildUser(n int) *models.User {
	name := strings.ToLower(f.faker.FirstName())
	username := fmt.Sprintf("%s%d", name, n)
	return &models.User{
		Username: username,
		Email:    username + "@" + f.faker.DomainName(),
		Avatar:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
}

// BuildListing returns an unsaved active listing owned by ownerID.
func (f *Factory) BuildListing(ownerID uint, overrides ...func(*models.Listing)) *models.Listing {
	category := models.CategoryOffer
	if f.faker.Number(1, 4) == 1 {
		category = models.CategorySearch
	}
	typ := listingTypes[f.faker.Number(0, len(listingTypes)-1)]
	city := cities[f.faker.Number(0, len(cities)-1)]

	rooms := f.faker.Number(1, 5)
	size := float64(rooms*f.faker.Number(14, 30) + f.faker.Number(0, 9))
	price := float64(f.faker.Number(35, 220) * 10)

	tags := []string{tagPool[f.faker.Number(0, len(tagPool)-1)], tagPool[f.faker.Number(0, len(tagPool)-1)]}
	description := fmt.Sprintf("%s %s #%s", f.faker.Sentence(12), f.faker.Sentence(10), tags[0])

	l := &models.Listing{
		UserID:         ownerID,
		Category:       category,
		Type:           typ,
		Title:          titleFor(category, typ, rooms, city),
		Description:    description,
		City:           city,
		District:       f.faker.Street(),
		Location:       city,
		Price:          &price,
		Currency:       "EUR",
		PricePeriod:    "month",
		Size:           &size,
		Rooms:          &rooms,
		Furnished:      f.faker.Bool(),
		Balcony:        f.faker.Bool(),
		Garden:         typ == models.TypeHouse && f.faker.Bool(),
		Parking:        f.faker.Bool(),
		Elevator:       typ == models.TypeApartment && f.faker.Bool(),
		PetsAllowed:    f.faker.Bool(),
		Hashtags:       content.MergeHashtags(tags, content.ExtractHashtags(description)),
		Images:         models.StringList{fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID())},
		MaxInvitations: models.DefaultMaxInvitations,
	}
	if f.faker.Bool() {
		deadline := f.now.Add(time.Duration(f.faker.Number(1, 30)) * 24 * time.Hour)
		l.Deadline = &deadline
	}
	available := f.now.Add(time.Duration(f.faker.Number(0, 60)) * 24 * time.Hour).Truncate(24 * time.Hour)
	l.AvailableFrom = &available
	l.ApplyStatus(models.StatusActive)

	for _, override := range overrides {
		override(l)
	}
	return l
}

func titleFor(category models.ListingCategory, typ models.ListingType, rooms int, city string) string {
	if category == models.CategorySearch {
		return fmt.Sprintf("Looking for a %s in %s", typ, city)
	}
	if typ == models.TypeRoom || typ == models.TypeStudio {
		return fmt.Sprintf("Bright %s in %s", typ, city)
	}
	return fmt.Sprintf("%d-room %s in %s", rooms, typ, city)
}
